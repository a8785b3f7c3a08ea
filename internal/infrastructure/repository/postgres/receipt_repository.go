package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const receiptColumns = `id, request_id, status, amount, receipt_date, description,
	file_name, file_path, mime_type, rejection_reason, reviewed_by, reviewed_at, created_at`

type ReceiptRepository struct {
	db *sql.DB
}

func NewReceiptRepository(db *sql.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, rc *domain.Receipt) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO vendor_receipts (`+receiptColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		rc.ID, rc.RequestID, string(rc.Status), rc.Amount, rc.ReceiptDate.Format(domain.ReceiptDateLayout), rc.Description,
		rc.FileName, rc.FilePath, rc.MimeType, rc.RejectionReason, rc.ReviewedBy, nullTime(rc.ReviewedAt), rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) Get(ctx context.Context, id string) (*domain.Receipt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM vendor_receipts WHERE id = $1`, id)
	rc, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get receipt", fmt.Errorf("no receipt %s", id))
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return rc, nil
}

func (r *ReceiptRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+receiptColumns+`
FROM vendor_receipts
WHERE request_id = $1
ORDER BY created_at DESC
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Receipt, 0)
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, *rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// Mutate applies fn to the row-locked receipt.
func (r *ReceiptRepository) Mutate(ctx context.Context, id string, fn ports.ReceiptMutateFunc) (*domain.Receipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin receipt tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM vendor_receipts WHERE id = $1 FOR UPDATE`, id)
	rc, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "lock receipt", fmt.Errorf("no receipt %s", id))
		}
		return nil, fmt.Errorf("lock receipt: %w", err)
	}
	if err := fn(rc); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE vendor_receipts SET
	status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5
WHERE id = $1
`,
		rc.ID, string(rc.Status), rc.RejectionReason, rc.ReviewedBy, nullTime(rc.ReviewedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("update receipt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receipt tx: %w", err)
	}
	return rc, nil
}

func (r *ReceiptRepository) DeletePending(ctx context.Context, requestID, id string) (*domain.Receipt, error) {
	row := r.db.QueryRowContext(ctx, `
DELETE FROM vendor_receipts
WHERE id = $1 AND request_id = $2 AND status = $3
RETURNING `+receiptColumns,
		id, requestID, string(domain.ReceiptPending),
	)
	rc, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "delete receipt", fmt.Errorf("no pending receipt %s", id))
		}
		return nil, fmt.Errorf("delete receipt: %w", err)
	}
	return rc, nil
}

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	var (
		rc       domain.Receipt
		status   string
		reviewed sql.NullTime
	)
	err := row.Scan(
		&rc.ID, &rc.RequestID, &status, &rc.Amount, &rc.ReceiptDate, &rc.Description,
		&rc.FileName, &rc.FilePath, &rc.MimeType, &rc.RejectionReason, &rc.ReviewedBy, &reviewed, &rc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rc.Status = domain.ReceiptStatus(status)
	rc.ReceiptDate = rc.ReceiptDate.UTC()
	rc.ReviewedAt = timePtr(reviewed)
	return &rc, nil
}
