package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const quoteColumns = `id, request_id, status, vendor_token, vp_token, procurement_token, amount, description,
	file_name, file_path, signed_file_path, submitted_at, link_sent_at, expires_at,
	vp_approved, vp_at, vp_by, procurement_approved, procurement_at, procurement_by,
	rejection_reason, created_at, updated_at`

type QuoteRepository struct {
	db *sql.DB
}

func NewQuoteRepository(db *sql.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) Create(ctx context.Context, q *domain.Quote) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO vendor_quotes (`+quoteColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
`,
		q.ID, q.RequestID, string(q.Status), q.VendorToken, q.VPToken, q.ProcurementToken, q.Amount, q.Description,
		q.FileName, q.FilePath, q.SignedFilePath, nullTime(q.SubmittedAt), nullTime(q.LinkSentAt), nullTime(q.ExpiresAt),
		nullBool(q.VP.Approved), nullTime(q.VP.At), q.VP.By,
		nullBool(q.ProcurementManager.Approved), nullTime(q.ProcurementManager.At), q.ProcurementManager.By,
		q.RejectionReason, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (r *QuoteRepository) Get(ctx context.Context, key ports.QuoteKey) (*domain.Quote, error) {
	where, value, err := quoteKeyClause(key)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM vendor_quotes WHERE `+where, value)
	q, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get quote", fmt.Errorf("no quote for %s", where))
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

func (r *QuoteRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.Quote, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+quoteColumns+`
FROM vendor_quotes
WHERE request_id = $1
ORDER BY created_at
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quote, 0)
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}

// Mutate applies fn to the row-locked quote.
func (r *QuoteRepository) Mutate(ctx context.Context, key ports.QuoteKey, fn ports.QuoteMutateFunc) (*domain.Quote, error) {
	where, value, err := quoteKeyClause(key)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin quote tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM vendor_quotes WHERE `+where+` FOR UPDATE`, value)
	q, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "lock quote", fmt.Errorf("no quote for %s", where))
		}
		return nil, fmt.Errorf("lock quote: %w", err)
	}
	if err := fn(q); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE vendor_quotes SET
	status = $2, amount = $3, description = $4, file_name = $5, file_path = $6, signed_file_path = $7,
	submitted_at = $8, vp_approved = $9, vp_at = $10, vp_by = $11,
	procurement_approved = $12, procurement_at = $13, procurement_by = $14,
	rejection_reason = $15, updated_at = $16
WHERE id = $1
`,
		q.ID, string(q.Status), q.Amount, q.Description, q.FileName, q.FilePath, q.SignedFilePath,
		nullTime(q.SubmittedAt), nullBool(q.VP.Approved), nullTime(q.VP.At), q.VP.By,
		nullBool(q.ProcurementManager.Approved), nullTime(q.ProcurementManager.At), q.ProcurementManager.By,
		q.RejectionReason, q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quote tx: %w", err)
	}
	return q, nil
}

// quoteKeyClause returns a WHERE condition over the single placeholder $1.
func quoteKeyClause(key ports.QuoteKey) (string, string, error) {
	switch {
	case key.ID != "":
		return "id = $1", key.ID, nil
	case key.VendorToken != "":
		return "vendor_token = $1", key.VendorToken, nil
	case key.ApprovalToken != "":
		return "(vp_token = $1 OR procurement_token = $1)", key.ApprovalToken, nil
	default:
		return "", "", domain.WrapError(domain.ErrNotFound, "resolve quote key", errors.New("empty key"))
	}
}

func scanQuote(row rowScanner) (*domain.Quote, error) {
	var (
		q                           domain.Quote
		status                      string
		submitted, linkSent, expiry sql.NullTime
		vpApproved, pmApproved      sql.NullBool
		vpAt, pmAt                  sql.NullTime
	)
	err := row.Scan(
		&q.ID, &q.RequestID, &status, &q.VendorToken, &q.VPToken, &q.ProcurementToken, &q.Amount, &q.Description,
		&q.FileName, &q.FilePath, &q.SignedFilePath, &submitted, &linkSent, &expiry,
		&vpApproved, &vpAt, &q.VP.By, &pmApproved, &pmAt, &q.ProcurementManager.By,
		&q.RejectionReason, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Status = domain.QuoteStatus(status)
	q.SubmittedAt, q.LinkSentAt, q.ExpiresAt = timePtr(submitted), timePtr(linkSent), timePtr(expiry)
	q.VP.Approved, q.VP.At = boolPtr(vpApproved), timePtr(vpAt)
	q.ProcurementManager.Approved, q.ProcurementManager.At = boolPtr(pmApproved), timePtr(pmAt)
	return &q, nil
}
