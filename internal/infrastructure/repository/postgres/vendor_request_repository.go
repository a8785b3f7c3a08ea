package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const requestColumns = `id, status, secure_token, expires_at, link_validity_seconds,
	otp_verified, otp_code_hash, otp_expires_at,
	vendor_name, vendor_email, handler_name, handler_email, profile, warnings,
	first_review_approved, first_review_at, first_review_by,
	vp_approved, vp_at, vp_by,
	procurement_approved, procurement_at, procurement_by,
	requires_vp_approval, requires_contract_signature, skip_manager_approval,
	contract_file_path, handler_rejection_reason, reminder_sent_at, created_at, updated_at`

// VendorRequestRepository appends the audit entry in the same transaction as
// every accepted change.
type VendorRequestRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewVendorRequestRepository(db *sql.DB) *VendorRequestRepository {
	return &VendorRequestRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *VendorRequestRepository) Create(ctx context.Context, req *domain.VendorRequest, actor string) error {
	profile, warnings, err := marshalProfile(req)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO vendor_requests (`+requestColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)
`,
		req.ID, string(req.Status), req.SecureToken, req.ExpiresAt, validitySeconds(req.LinkValidity),
		req.OTPVerified, nullString(req.OTPCodeHash), nullTime(req.OTPExpiresAt),
		req.VendorName, req.VendorEmail, req.HandlerName, req.HandlerEmail, profile, warnings,
		nullBool(req.FirstReview.Approved), nullTime(req.FirstReview.At), req.FirstReview.By,
		nullBool(req.VP.Approved), nullTime(req.VP.At), req.VP.By,
		nullBool(req.ProcurementManager.Approved), nullTime(req.ProcurementManager.At), req.ProcurementManager.By,
		req.RequiresVPApproval, req.RequiresContractSignature, req.SkipManagerApproval,
		req.ContractFilePath, req.HandlerRejectionReason, nullTime(req.ReminderSentAt), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vendor request: %w", err)
	}
	if err := r.appendHistory(ctx, tx, req.ID, "", req.Status, req.CreatedAt, actor, "created"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *VendorRequestRepository) Get(ctx context.Context, key ports.RequestKey) (*domain.VendorRequest, error) {
	column, value, err := requestKeyColumn(key)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM vendor_requests WHERE `+column+` = $1`, value)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get vendor request", fmt.Errorf("no request for %s", column))
		}
		return nil, fmt.Errorf("get vendor request: %w", err)
	}
	return req, nil
}

func (r *VendorRequestRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.VendorRequest, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+requestColumns+`
FROM vendor_requests
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2
`, string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list vendor requests: %w", err)
	}
	return collectRequests(rows)
}

// ListExpiring returns vendor-editable requests expiring in (from, to] that were not reminded yet.
func (r *VendorRequestRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.VendorRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+requestColumns+`
FROM vendor_requests
WHERE status IN ('pending', 'with_vendor', 'resent')
	AND reminder_sent_at IS NULL
	AND expires_at > $1
	AND expires_at <= $2
ORDER BY expires_at
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expiring requests: %w", err)
	}
	return collectRequests(rows)
}

// Mutate locks the row, applies fn and writes the result back. A status change
// or an explicit Record adds a history entry inside the same transaction.
func (r *VendorRequestRepository) Mutate(ctx context.Context, key ports.RequestKey, fn ports.MutateFunc) (*domain.VendorRequest, error) {
	column, value, err := requestKeyColumn(key)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM vendor_requests WHERE `+column+` = $1 FOR UPDATE`, value)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "lock vendor request", fmt.Errorf("no request for %s", column))
		}
		return nil, fmt.Errorf("lock vendor request: %w", err)
	}

	before := req.Status
	mutation, err := fn(req)
	if err != nil {
		return nil, err
	}

	profile, warnings, err := marshalProfile(req)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE vendor_requests SET
	status = $2, expires_at = $3, otp_verified = $4, otp_code_hash = $5, otp_expires_at = $6,
	profile = $7, warnings = $8,
	first_review_approved = $9, first_review_at = $10, first_review_by = $11,
	vp_approved = $12, vp_at = $13, vp_by = $14,
	procurement_approved = $15, procurement_at = $16, procurement_by = $17,
	contract_file_path = $18, handler_rejection_reason = $19, reminder_sent_at = $20, updated_at = $21
WHERE id = $1
`,
		req.ID, string(req.Status), req.ExpiresAt, req.OTPVerified, nullString(req.OTPCodeHash), nullTime(req.OTPExpiresAt),
		profile, warnings,
		nullBool(req.FirstReview.Approved), nullTime(req.FirstReview.At), req.FirstReview.By,
		nullBool(req.VP.Approved), nullTime(req.VP.At), req.VP.By,
		nullBool(req.ProcurementManager.Approved), nullTime(req.ProcurementManager.At), req.ProcurementManager.By,
		req.ContractFilePath, req.HandlerRejectionReason, nullTime(req.ReminderSentAt), req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update vendor request: %w", err)
	}

	if req.Status != before || mutation.Record {
		if err := r.appendHistory(ctx, tx, req.ID, before, req.Status, mutation.At, mutation.Actor, mutation.Note); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutate tx: %w", err)
	}
	return req, nil
}

// Delete cascades to documents, history and quotes through foreign keys.
func (r *VendorRequestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM vendor_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vendor request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vendor request rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete vendor request", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *VendorRequestRepository) appendHistory(
	ctx context.Context,
	tx *sql.Tx,
	requestID string,
	from, to domain.RequestStatus,
	at time.Time,
	actor, note string,
) error {
	if at.IsZero() {
		at = r.now()
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO vendor_status_history (request_id, old_status, new_status, changed_at, changed_by, note)
VALUES ($1,$2,$3,$4,$5,$6)
`, requestID, string(from), string(to), at.UTC(), actor, note)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func requestKeyColumn(key ports.RequestKey) (string, string, error) {
	switch {
	case key.ID != "":
		return "id", key.ID, nil
	case key.Token != "":
		return "secure_token", key.Token, nil
	default:
		return "", "", domain.WrapError(domain.ErrNotFound, "resolve request key", errors.New("empty key"))
	}
}

func collectRequests(rows *sql.Rows) ([]domain.VendorRequest, error) {
	defer rows.Close()
	out := make([]domain.VendorRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendor requests: %w", err)
	}
	return out, nil
}

func scanRequest(row rowScanner) (*domain.VendorRequest, error) {
	var (
		req                             domain.VendorRequest
		status                          string
		validity                        sql.NullInt64
		codeHash                        sql.NullString
		codeExpires, reminderSent       sql.NullTime
		profileRaw, warningsRaw         []byte
		firstApproved, vpApproved, pmOK sql.NullBool
		firstAt, vpAt, pmAt             sql.NullTime
	)
	err := row.Scan(
		&req.ID, &status, &req.SecureToken, &req.ExpiresAt, &validity,
		&req.OTPVerified, &codeHash, &codeExpires,
		&req.VendorName, &req.VendorEmail, &req.HandlerName, &req.HandlerEmail, &profileRaw, &warningsRaw,
		&firstApproved, &firstAt, &req.FirstReview.By,
		&vpApproved, &vpAt, &req.VP.By,
		&pmOK, &pmAt, &req.ProcurementManager.By,
		&req.RequiresVPApproval, &req.RequiresContractSignature, &req.SkipManagerApproval,
		&req.ContractFilePath, &req.HandlerRejectionReason, &reminderSent, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = domain.RequestStatus(status)
	if validity.Valid {
		req.LinkValidity = time.Duration(validity.Int64) * time.Second
	}
	req.OTPCodeHash = codeHash.String
	req.OTPExpiresAt = timePtr(codeExpires)
	req.ReminderSentAt = timePtr(reminderSent)
	req.FirstReview.Approved, req.FirstReview.At = boolPtr(firstApproved), timePtr(firstAt)
	req.VP.Approved, req.VP.At = boolPtr(vpApproved), timePtr(vpAt)
	req.ProcurementManager.Approved, req.ProcurementManager.At = boolPtr(pmOK), timePtr(pmAt)

	if len(profileRaw) > 0 {
		if err := json.Unmarshal(profileRaw, &req.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	if len(warningsRaw) > 0 {
		if err := json.Unmarshal(warningsRaw, &req.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return &req, nil
}

func marshalProfile(req *domain.VendorRequest) ([]byte, []byte, error) {
	profile, err := json.Marshal(req.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal profile: %w", err)
	}
	warnings := req.Warnings
	if warnings == nil {
		warnings = []domain.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return profile, warningsJSON, nil
}

func validitySeconds(d time.Duration) sql.NullInt64 {
	if d <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d / time.Second), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
