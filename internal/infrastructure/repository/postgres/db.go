package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2025031001

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the onboarding tables. The api and worker both call it on
// startup, so the DDL runs under a transaction-scoped advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS vendor_requests (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	secure_token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	link_validity_seconds BIGINT,
	otp_verified BOOLEAN NOT NULL DEFAULT FALSE,
	otp_code_hash TEXT,
	otp_expires_at TIMESTAMPTZ,
	vendor_name TEXT NOT NULL,
	vendor_email TEXT NOT NULL,
	handler_name TEXT NOT NULL DEFAULT '',
	handler_email TEXT NOT NULL DEFAULT '',
	profile JSONB NOT NULL DEFAULT '{}'::jsonb,
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	first_review_approved BOOLEAN,
	first_review_at TIMESTAMPTZ,
	first_review_by TEXT NOT NULL DEFAULT '',
	vp_approved BOOLEAN,
	vp_at TIMESTAMPTZ,
	vp_by TEXT NOT NULL DEFAULT '',
	procurement_approved BOOLEAN,
	procurement_at TIMESTAMPTZ,
	procurement_by TEXT NOT NULL DEFAULT '',
	requires_vp_approval BOOLEAN NOT NULL DEFAULT FALSE,
	requires_contract_signature BOOLEAN NOT NULL DEFAULT FALSE,
	skip_manager_approval BOOLEAN NOT NULL DEFAULT FALSE,
	contract_file_path TEXT NOT NULL DEFAULT '',
	handler_rejection_reason TEXT NOT NULL DEFAULT '',
	reminder_sent_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT procurement_after_vp CHECK (
		NOT (requires_vp_approval AND procurement_approved IS TRUE AND vp_approved IS NOT TRUE)
	)
);

CREATE INDEX IF NOT EXISTS idx_vendor_requests_status ON vendor_requests(status);
CREATE INDEX IF NOT EXISTS idx_vendor_requests_expires_at ON vendor_requests(expires_at);

CREATE TABLE IF NOT EXISTS vendor_documents (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES vendor_requests(id) ON DELETE CASCADE,
	document_type TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	extracted_tags JSONB,
	uploaded_at TIMESTAMPTZ NOT NULL,
	UNIQUE (request_id, document_type)
);

CREATE TABLE IF NOT EXISTS vendor_status_history (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES vendor_requests(id) ON DELETE CASCADE,
	old_status TEXT NOT NULL DEFAULT '',
	new_status TEXT NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL,
	changed_by TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_vendor_status_history_request ON vendor_status_history(request_id, changed_at, id);

CREATE TABLE IF NOT EXISTS vendor_quotes (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES vendor_requests(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	vendor_token TEXT NOT NULL UNIQUE,
	vp_token TEXT NOT NULL UNIQUE,
	procurement_token TEXT NOT NULL UNIQUE,
	amount NUMERIC(14,2) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	signed_file_path TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ,
	link_sent_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	vp_approved BOOLEAN,
	vp_at TIMESTAMPTZ,
	vp_by TEXT NOT NULL DEFAULT '',
	procurement_approved BOOLEAN,
	procurement_at TIMESTAMPTZ,
	procurement_by TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendor_quotes_request ON vendor_quotes(request_id, created_at);

CREATE TABLE IF NOT EXISTS vendor_receipts (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES vendor_requests(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	amount NUMERIC(14,2) NOT NULL,
	receipt_date DATE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendor_receipts_request ON vendor_receipts(request_id, created_at);
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
