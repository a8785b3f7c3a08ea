package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

const documentColumns = `id, request_id, document_type, file_name, file_path, mime_type, extracted_tags, uploaded_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert keeps one row per (request, type). A replacement resets extracted tags.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.VendorDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO vendor_documents (id, request_id, document_type, file_name, file_path, mime_type, extracted_tags, uploaded_at)
VALUES ($1,$2,$3,$4,$5,$6,NULL,$7)
ON CONFLICT (request_id, document_type) DO UPDATE SET
	id = EXCLUDED.id,
	file_name = EXCLUDED.file_name,
	file_path = EXCLUDED.file_path,
	mime_type = EXCLUDED.mime_type,
	extracted_tags = NULL,
	uploaded_at = EXCLUDED.uploaded_at
`, doc.ID, doc.RequestID, string(doc.DocumentType), doc.FileName, doc.FilePath, doc.MimeType, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.VendorDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM vendor_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.VendorDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM vendor_documents
WHERE request_id = $1
ORDER BY document_type
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.VendorDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, fields domain.ExtractedFields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal extracted tags: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE vendor_documents SET extracted_tags = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("save extracted tags: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save extracted tags rows affected: %w", err)
	}
	if affected == 0 {
		// The document was replaced while the worker was extracting.
		return domain.WrapError(domain.ErrNotFound, "save extracted tags", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, requestID string, docType domain.DocumentType) (*domain.VendorDocument, error) {
	row := r.db.QueryRowContext(ctx, `
DELETE FROM vendor_documents
WHERE request_id = $1 AND document_type = $2
RETURNING `+documentColumns, requestID, string(docType))
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "delete document", fmt.Errorf("no %s document", docType))
		}
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return doc, nil
}

func scanDocument(row rowScanner) (*domain.VendorDocument, error) {
	var (
		doc     domain.VendorDocument
		docType string
		tagsRaw []byte
	)
	if err := row.Scan(&doc.ID, &doc.RequestID, &docType, &doc.FileName, &doc.FilePath, &doc.MimeType, &tagsRaw, &doc.UploadedAt); err != nil {
		return nil, err
	}
	doc.DocumentType = domain.DocumentType(docType)
	if len(tagsRaw) > 0 {
		var tags domain.ExtractedFields
		// Unparseable tags count as no extraction.
		if err := json.Unmarshal(tagsRaw, &tags); err == nil {
			doc.ExtractedTags = &tags
		}
	}
	return &doc, nil
}
