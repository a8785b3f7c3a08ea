package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

var documentColumnNames = []string{"id", "request_id", "document_type", "file_name", "file_path", "mime_type", "extracted_tags", "uploaded_at"}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, request_id, document_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertResetsExtractedTags(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	doc := &domain.VendorDocument{
		ID:           "d2",
		RequestID:    "r1",
		DocumentType: domain.DocTaxCert,
		FileName:     "tax.pdf",
		FilePath:     "requests/r1/tax_cert/tax.pdf",
		MimeType:     "application/pdf",
		UploadedAt:   fixedNow,
	}
	mock.ExpectExec("INSERT INTO vendor_documents .* ON CONFLICT \\(request_id, document_type\\) DO UPDATE SET .*extracted_tags = NULL").
		WithArgs("d2", "r1", "tax_cert", "tax.pdf", "requests/r1/tax_cert/tax.pdf", "application/pdf", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Upsert(context.Background(), doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveExtractionReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE vendor_documents SET extracted_tags").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveExtraction(context.Background(), "missing", domain.ExtractedFields{CompanyID: "123456789", Confidence: domain.ConfidenceHigh})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByRequestDecodesTags(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, request_id, document_type").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(documentColumnNames).
			AddRow("d1", "r1", "bank_confirmation", "bank.png", "k1", "image/png", []byte(`{"bank_number":"12","confidence":"high"}`), fixedNow).
			AddRow("d2", "r1", "tax_cert", "tax.pdf", "k2", "application/pdf", nil, fixedNow).
			AddRow("d3", "r1", "bookkeeping_cert", "bk.pdf", "k3", "application/pdf", []byte(`not json`), fixedNow))

	docs, err := repo.ListByRequest(context.Background(), "r1")
	if err != nil {
		t.Fatalf("ListByRequest() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	if docs[0].ExtractedTags == nil || docs[0].ExtractedTags.BankNumber != "12" {
		t.Fatalf("expected decoded tags, got %+v", docs[0].ExtractedTags)
	}
	if docs[1].ExtractedTags != nil || docs[2].ExtractedTags != nil {
		t.Fatalf("expected nil tags for null and malformed rows")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsRemovedDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("DELETE FROM vendor_documents .* RETURNING").
		WithArgs("r1", "tax_cert").
		WillReturnRows(sqlmock.NewRows(documentColumnNames).
			AddRow("d2", "r1", "tax_cert", "tax.pdf", "k2", "application/pdf", nil, fixedNow))

	doc, err := repo.Delete(context.Background(), "r1", domain.DocTaxCert)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if doc.FilePath != "k2" {
		t.Fatalf("expected removed file path, got %q", doc.FilePath)
	}

	mock.ExpectQuery("DELETE FROM vendor_documents .* RETURNING").
		WithArgs("r1", "tax_cert").
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.Delete(context.Background(), "r1", domain.DocTaxCert); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
