package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

// ExtractDocumentUseCase fills extracted_tags for one uploaded document.
// Tags are produced once; redelivered events for a processed document are no-ops.
type ExtractDocumentUseCase struct {
	documents ports.DocumentRepository
	reader    ports.DocumentTextReader
	extractor ports.FieldExtractor
}

func NewExtractDocumentUseCase(
	documents ports.DocumentRepository,
	reader ports.DocumentTextReader,
	extractor ports.FieldExtractor,
) *ExtractDocumentUseCase {
	return &ExtractDocumentUseCase{
		documents: documents,
		reader:    reader,
		extractor: extractor,
	}
}

func (uc *ExtractDocumentUseCase) ExtractByID(ctx context.Context, documentID string) error {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.ExtractedTags != nil {
		slog.Debug("extraction_skipped", "document_id", doc.ID, "reason", "already extracted")
		return nil
	}

	input, err := uc.reader.Read(ctx, doc)
	if err != nil {
		return fmt.Errorf("read document content: %w", err)
	}
	if input.Empty() {
		slog.Info("extraction_skipped", "document_id", doc.ID, "reason", "no readable content")
		return nil
	}

	raw, err := uc.extractor.Extract(ctx, input, doc.DocumentType)
	if err != nil {
		return fmt.Errorf("extract fields: %w", err)
	}
	if raw == nil {
		raw = &domain.ExtractedFields{Confidence: domain.ConfidenceLow}
	}

	fields := domain.NormalizeExtracted(*raw)
	if err := uc.documents.SaveExtraction(ctx, doc.ID, fields); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}

	slog.Info("document_extracted",
		"document_id", doc.ID,
		"request_id", doc.RequestID,
		"document_type", doc.DocumentType,
		"fields", fields.FilledCount(),
		"confidence", fields.Confidence,
		"model", fields.Model,
	)
	return nil
}
