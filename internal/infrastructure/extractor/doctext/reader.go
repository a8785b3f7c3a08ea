package doctext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const defaultMaxBytes = 20 << 20

// Reader turns a stored upload into extraction input: the PDF text layer,
// UTF-8 text, or the raw image for a vision model.
type Reader struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewReader(storage ports.ObjectStorage, maxBytes int64) *Reader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Reader{storage: storage, maxBytes: maxBytes}
}

func (r *Reader) Read(ctx context.Context, doc *domain.VendorDocument) (domain.ExtractionInput, error) {
	src, err := r.storage.Open(ctx, doc.FilePath)
	if err != nil {
		return domain.ExtractionInput{}, fmt.Errorf("open source document: %w", err)
	}
	defer src.Close()

	raw, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return domain.ExtractionInput{}, fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > r.maxBytes {
		return domain.ExtractionInput{}, domain.WrapError(domain.ErrValidationFailed, "read source document",
			fmt.Errorf("%s exceeds %d bytes", doc.FileName, r.maxBytes))
	}

	mime := detectMime(doc.MimeType, raw)
	switch {
	case mime == "application/pdf":
		text, err := pdfText(raw)
		if err != nil {
			return domain.ExtractionInput{}, fmt.Errorf("read pdf text layer: %w", err)
		}
		if text == "" {
			// Scanned PDFs carry no text layer and vision models take raster images only.
			slog.Info("pdf_without_text_layer", "document_id", doc.ID, "file_name", doc.FileName)
		}
		return domain.ExtractionInput{Text: text, MimeType: mime}, nil
	case strings.HasPrefix(mime, "image/"):
		return domain.ExtractionInput{Image: raw, MimeType: mime}, nil
	case utf8.Valid(raw):
		return domain.ExtractionInput{Text: strings.TrimSpace(string(raw)), MimeType: "text/plain"}, nil
	default:
		slog.Info("unsupported_document_format", "document_id", doc.ID, "mime_type", mime)
		return domain.ExtractionInput{}, nil
	}
}

func detectMime(declared string, raw []byte) string {
	if bytes.HasPrefix(raw, []byte("%PDF-")) {
		return "application/pdf"
	}
	sniffed := http.DetectContentType(raw)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return strings.SplitN(sniffed, ";", 2)[0]
}

func pdfText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
