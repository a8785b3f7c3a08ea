package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

const (
	modelFast     = "fast"
	modelAccurate = "accurate"

	minFieldsBeforeRetry       = 3
	minFieldsAtMediumConfident = 5
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// FieldExtractor runs the fast model first and falls back to the accurate one
// when the first pass looks weak.
type FieldExtractor struct {
	client        *Client
	fastModel     string
	accurateModel string
}

func NewFieldExtractor(client *Client, fastModel, accurateModel string) *FieldExtractor {
	return &FieldExtractor{client: client, fastModel: fastModel, accurateModel: accurateModel}
}

func (e *FieldExtractor) Extract(ctx context.Context, in domain.ExtractionInput, docType domain.DocumentType) (*domain.ExtractedFields, error) {
	if in.Empty() {
		return nil, nil
	}

	first, err := e.client.extract(ctx, e.fastModel, in, docType)
	if err != nil {
		return nil, wrapUnavailableIfNeeded("extract fields", err)
	}
	first.Model = modelFast

	if e.accurateModel == "" || e.accurateModel == e.fastModel || !needsAccuratePass(first) {
		return &first, nil
	}

	slog.Info("extraction_retry_accurate",
		"document_type", string(docType),
		"confidence", string(first.Confidence),
		"fields_found", first.FilledCount(),
	)
	second, err := e.client.extract(ctx, e.accurateModel, in, docType)
	if err != nil {
		slog.Warn("extraction_accurate_failed", "document_type", string(docType), "error", err)
		return &first, nil
	}
	if !improves(second, first) {
		return &first, nil
	}
	second.Model = modelAccurate
	return &second, nil
}

func needsAccuratePass(r domain.ExtractedFields) bool {
	found := r.FilledCount()
	switch {
	case r.Confidence == domain.ConfidenceLow:
		return true
	case found < minFieldsBeforeRetry:
		return true
	case r.Confidence == domain.ConfidenceMedium && found < minFieldsAtMediumConfident:
		return true
	default:
		return false
	}
}

func improves(retry, first domain.ExtractedFields) bool {
	if retry.FilledCount() > first.FilledCount() {
		return true
	}
	if retry.Confidence == domain.ConfidenceHigh && first.Confidence != domain.ConfidenceHigh {
		return true
	}
	return retry.Confidence == domain.ConfidenceMedium && first.Confidence == domain.ConfidenceLow
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

func (c *Client) extract(ctx context.Context, model string, in domain.ExtractionInput, docType domain.DocumentType) (domain.ExtractedFields, error) {
	req := generateRequest{
		Model:   model,
		Prompt:  buildExtractionPrompt(docType, in.Text),
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0.1},
	}
	if in.Text == "" && len(in.Image) > 0 {
		req.Images = []string{base64.StdEncoding.EncodeToString(in.Image)}
	}

	raw, err := c.generate(ctx, req)
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	return parseExtraction(raw)
}

func (c *Client) generate(ctx context.Context, req generateRequest) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", req, &response, "generate")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func parseExtraction(raw string) (domain.ExtractedFields, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &fields); err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("parse extraction json: %w", err)
	}
	get := func(key string) string {
		switch v := fields[key].(type) {
		case string:
			v = strings.TrimSpace(v)
			if strings.EqualFold(v, "null") {
				return ""
			}
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}

	out := domain.ExtractedFields{
		CompanyID:     get("company_id"),
		CompanyName:   get("company_name"),
		Phone:         get("phone"),
		Mobile:        get("mobile"),
		Fax:           get("fax"),
		Email:         get("email"),
		City:          get("city"),
		Street:        get("street"),
		StreetNumber:  get("street_number"),
		PostalCode:    get("postal_code"),
		BankNumber:    get("bank_number"),
		BranchNumber:  get("branch_number"),
		AccountNumber: get("account_number"),
		Notes:         get("notes"),
	}
	switch c := domain.Confidence(strings.ToLower(get("confidence"))); c {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		out.Confidence = c
	default:
		out.Confidence = domain.ConfidenceLow
	}
	return out, nil
}
