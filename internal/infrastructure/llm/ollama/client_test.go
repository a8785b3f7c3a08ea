package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

type generateCall struct {
	Model  string
	Prompt string
	Images []string
}

func newOllamaServer(t *testing.T, replies map[string]string) (*httptest.Server, *[]generateCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []generateCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		mu.Lock()
		calls = append(calls, generateCall{Model: payload.Model, Prompt: payload.Prompt, Images: payload.Images})
		mu.Unlock()

		reply, ok := replies[payload.Model]
		if !ok {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": reply})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestExtractKeepsConfidentFastResult(t *testing.T) {
	server, calls := newOllamaServer(t, map[string]string{
		"fast": `{"company_id":"514123456","company_name":"אקמה בע\"מ","phone":"03-1234567","city":"חיפה","email":"info@acme.test","confidence":"high"}`,
	})
	extractor := NewFieldExtractor(New(server.URL, time.Second, nil), "fast", "slow")

	got, err := extractor.Extract(context.Background(), domain.ExtractionInput{Text: "אישור ניהול ספרים"}, domain.DocBookkeepingCert)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.CompanyID != "514123456" || got.Model != modelFast || got.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected only the fast call, got %d", len(*calls))
	}
	if !strings.Contains((*calls)[0].Prompt, "bookkeeping certificate") || !strings.Contains((*calls)[0].Prompt, "אישור ניהול ספרים") {
		t.Fatalf("prompt misses document hint or text: %s", (*calls)[0].Prompt)
	}
}

func TestExtractRetriesWithAccurateModelOnLowConfidence(t *testing.T) {
	server, calls := newOllamaServer(t, map[string]string{
		"fast": `{"bank_number":"12","confidence":"low"}`,
		"slow": "```json\n{\"bank_number\":\"12\",\"branch_number\":\"600\",\"account_number\":\"1234567\",\"confidence\":\"medium\"}\n```",
	})
	extractor := NewFieldExtractor(New(server.URL, time.Second, nil), "fast", "slow")

	got, err := extractor.Extract(context.Background(), domain.ExtractionInput{Image: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, domain.DocBankConfirmation)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Model != modelAccurate || got.AccountNumber != "1234567" {
		t.Fatalf("expected accurate result, got %+v", got)
	}
	if len(*calls) != 2 || (*calls)[1].Model != "slow" {
		t.Fatalf("expected fast then accurate call, got %+v", *calls)
	}
	if len((*calls)[0].Images) != 1 || (*calls)[0].Images[0] != "iVBORw==" {
		t.Fatalf("expected base64 image attachment, got %v", (*calls)[0].Images)
	}
}

func TestExtractKeepsFastResultWhenRetryDoesNotImprove(t *testing.T) {
	server, _ := newOllamaServer(t, map[string]string{
		"fast": `{"company_id":"514123456","company_name":"Acme","confidence":"medium"}`,
		"slow": `{"company_id":"514123456","confidence":"medium"}`,
	})
	extractor := NewFieldExtractor(New(server.URL, time.Second, nil), "fast", "slow")

	got, err := extractor.Extract(context.Background(), domain.ExtractionInput{Text: "x"}, domain.DocTaxCert)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Model != modelFast || got.CompanyName != "Acme" {
		t.Fatalf("expected fast result to win, got %+v", got)
	}
}

func TestExtractToleratesAccurateModelFailure(t *testing.T) {
	server, _ := newOllamaServer(t, map[string]string{
		"fast": `{"confidence":"low"}`,
	})
	extractor := NewFieldExtractor(New(server.URL, time.Second, nil), "fast", "missing-model")

	got, err := extractor.Extract(context.Background(), domain.ExtractionInput{Text: "x"}, domain.DocTaxCert)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Model != modelFast {
		t.Fatalf("expected fast result, got %+v", got)
	}
}

func TestExtractWrapsServerOutageAsDependencyUnavailable(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	extractor := NewFieldExtractor(New(server.URL, time.Second, exec), "fast", "slow")

	_, err := extractor.Extract(context.Background(), domain.ExtractionInput{Text: "x"}, domain.DocTaxCert)
	if !domain.IsKind(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExtractSkipsEmptyInput(t *testing.T) {
	extractor := NewFieldExtractor(New("http://127.0.0.1:1", time.Second, nil), "fast", "slow")
	got, err := extractor.Extract(context.Background(), domain.ExtractionInput{}, domain.DocTaxCert)
	if err != nil || got != nil {
		t.Fatalf("expected nil result for empty input, got %+v %v", got, err)
	}
}

func TestParseExtractionNormalizesNullsAndConfidence(t *testing.T) {
	got, err := parseExtraction(`noise {"phone":"null","postal_code":3190501,"confidence":"VERY"} trailing`)
	if err != nil {
		t.Fatalf("parseExtraction() error = %v", err)
	}
	if got.Phone != "" || got.PostalCode != "3190501" || got.Confidence != domain.ConfidenceLow {
		t.Fatalf("unexpected parse %+v", got)
	}
}

func TestNeedsAccuratePass(t *testing.T) {
	cases := []struct {
		name string
		in   domain.ExtractedFields
		want bool
	}{
		{"low confidence", domain.ExtractedFields{CompanyID: "1", CompanyName: "a", City: "b", Street: "c", Email: "d", Confidence: domain.ConfidenceLow}, true},
		{"too few fields", domain.ExtractedFields{CompanyID: "1", CompanyName: "a", Confidence: domain.ConfidenceHigh}, true},
		{"medium with four", domain.ExtractedFields{CompanyID: "1", CompanyName: "a", City: "b", Street: "c", Confidence: domain.ConfidenceMedium}, true},
		{"medium with five", domain.ExtractedFields{CompanyID: "1", CompanyName: "a", City: "b", Street: "c", Email: "d", Confidence: domain.ConfidenceMedium}, false},
		{"high with three", domain.ExtractedFields{CompanyID: "1", CompanyName: "a", City: "b", Confidence: domain.ConfidenceHigh}, false},
	}
	for _, tc := range cases {
		if got := needsAccuratePass(tc.in); got != tc.want {
			t.Fatalf("%s: needsAccuratePass() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
