package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/vendor-onboarding/internal/config"
	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

func TestUploadReceiptParsesAmountAndDate(t *testing.T) {
	deps := defaultDeps()
	deps.Receipts = receiptsFake{upload: func(token string, in domain.ReceiptUpload) (*domain.Receipt, error) {
		if token != "tok-1" || !in.Amount.Equal(decimal.RequireFromString("320.5")) {
			t.Errorf("unexpected upload %s %+v", token, in)
		}
		if !in.ReceiptDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) || in.FileName != "receipt.pdf" {
			t.Errorf("unexpected upload %+v", in)
		}
		return &domain.Receipt{ID: "rc-1", Status: domain.ReceiptPending}, nil
	}}
	handler := newTestHandler(t, config.Config{}, deps)

	body, contentType := multipartBody(t, map[string]string{"amount": "320.50", "receipt_date": "2025-03-01"}, "receipt.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/v1/vendor/tok-1/receipts", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
}

func TestUploadReceiptRejectsBadDate(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultDeps())

	body, contentType := multipartBody(t, map[string]string{"amount": "10", "receipt_date": "01/03/2025"}, "receipt.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/v1/vendor/tok-1/receipts", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Fields["receipt_date"] == "" {
		t.Fatalf("expected receipt_date field error, got %+v", body)
	}
}

func TestUploadReceiptReportsIneligibleRequest(t *testing.T) {
	deps := defaultDeps()
	deps.Receipts = receiptsFake{upload: func(string, domain.ReceiptUpload) (*domain.Receipt, error) {
		return nil, domain.Blocked(domain.BlockStatusNotEligible, "receipts open once the request is approved")
	}}
	handler := newTestHandler(t, config.Config{}, deps)

	body, contentType := multipartBody(t, map[string]string{"amount": "10", "receipt_date": "2025-03-01"}, "receipt.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/v1/vendor/tok-1/receipts", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestDecideReceiptPassesActorAndReason(t *testing.T) {
	deps := defaultDeps()
	deps.Receipts = receiptsFake{decide: func(receiptID, actor string, approve bool, reason string) (*domain.ReceiptOutcome, error) {
		if receiptID != "rc-9" || actor != "dana" || approve || reason != "blurry scan" {
			t.Errorf("unexpected decision %s %s %v %q", receiptID, actor, approve, reason)
		}
		return &domain.ReceiptOutcome{Receipt: &domain.Receipt{ID: receiptID, Status: domain.ReceiptRejected}}, nil
	}}
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodPost, "/v1/receipts/rc-9/decision", strings.NewReader(`{"approve":false,"reason":"blurry scan"}`))
	req.Header.Set("Authorization", bearer(t, RoleHandler))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
}

func TestDecideReceiptForbiddenForApprovers(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultDeps())

	req := httptest.NewRequest(http.MethodPost, "/v1/receipts/rc-9/decision", strings.NewReader(`{"approve":true}`))
	req.Header.Set("Authorization", bearer(t, RoleVP))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestSendReceiptsLinkRequiresHandler(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, defaultDeps())

	req := httptest.NewRequest(http.MethodPost, "/v1/requests/req-1/receipts/link", nil)
	req.Header.Set("Authorization", bearer(t, RoleProcurementManager))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for procurement, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/requests/req-1/receipts/link", nil)
	req.Header.Set("Authorization", bearer(t, RoleHandler))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
}
