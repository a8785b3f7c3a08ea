package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/config"
	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const testSecret = "test-secret"

type accessFake struct {
	status  func(token string) (*domain.VendorStatusView, error)
	resolve func(token string) (*domain.VendorRequest, []domain.VendorDocument, error)
	issue   func(token string) (*domain.PasscodeIssue, error)
	verify  func(token, code string) error
}

func (f accessFake) Resolve(_ context.Context, token string) (*domain.VendorRequest, []domain.VendorDocument, error) {
	if f.resolve == nil {
		return &domain.VendorRequest{ID: "req-1", OTPVerified: true}, nil, nil
	}
	return f.resolve(token)
}

func (f accessFake) Status(_ context.Context, token string) (*domain.VendorStatusView, error) {
	if f.status == nil {
		return &domain.VendorStatusView{VendorName: "Acme", Status: domain.RequestWithVendor}, nil
	}
	return f.status(token)
}

func (f accessFake) IssuePasscode(_ context.Context, token string) (*domain.PasscodeIssue, error) {
	if f.issue == nil {
		return &domain.PasscodeIssue{MaskedEmail: "ve***@acme.co.il"}, nil
	}
	return f.issue(token)
}

func (f accessFake) VerifyPasscode(_ context.Context, token, code string) error {
	if f.verify == nil {
		return nil
	}
	return f.verify(token, code)
}

type intakeFake struct {
	update func(patch map[domain.FieldName]string) (*domain.RequestOutcome, error)
	upload func(docType domain.DocumentType, filename string, body []byte) (*domain.VendorDocument, error)
	submit func(in domain.SubmitInput) (*domain.RequestOutcome, error)
	apply  func(onlyEmpty bool) (*domain.RequestOutcome, error)
}

func (f intakeFake) UpdateProfile(_ context.Context, _ string, patch map[domain.FieldName]string) (*domain.RequestOutcome, error) {
	if f.update == nil {
		return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: "req-1"}}, nil
	}
	return f.update(patch)
}

func (f intakeFake) UploadDocument(_ context.Context, _ string, docType domain.DocumentType, filename, _ string, body io.Reader) (*domain.VendorDocument, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.upload == nil {
		return &domain.VendorDocument{ID: "doc-1", DocumentType: docType, FileName: filename}, nil
	}
	return f.upload(docType, filename, raw)
}

func (f intakeFake) DeleteDocument(context.Context, string, domain.DocumentType) error { return nil }

func (f intakeFake) Autofill(context.Context, string) (*domain.AutofillResult, error) {
	return &domain.AutofillResult{}, nil
}

func (f intakeFake) ApplyAutofill(_ context.Context, _ string, onlyEmpty bool) (*domain.RequestOutcome, error) {
	if f.apply == nil {
		return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: "req-1"}}, nil
	}
	return f.apply(onlyEmpty)
}

func (f intakeFake) Submit(_ context.Context, _ string, in domain.SubmitInput) (*domain.RequestOutcome, error) {
	if f.submit == nil {
		return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: "req-1", Status: domain.RequestSubmitted}}, nil
	}
	return f.submit(in)
}

type lifecycleFake struct {
	create func(actor string, in domain.NewRequest) (*domain.RequestOutcome, error)
	decide func(id string, gate domain.GateName, actor string, approve bool, reason string) (*domain.RequestOutcome, error)
	remind func(within time.Duration) (*domain.ReminderReport, error)
}

func (f lifecycleFake) Create(_ context.Context, actor string, in domain.NewRequest) (*domain.RequestOutcome, error) {
	if f.create == nil {
		return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: "req-1"}}, nil
	}
	return f.create(actor, in)
}

func (f lifecycleFake) Get(_ context.Context, id string) (*domain.VendorRequest, error) {
	return &domain.VendorRequest{ID: id}, nil
}

func (f lifecycleFake) List(context.Context, domain.ListFilter) ([]domain.VendorRequest, error) {
	return nil, nil
}

func (f lifecycleFake) Dispatch(_ context.Context, id, _ string) (*domain.RequestOutcome, error) {
	return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: id, Status: domain.RequestWithVendor}}, nil
}

func (f lifecycleFake) DecideGate(_ context.Context, id string, gate domain.GateName, actor string, approve bool, reason string) (*domain.RequestOutcome, error) {
	if f.decide == nil {
		return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: id}}, nil
	}
	return f.decide(id, gate, actor, approve, reason)
}

func (f lifecycleFake) Resend(_ context.Context, id, _, _ string) (*domain.RequestOutcome, error) {
	return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: id, Status: domain.RequestResent}}, nil
}

func (f lifecycleFake) Reject(_ context.Context, id, _, _ string) (*domain.RequestOutcome, error) {
	return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: id, Status: domain.RequestRejected}}, nil
}

func (f lifecycleFake) UploadContract(_ context.Context, id, _, _ string, _ io.Reader) (*domain.RequestOutcome, error) {
	return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: id}}, nil
}

func (f lifecycleFake) Delete(context.Context, string) error { return nil }

func (f lifecycleFake) SendExpiryReminders(_ context.Context, within time.Duration) (*domain.ReminderReport, error) {
	if f.remind == nil {
		return &domain.ReminderReport{}, nil
	}
	return f.remind(within)
}

type quotesFake struct {
	submit  func(token string, in domain.QuoteSubmission) (*domain.QuoteOutcome, error)
	approve func(token, displayName string) (*domain.QuoteOutcome, error)
}

func (f quotesFake) RequestQuote(_ context.Context, requestID, _ string) (*domain.QuoteOutcome, error) {
	return &domain.QuoteOutcome{Quote: &domain.Quote{ID: "q-1", RequestID: requestID}}, nil
}

func (f quotesFake) UploadQuote(_ context.Context, requestID, _ string, _ domain.QuoteSubmission, _ io.Reader) (*domain.QuoteOutcome, error) {
	return &domain.QuoteOutcome{Quote: &domain.Quote{ID: "q-1", RequestID: requestID}}, nil
}

func (f quotesFake) ResolveSubmission(context.Context, string) (*domain.Quote, error) {
	return &domain.Quote{ID: "q-1"}, nil
}

func (f quotesFake) SubmitQuote(_ context.Context, token string, in domain.QuoteSubmission, _ io.Reader) (*domain.QuoteOutcome, error) {
	if f.submit == nil {
		return &domain.QuoteOutcome{Quote: &domain.Quote{ID: "q-1"}}, nil
	}
	return f.submit(token, in)
}

func (f quotesFake) ResolveApproval(context.Context, string) (*domain.QuoteApproval, error) {
	return &domain.QuoteApproval{Quote: &domain.Quote{ID: "q-1"}, Role: domain.RoleVP}, nil
}

func (f quotesFake) Approve(_ context.Context, token, displayName string) (*domain.QuoteOutcome, error) {
	if f.approve == nil {
		return &domain.QuoteOutcome{Quote: &domain.Quote{ID: "q-1"}}, nil
	}
	return f.approve(token, displayName)
}

func (f quotesFake) Reject(context.Context, string, string, string) (*domain.QuoteOutcome, error) {
	return &domain.QuoteOutcome{Quote: &domain.Quote{ID: "q-1", Status: domain.QuoteRejected}}, nil
}

func (f quotesFake) ListForRequest(context.Context, string) ([]domain.Quote, error) {
	return nil, nil
}

type receiptsFake struct {
	upload func(token string, in domain.ReceiptUpload) (*domain.Receipt, error)
	decide func(receiptID, actor string, approve bool, reason string) (*domain.ReceiptOutcome, error)
}

func (f receiptsFake) VendorReceipts(context.Context, string) ([]domain.Receipt, error) {
	return []domain.Receipt{}, nil
}

func (f receiptsFake) UploadReceipt(_ context.Context, token string, in domain.ReceiptUpload, _ io.Reader) (*domain.Receipt, error) {
	if f.upload == nil {
		return &domain.Receipt{ID: "rc-1", Status: domain.ReceiptPending}, nil
	}
	return f.upload(token, in)
}

func (f receiptsFake) DeleteReceipt(context.Context, string, string) error {
	return nil
}

func (f receiptsFake) ListForRequest(context.Context, string) ([]domain.Receipt, error) {
	return []domain.Receipt{}, nil
}

func (f receiptsFake) Decide(_ context.Context, receiptID, actor string, approve bool, reason string) (*domain.ReceiptOutcome, error) {
	if f.decide == nil {
		return &domain.ReceiptOutcome{Receipt: &domain.Receipt{ID: receiptID}}, nil
	}
	return f.decide(receiptID, actor, approve, reason)
}

func (f receiptsFake) SendLink(_ context.Context, requestID, _ string) (*domain.RequestOutcome, error) {
	return &domain.RequestOutcome{Request: &domain.VendorRequest{ID: requestID}}, nil
}

type auditFake struct{}

func (auditFake) History(_ context.Context, requestID string) ([]domain.StatusHistoryEntry, error) {
	return []domain.StatusHistoryEntry{{ID: "1", RequestID: requestID, NewStatus: domain.RequestPending}}, nil
}

type referenceFake struct{}

func (referenceFake) Cities() []string { return []string{"חיפה"} }

func (referenceFake) Banks() []domain.Bank {
	return []domain.Bank{{Code: "12", Name: "בנק הפועלים", AccountDigits: 7}}
}

func (referenceFake) BankByCode(string) (domain.Bank, bool) { return domain.Bank{}, false }

func (referenceFake) BankByName(string) (domain.Bank, bool) { return domain.Bank{}, false }

var (
	_ ports.AccessGate      = accessFake{}
	_ ports.VendorIntake    = intakeFake{}
	_ ports.Lifecycle       = lifecycleFake{}
	_ ports.QuoteWorkflow   = quotesFake{}
	_ ports.ReceiptWorkflow = receiptsFake{}
	_ ports.AuditTrail      = auditFake{}
	_ ports.ReferenceData   = referenceFake{}
)

func defaultDeps() Dependencies {
	return Dependencies{
		Access:    accessFake{},
		Intake:    intakeFake{},
		Lifecycle: lifecycleFake{},
		Quotes:    quotesFake{},
		Receipts:  receiptsFake{},
		Audit:     auditFake{},
		Reference: referenceFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	router, err := NewRouter(cfg, deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := IssueToken(testSecret, Actor{Name: "dana", Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return "Bearer " + token
}
