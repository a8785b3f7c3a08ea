package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

// AccessGate is the inbound contract for token and passcode checks.
type AccessGate interface {
	Resolve(ctx context.Context, token string) (*domain.VendorRequest, []domain.VendorDocument, error)
	Status(ctx context.Context, token string) (*domain.VendorStatusView, error)
	IssuePasscode(ctx context.Context, token string) (*domain.PasscodeIssue, error)
	VerifyPasscode(ctx context.Context, token, code string) error
}

// VendorIntake covers vendor-side actions behind a verified passcode.
type VendorIntake interface {
	UpdateProfile(ctx context.Context, token string, patch map[domain.FieldName]string) (*domain.RequestOutcome, error)
	UploadDocument(ctx context.Context, token string, docType domain.DocumentType, filename, mimeType string, body io.Reader) (*domain.VendorDocument, error)
	DeleteDocument(ctx context.Context, token string, docType domain.DocumentType) error
	Autofill(ctx context.Context, token string) (*domain.AutofillResult, error)
	ApplyAutofill(ctx context.Context, token string, onlyEmpty bool) (*domain.RequestOutcome, error)
	Submit(ctx context.Context, token string, in domain.SubmitInput) (*domain.RequestOutcome, error)
}

// DocumentExtractor is the inbound contract for asynchronous extraction.
type DocumentExtractor interface {
	ExtractByID(ctx context.Context, documentID string) error
}

// Lifecycle covers internal actor transitions.
type Lifecycle interface {
	Create(ctx context.Context, actor string, in domain.NewRequest) (*domain.RequestOutcome, error)
	Get(ctx context.Context, id string) (*domain.VendorRequest, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.VendorRequest, error)
	Dispatch(ctx context.Context, id, actor string) (*domain.RequestOutcome, error)
	DecideGate(ctx context.Context, id string, gate domain.GateName, actor string, approve bool, reason string) (*domain.RequestOutcome, error)
	Resend(ctx context.Context, id, actor, reason string) (*domain.RequestOutcome, error)
	Reject(ctx context.Context, id, actor, reason string) (*domain.RequestOutcome, error)
	UploadContract(ctx context.Context, id, actor, filename string, body io.Reader) (*domain.RequestOutcome, error)
	Delete(ctx context.Context, id string) error
	SendExpiryReminders(ctx context.Context, within time.Duration) (*domain.ReminderReport, error)
}

// QuoteWorkflow covers the quote sub-workflow.
type QuoteWorkflow interface {
	RequestQuote(ctx context.Context, requestID, actor string) (*domain.QuoteOutcome, error)
	UploadQuote(ctx context.Context, requestID, actor string, in domain.QuoteSubmission, body io.Reader) (*domain.QuoteOutcome, error)
	ResolveSubmission(ctx context.Context, vendorToken string) (*domain.Quote, error)
	SubmitQuote(ctx context.Context, vendorToken string, in domain.QuoteSubmission, body io.Reader) (*domain.QuoteOutcome, error)
	ResolveApproval(ctx context.Context, approvalToken string) (*domain.QuoteApproval, error)
	Approve(ctx context.Context, approvalToken, displayName string) (*domain.QuoteOutcome, error)
	Reject(ctx context.Context, approvalToken, displayName, reason string) (*domain.QuoteOutcome, error)
	ListForRequest(ctx context.Context, requestID string) ([]domain.Quote, error)
}

// ReceiptWorkflow covers receipts: vendor uploads after approval and internal review.
type ReceiptWorkflow interface {
	VendorReceipts(ctx context.Context, token string) ([]domain.Receipt, error)
	UploadReceipt(ctx context.Context, token string, in domain.ReceiptUpload, body io.Reader) (*domain.Receipt, error)
	DeleteReceipt(ctx context.Context, token, receiptID string) error
	ListForRequest(ctx context.Context, requestID string) ([]domain.Receipt, error)
	Decide(ctx context.Context, receiptID, actor string, approve bool, reason string) (*domain.ReceiptOutcome, error)
	SendLink(ctx context.Context, requestID, actor string) (*domain.RequestOutcome, error)
}

// AuditTrail is the read side of status history.
type AuditTrail interface {
	History(ctx context.Context, requestID string) ([]domain.StatusHistoryEntry, error)
}
