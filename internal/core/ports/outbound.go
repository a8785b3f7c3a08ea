package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

// RequestKey selects a vendor request by internal id or by secure token.
type RequestKey struct {
	ID    string
	Token string
}

func ByID(id string) RequestKey { return RequestKey{ID: id} }

func ByToken(token string) RequestKey { return RequestKey{Token: token} }

// MutateFunc changes a locked request in place. Returning an error aborts the
// transaction without writing anything.
type MutateFunc func(req *domain.VendorRequest) (domain.Mutation, error)

// VendorRequestRepository persists requests and appends audit entries in the
// same transaction as the change.
type VendorRequestRepository interface {
	Create(ctx context.Context, req *domain.VendorRequest, actor string) error
	Get(ctx context.Context, key RequestKey) (*domain.VendorRequest, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.VendorRequest, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]domain.VendorRequest, error)
	Mutate(ctx context.Context, key RequestKey, fn MutateFunc) (*domain.VendorRequest, error)
	Delete(ctx context.Context, id string) error
}

// DocumentRepository stores one document per request and type.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *domain.VendorDocument) error
	GetByID(ctx context.Context, id string) (*domain.VendorDocument, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.VendorDocument, error)
	SaveExtraction(ctx context.Context, id string, fields domain.ExtractedFields) error
	Delete(ctx context.Context, requestID string, docType domain.DocumentType) (*domain.VendorDocument, error)
}

// HistoryRepository reads the append-only audit trail.
type HistoryRepository interface {
	ListByRequest(ctx context.Context, requestID string) ([]domain.StatusHistoryEntry, error)
}

// QuoteKey selects a quote by id, by its vendor token, or by either gate's approval token.
type QuoteKey struct {
	ID            string
	VendorToken   string
	ApprovalToken string
}

type QuoteMutateFunc func(q *domain.Quote) error

// QuoteRepository persists quotes; Mutate runs fn under a row lock.
type QuoteRepository interface {
	Create(ctx context.Context, q *domain.Quote) error
	Get(ctx context.Context, key QuoteKey) (*domain.Quote, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.Quote, error)
	Mutate(ctx context.Context, key QuoteKey, fn QuoteMutateFunc) (*domain.Quote, error)
}

type ReceiptMutateFunc func(r *domain.Receipt) error

// ReceiptRepository persists vendor receipts; Mutate runs fn under a row lock.
type ReceiptRepository interface {
	Create(ctx context.Context, r *domain.Receipt) error
	Get(ctx context.Context, id string) (*domain.Receipt, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.Receipt, error)
	Mutate(ctx context.Context, id string, fn ReceiptMutateFunc) (*domain.Receipt, error)
	// DeletePending removes the receipt only while it belongs to requestID and is still pending.
	DeletePending(ctx context.Context, requestID, id string) (*domain.Receipt, error)
}

// ObjectStorage stores uploaded files under caller-assigned keys.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventQueue publishes/consumes document upload events for async extraction.
type EventQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// Notifier hands a message to the external delivery service.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// DocumentTextReader turns a stored document into extraction input.
type DocumentTextReader interface {
	Read(ctx context.Context, doc *domain.VendorDocument) (domain.ExtractionInput, error)
}

// FieldExtractor is the black-box extraction service. A nil result means nothing was found.
type FieldExtractor interface {
	Extract(ctx context.Context, in domain.ExtractionInput, docType domain.DocumentType) (*domain.ExtractedFields, error)
}

// StreetLookup searches streets within a city.
type StreetLookup interface {
	Search(ctx context.Context, city, query string) ([]string, error)
}

// ReferenceData exposes the closed city and bank sets.
type ReferenceData interface {
	Cities() []string
	Banks() []domain.Bank
	BankByCode(code string) (domain.Bank, bool)
	BankByName(name string) (domain.Bank, bool)
}

// Signer renders an approval signature into a stored document and returns the signed key.
type Signer interface {
	Embed(ctx context.Context, sourceKey string, mark domain.SignatureMark) (string, error)
}

type Clock interface {
	Now() time.Time
}

// Observer receives domain events for metrics.
type Observer interface {
	RecordTransition(from, to domain.RequestStatus)
	RecordGateDecision(gate string, approved bool)
	RecordPasscodeVerification(result string)
	RecordNotificationFailure(template domain.NotificationTemplate)
}
