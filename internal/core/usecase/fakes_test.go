package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type requestRepoFake struct {
	mu      sync.Mutex
	items   map[string]domain.VendorRequest
	history []domain.StatusHistoryEntry
	seq     int
	now     func() time.Time
}

func newRequestRepoFake(clock *fakeClock) *requestRepoFake {
	return &requestRepoFake{items: map[string]domain.VendorRequest{}, now: clock.Now}
}

func (f *requestRepoFake) put(req domain.VendorRequest) *domain.VendorRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[req.ID] = req
	return &req
}

func (f *requestRepoFake) find(key ports.RequestKey) (domain.VendorRequest, bool) {
	for _, item := range f.items {
		if (key.ID != "" && item.ID == key.ID) || (key.Token != "" && item.SecureToken == key.Token) {
			return item, true
		}
	}
	return domain.VendorRequest{}, false
}

func (f *requestRepoFake) appendHistory(requestID string, from, to domain.RequestStatus, at time.Time, actor, note string) {
	if at.IsZero() {
		at = f.now()
	}
	f.seq++
	f.history = append(f.history, domain.StatusHistoryEntry{
		ID:        fmt.Sprintf("h%03d", f.seq),
		RequestID: requestID,
		OldStatus: from,
		NewStatus: to,
		ChangedAt: at,
		ChangedBy: actor,
		Note:      note,
	})
}

func (f *requestRepoFake) Create(_ context.Context, req *domain.VendorRequest, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[req.ID] = *req
	f.appendHistory(req.ID, "", req.Status, req.CreatedAt, actor, "created")
	return nil
}

func (f *requestRepoFake) Get(_ context.Context, key ports.RequestKey) (*domain.VendorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.find(key)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get vendor request", fmt.Errorf("no request for %+v", key))
	}
	return &item, nil
}

func (f *requestRepoFake) List(_ context.Context, filter domain.ListFilter) ([]domain.VendorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VendorRequest
	for _, item := range f.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *requestRepoFake) ListExpiring(_ context.Context, from, to time.Time) ([]domain.VendorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VendorRequest
	for _, item := range f.items {
		if !item.Status.VendorEditable() || item.ReminderSentAt != nil {
			continue
		}
		if item.ExpiresAt.After(from) && !item.ExpiresAt.After(to) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Mutate works on a copy and only commits it when fn succeeds, like the row-locked transaction.
func (f *requestRepoFake) Mutate(_ context.Context, key ports.RequestKey, fn ports.MutateFunc) (*domain.VendorRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.find(key)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "mutate vendor request", fmt.Errorf("no request for %+v", key))
	}
	before := item.Status
	working := item
	mutation, err := fn(&working)
	if err != nil {
		return nil, err
	}
	f.items[working.ID] = working
	if working.Status != before || mutation.Record {
		f.appendHistory(working.ID, before, working.Status, mutation.At, mutation.Actor, mutation.Note)
	}
	return &working, nil
}

func (f *requestRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete vendor request", fmt.Errorf("no request %s", id))
	}
	delete(f.items, id)
	return nil
}

func (f *requestRepoFake) ListByRequest(_ context.Context, requestID string) ([]domain.StatusHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusHistoryEntry
	for _, entry := range f.history {
		if entry.RequestID == requestID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type documentRepoFake struct {
	mu    sync.Mutex
	items map[string]domain.VendorDocument
}

func newDocumentRepoFake() *documentRepoFake {
	return &documentRepoFake{items: map[string]domain.VendorDocument{}}
}

func (f *documentRepoFake) Upsert(_ context.Context, doc *domain.VendorDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.items {
		if existing.RequestID == doc.RequestID && existing.DocumentType == doc.DocumentType {
			delete(f.items, id)
		}
	}
	f.items[doc.ID] = *doc
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.VendorDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("no document %s", id))
	}
	return &doc, nil
}

func (f *documentRepoFake) ListByRequest(_ context.Context, requestID string) ([]domain.VendorDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VendorDocument
	for _, doc := range f.items {
		if doc.RequestID == requestID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentType < out[j].DocumentType })
	return out, nil
}

func (f *documentRepoFake) SaveExtraction(_ context.Context, id string, fields domain.ExtractedFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "save extraction", fmt.Errorf("no document %s", id))
	}
	doc.ExtractedTags = &fields
	f.items[id] = doc
	return nil
}

func (f *documentRepoFake) Delete(_ context.Context, requestID string, docType domain.DocumentType) (*domain.VendorDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, doc := range f.items {
		if doc.RequestID == requestID && doc.DocumentType == docType {
			delete(f.items, id)
			return &doc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "delete document", fmt.Errorf("no %s document", docType))
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("no object %s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type notifierFake struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *notifierFake) Send(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *notifierFake) last() domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return domain.Notification{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *notifierFake) templates() []domain.NotificationTemplate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NotificationTemplate, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Template)
	}
	return out
}

type referenceFake struct {
	cities []string
	banks  []domain.Bank
}

func newReferenceFake() *referenceFake {
	return &referenceFake{
		cities: []string{"תל אביב - יפו", "חיפה", "ירושלים", "באר שבע"},
		banks: []domain.Bank{
			{Code: "10", Name: "בנק לאומי לישראל", AccountDigits: 8, Branches: []domain.Branch{{Code: "800"}, {Code: "804"}}},
			{Code: "12", Name: "בנק הפועלים", AccountDigits: 7},
			{Code: "20", Name: "בנק מזרחי טפחות", AccountDigits: 6},
		},
	}
}

func (f *referenceFake) Cities() []string { return f.cities }

func (f *referenceFake) Banks() []domain.Bank { return f.banks }

func (f *referenceFake) BankByCode(code string) (domain.Bank, bool) {
	for _, bank := range f.banks {
		if bank.Code == code {
			return bank, true
		}
	}
	return domain.Bank{}, false
}

func (f *referenceFake) BankByName(name string) (domain.Bank, bool) {
	for _, bank := range f.banks {
		if bank.Name == name {
			return bank, true
		}
	}
	return domain.Bank{}, false
}

type streetsFake struct {
	streets map[string][]string
	err     error
	calls   int
}

func (f *streetsFake) Search(_ context.Context, city, query string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, street := range f.streets[city] {
		if strings.Contains(street, query) || strings.Contains(query, street) {
			out = append(out, street)
		}
	}
	return out, nil
}

type observerFake struct {
	transitions []string
	gates       []string
	passcodes   []string
	failures    []domain.NotificationTemplate
}

func (o *observerFake) RecordTransition(from, to domain.RequestStatus) {
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
}

func (o *observerFake) RecordGateDecision(gate string, approved bool) {
	o.gates = append(o.gates, fmt.Sprintf("%s:%t", gate, approved))
}

func (o *observerFake) RecordPasscodeVerification(result string) {
	o.passcodes = append(o.passcodes, result)
}

func (o *observerFake) RecordNotificationFailure(template domain.NotificationTemplate) {
	o.failures = append(o.failures, template)
}

type quoteRepoFake struct {
	mu    sync.Mutex
	items map[string]domain.Quote
}

func newQuoteRepoFake() *quoteRepoFake {
	return &quoteRepoFake{items: map[string]domain.Quote{}}
}

func (f *quoteRepoFake) find(key ports.QuoteKey) (domain.Quote, bool) {
	for _, q := range f.items {
		switch {
		case key.ID != "" && q.ID == key.ID:
			return q, true
		case key.VendorToken != "" && q.VendorToken == key.VendorToken:
			return q, true
		case key.ApprovalToken != "":
			if _, ok := q.ApproverFor(key.ApprovalToken); ok {
				return q, true
			}
		}
	}
	return domain.Quote{}, false
}

func (f *quoteRepoFake) Create(_ context.Context, q *domain.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[q.ID] = *q
	return nil
}

func (f *quoteRepoFake) Get(_ context.Context, key ports.QuoteKey) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.find(key)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get quote", fmt.Errorf("no quote for %+v", key))
	}
	return &q, nil
}

func (f *quoteRepoFake) ListByRequest(_ context.Context, requestID string) ([]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Quote
	for _, q := range f.items {
		if q.RequestID == requestID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *quoteRepoFake) Mutate(_ context.Context, key ports.QuoteKey, fn ports.QuoteMutateFunc) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.find(key)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "mutate quote", fmt.Errorf("no quote for %+v", key))
	}
	working := q
	if err := fn(&working); err != nil {
		return nil, err
	}
	f.items[working.ID] = working
	return &working, nil
}

type receiptRepoFake struct {
	mu    sync.Mutex
	items map[string]domain.Receipt
}

func newReceiptRepoFake() *receiptRepoFake {
	return &receiptRepoFake{items: map[string]domain.Receipt{}}
}

func (f *receiptRepoFake) Create(_ context.Context, r *domain.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[r.ID] = *r
	return nil
}

func (f *receiptRepoFake) Get(_ context.Context, id string) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get receipt", fmt.Errorf("no receipt %s", id))
	}
	return &r, nil
}

func (f *receiptRepoFake) ListByRequest(_ context.Context, requestID string) ([]domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Receipt
	for _, r := range f.items {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *receiptRepoFake) Mutate(_ context.Context, id string, fn ports.ReceiptMutateFunc) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "mutate receipt", fmt.Errorf("no receipt %s", id))
	}
	working := r
	if err := fn(&working); err != nil {
		return nil, err
	}
	f.items[id] = working
	return &working, nil
}

func (f *receiptRepoFake) DeletePending(_ context.Context, requestID, id string) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok || r.RequestID != requestID || r.Status != domain.ReceiptPending {
		return nil, domain.WrapError(domain.ErrNotFound, "delete receipt", fmt.Errorf("no pending receipt %s", id))
	}
	delete(f.items, id)
	return &r, nil
}

type signerFake struct {
	marks []domain.SignatureMark
	err   error
}

func (f *signerFake) Embed(_ context.Context, sourceKey string, mark domain.SignatureMark) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.marks = append(f.marks, mark)
	return sourceKey + ".signed-" + string(mark.Role), nil
}

// submittedRequest is a request ready for gate decisions.
func submittedRequest(id string, flags domain.RequestFlags) domain.VendorRequest {
	return domain.VendorRequest{
		ID:           id,
		Status:       domain.RequestSubmitted,
		SecureToken:  "token-" + id,
		ExpiresAt:    baseTime.Add(7 * 24 * time.Hour),
		OTPVerified:  true,
		VendorName:   "Acme Ltd",
		VendorEmail:  "vendor@acme.test",
		HandlerName:  "Dana",
		HandlerEmail: "dana@corp.test",
		RequestFlags: flags,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}

func boolPtr(v bool) *bool { return &v }
