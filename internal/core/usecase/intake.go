package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

type VendorIntakeUseCase struct {
	requests  ports.VendorRequestRepository
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.EventQueue
	validator *Validator
	reference ports.ReferenceData
	notify    notifySender
	links     Links
	opts      options
}

func NewVendorIntakeUseCase(
	requests ports.VendorRequestRepository,
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.EventQueue,
	validator *Validator,
	reference ports.ReferenceData,
	notifier ports.Notifier,
	links Links,
	opts ...Option,
) *VendorIntakeUseCase {
	o := buildOptions(opts)
	return &VendorIntakeUseCase{
		requests:  requests,
		documents: documents,
		storage:   storage,
		queue:     queue,
		validator: validator,
		reference: reference,
		notify:    notifySender{notifier: notifier, observer: o.observer},
		links:     links,
		opts:      o,
	}
}

func (uc *VendorIntakeUseCase) UpdateProfile(ctx context.Context, token string, patch map[domain.FieldName]string) (*domain.RequestOutcome, error) {
	now := uc.opts.clock.Now()
	req, err := uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if err := vendorGuard(req, now); err != nil {
			return domain.Mutation{}, err
		}
		if err := req.Profile.ApplyPatch(patch); err != nil {
			return domain.Mutation{}, err
		}
		req.Warnings = ClearWarnings(req.Warnings, patchFields(patch))
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &domain.RequestOutcome{Request: req}, nil
}

// UploadDocument replaces any earlier file of the same type and queues extraction.
// A queue failure only costs the autofill suggestion.
func (uc *VendorIntakeUseCase) UploadDocument(
	ctx context.Context,
	token string,
	docType domain.DocumentType,
	filename, mimeType string,
	body io.Reader,
) (*domain.VendorDocument, error) {
	if !docType.Valid() {
		return nil, domain.FieldError("document_type", "unknown document type")
	}
	now := uc.opts.clock.Now()
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if err := vendorGuard(req, now); err != nil {
		return nil, err
	}

	previous, err := uc.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	id := uuid.NewString()
	key := storageKey("requests", req.ID, string(docType), fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)))
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.VendorDocument{
		ID:           id,
		RequestID:    req.ID,
		DocumentType: docType,
		FileName:     filename,
		FilePath:     key,
		MimeType:     mimeType,
		UploadedAt:   now,
	}
	if err := uc.documents.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document metadata: %w", err)
	}

	for _, old := range previous {
		if old.DocumentType == docType && old.FilePath != key {
			if err := uc.storage.Delete(ctx, old.FilePath); err != nil {
				slog.Warn("storage_delete_failed", "request_id", req.ID, "key", old.FilePath, "error", err)
			}
		}
	}

	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		slog.Warn("extraction_enqueue_failed",
			"request_id", req.ID,
			"document_id", doc.ID,
			"document_type", docType,
			"error", err,
		)
	}
	return doc, nil
}

func (uc *VendorIntakeUseCase) DeleteDocument(ctx context.Context, token string, docType domain.DocumentType) error {
	if !docType.Valid() {
		return domain.FieldError("document_type", "unknown document type")
	}
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if err := vendorGuard(req, uc.opts.clock.Now()); err != nil {
		return err
	}
	doc, err := uc.documents.Delete(ctx, req.ID, docType)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := uc.storage.Delete(ctx, doc.FilePath); err != nil {
		slog.Warn("storage_delete_failed", "request_id", req.ID, "key", doc.FilePath, "error", err)
	}
	return nil
}

// Autofill reconciles all stored extractions, validates the candidate and
// stores the resulting warnings as the outstanding set.
func (uc *VendorIntakeUseCase) Autofill(ctx context.Context, token string) (*domain.AutofillResult, error) {
	now := uc.opts.clock.Now()
	req, candidate, err := uc.candidate(ctx, token)
	if err != nil {
		return nil, err
	}

	warnings := uc.validator.Validate(ctx, candidate.Fields)
	merged := req.Profile
	merged.Merge(candidate.Fields, true)
	hard := onlyFields(uc.validator.HardErrors(merged), candidate.Fields)

	_, err = uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if err := vendorGuard(req, now); err != nil {
			return domain.Mutation{}, err
		}
		req.Warnings = warnings
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store warnings: %w", err)
	}

	if warnings == nil {
		warnings = []domain.Warning{}
	}
	return &domain.AutofillResult{
		Candidate: candidate,
		Warnings:  warnings,
		Issues:    Consolidate(warnings, hard),
	}, nil
}

// ApplyAutofill copies the candidate into the profile. With onlyEmpty set,
// values the vendor already typed are kept.
func (uc *VendorIntakeUseCase) ApplyAutofill(ctx context.Context, token string, onlyEmpty bool) (*domain.RequestOutcome, error) {
	now := uc.opts.clock.Now()
	_, candidate, err := uc.candidate(ctx, token)
	if err != nil {
		return nil, err
	}

	req, err := uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if err := vendorGuard(req, now); err != nil {
			return domain.Mutation{}, err
		}
		req.Profile.Merge(candidate.Fields, onlyEmpty)
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply autofill: %w", err)
	}
	return &domain.RequestOutcome{Request: req}, nil
}

func (uc *VendorIntakeUseCase) Submit(ctx context.Context, token string, in domain.SubmitInput) (*domain.RequestOutcome, error) {
	now := uc.opts.clock.Now()
	current, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	docs, err := uc.documents.ListByRequest(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	missing := missingDocuments(docs)

	var before domain.RequestStatus
	req, err := uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		before = req.Status
		if err := vendorGuard(req, now); err != nil {
			return domain.Mutation{}, err
		}
		if err := req.Profile.ApplyPatch(in.Patch); err != nil {
			return domain.Mutation{}, err
		}
		req.Warnings = ClearWarnings(req.Warnings, patchFields(in.Patch))

		if len(missing) > 0 {
			return domain.Mutation{}, domain.Blocked(domain.BlockDocumentsMissing, "missing documents: %s", strings.Join(missing, ", "))
		}
		if hard := uc.validator.HardErrors(req.Profile); len(hard) > 0 {
			return domain.Mutation{}, domain.NewValidationError(hard)
		}
		if len(req.Warnings) > 0 && !in.AcknowledgeWarnings {
			return domain.Mutation{}, domain.Blocked(domain.BlockWarningsUnacknowledged, "%d field warnings must be reviewed before submitting", len(req.Warnings))
		}

		req.Status = domain.RequestSubmitted
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit vendor request: %w", err)
	}
	uc.opts.observer.RecordTransition(before, domain.RequestSubmitted)

	failure := uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyHandlerSubmitted,
		Recipient: req.HandlerEmail,
		Data: map[string]string{
			"vendor_name":  req.VendorName,
			"handler_name": req.HandlerName,
			"request_id":   req.ID,
			"request_link": uc.links.Request(req.ID),
		},
	})
	return &domain.RequestOutcome{Request: req, NotificationError: failure}, nil
}

func (uc *VendorIntakeUseCase) candidate(ctx context.Context, token string) (*domain.VendorRequest, domain.Candidate, error) {
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, domain.Candidate{}, fmt.Errorf("resolve token: %w", err)
	}
	if err := vendorGuard(req, uc.opts.clock.Now()); err != nil {
		return nil, domain.Candidate{}, err
	}
	docs, err := uc.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, domain.Candidate{}, fmt.Errorf("list documents: %w", err)
	}
	return req, Reconcile(docs, uc.reference), nil
}

// vendorGuard applies the access rules every vendor mutation shares.
func vendorGuard(req *domain.VendorRequest, now time.Time) error {
	if req.Expired(now) {
		return expiredError("vendor access", req)
	}
	if !req.OTPVerified {
		return domain.WrapError(domain.ErrUnauthorized, "vendor access", fmt.Errorf("passcode not verified"))
	}
	if !req.Status.VendorEditable() {
		return domain.Blocked(domain.BlockStatusNotEligible, "request is %s and can no longer be edited", req.Status)
	}
	return nil
}

func missingDocuments(docs []domain.VendorDocument) []string {
	present := make(map[domain.DocumentType]bool, len(docs))
	for _, doc := range docs {
		present[doc.DocumentType] = true
	}
	var missing []string
	for _, required := range domain.RequiredDocumentTypes {
		if !present[required] {
			missing = append(missing, string(required))
		}
	}
	return missing
}

func patchFields(patch map[domain.FieldName]string) []domain.FieldName {
	fields := make([]domain.FieldName, 0, len(patch))
	for field := range patch {
		fields = append(fields, field)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

func onlyFields(errs map[domain.FieldName]string, candidate domain.ProfileFields) map[domain.FieldName]string {
	out := make(map[domain.FieldName]string)
	for field, message := range errs {
		if candidate.Get(field) != "" {
			out[field] = message
		}
	}
	return out
}
