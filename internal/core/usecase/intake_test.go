package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

type intakeEnv struct {
	clock     *fakeClock
	requests  *requestRepoFake
	documents *documentRepoFake
	storage   *storageFake
	queue     *queueFake
	notifier  *notifierFake
	uc        *VendorIntakeUseCase
}

func newIntakeEnv(req domain.VendorRequest) *intakeEnv {
	env := &intakeEnv{
		clock:     &fakeClock{now: baseTime},
		documents: newDocumentRepoFake(),
		storage:   newStorageFake(),
		queue:     &queueFake{},
		notifier:  &notifierFake{},
	}
	env.requests = newRequestRepoFake(env.clock)
	env.requests.put(req)
	reference := newReferenceFake()
	env.uc = NewVendorIntakeUseCase(
		env.requests,
		env.documents,
		env.storage,
		env.queue,
		NewValidator(reference, nil),
		reference,
		env.notifier,
		Links{BaseURL: "https://onboarding.test"},
		WithClock(env.clock),
	)
	return env
}

func verifiedVendorRequest() domain.VendorRequest {
	req := submittedRequest("r1", domain.RequestFlags{})
	req.Status = domain.RequestWithVendor
	return req
}

func (env *intakeEnv) uploadAll(t *testing.T) {
	t.Helper()
	for _, docType := range domain.RequiredDocumentTypes {
		if _, err := env.uc.UploadDocument(context.Background(), "token-r1", docType, string(docType)+".pdf", "application/pdf", strings.NewReader("%PDF-1.4")); err != nil {
			t.Fatalf("upload %s: %v", docType, err)
		}
	}
}

func TestUpdateProfileRequiresVerifiedPasscode(t *testing.T) {
	req := verifiedVendorRequest()
	req.OTPVerified = false
	env := newIntakeEnv(req)

	_, err := env.uc.UpdateProfile(context.Background(), "token-r1", map[domain.FieldName]string{domain.FieldCity: "חיפה"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateProfileRejectsUnknownField(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())

	_, err := env.uc.UpdateProfile(context.Background(), "token-r1", map[domain.FieldName]string{"favourite_colour": "blue"})
	validation, ok := domain.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validation.Fields["favourite_colour"] != "unknown field" {
		t.Fatalf("unexpected fields %+v", validation.Fields)
	}
}

func TestUpdateProfileClearsEditedWarnings(t *testing.T) {
	req := verifiedVendorRequest()
	req.Warnings = []domain.Warning{{Field: domain.FieldCity, Message: "unknown"}, {Field: domain.FieldMobile, Message: "format"}}
	env := newIntakeEnv(req)

	out, err := env.uc.UpdateProfile(context.Background(), "token-r1", map[domain.FieldName]string{domain.FieldCity: " חיפה "})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Request.Profile.City != "חיפה" {
		t.Fatalf("expected trimmed city, got %q", out.Request.Profile.City)
	}
	if len(out.Request.Warnings) != 1 || out.Request.Warnings[0].Field != domain.FieldMobile {
		t.Fatalf("unexpected warnings %+v", out.Request.Warnings)
	}
}

func TestUpdateProfileOnSubmittedRequestIsBlocked(t *testing.T) {
	env := newIntakeEnv(submittedRequest("r1", domain.RequestFlags{}))
	_, err := env.uc.UpdateProfile(context.Background(), "token-r1", map[domain.FieldName]string{domain.FieldCity: "חיפה"})
	requireBlocked(t, err, domain.BlockStatusNotEligible)
}

func TestUploadDocumentReplacesPreviousAndQueuesExtraction(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	ctx := context.Background()

	first, err := env.uc.UploadDocument(ctx, "token-r1", domain.DocTaxCert, "tax cert.pdf", "application/pdf", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(first.FilePath, "requests/r1/tax_cert/") || !strings.HasSuffix(first.FilePath, "_tax_cert.pdf") {
		t.Fatalf("unexpected key %q", first.FilePath)
	}

	env.clock.Advance(time.Minute)
	second, err := env.uc.UploadDocument(ctx, "token-r1", domain.DocTaxCert, "tax.pdf", "application/pdf", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}

	docs, _ := env.documents.ListByRequest(ctx, "r1")
	if len(docs) != 1 || docs[0].ID != second.ID {
		t.Fatalf("expected one replaced document, got %+v", docs)
	}
	if len(env.storage.deleted) != 1 || env.storage.deleted[0] != first.FilePath {
		t.Fatalf("expected old file removed, got %v", env.storage.deleted)
	}
	if len(env.queue.published) != 2 || env.queue.published[1] != second.ID {
		t.Fatalf("unexpected published events %v", env.queue.published)
	}
}

func TestUploadDocumentSurvivesQueueFailure(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	env.queue.err = errors.New("nats unavailable")

	doc, err := env.uc.UploadDocument(context.Background(), "token-r1", domain.DocBankConfirmation, "bank.png", "image/png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("upload must succeed without the queue: %v", err)
	}
	if doc.ExtractedTags != nil {
		t.Fatalf("tags must stay empty")
	}
}

func TestUploadDocumentRejectsUnknownType(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	_, err := env.uc.UploadDocument(context.Background(), "token-r1", "passport", "p.pdf", "application/pdf", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAutofillPersistsWarningsAndApplies(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	ctx := context.Background()

	doc, err := env.uc.UploadDocument(ctx, "token-r1", domain.DocBookkeepingCert, "books.pdf", "application/pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := env.documents.SaveExtraction(ctx, doc.ID, domain.ExtractedFields{CompanyID: "12345678", City: "חיפה", Mobile: "0521234567"}); err != nil {
		t.Fatalf("save extraction: %v", err)
	}

	result, err := env.uc.Autofill(ctx, "token-r1")
	if err != nil {
		t.Fatalf("autofill: %v", err)
	}
	if result.Candidate.Fields.CompanyID != "12345678" {
		t.Fatalf("unexpected candidate %+v", result.Candidate.Fields)
	}
	fields := warningFields(result.Warnings)
	if _, ok := fields[domain.FieldCompanyID]; !ok {
		t.Fatalf("expected company id warning, got %+v", result.Warnings)
	}
	stored, _ := env.requests.Get(ctx, ports.ByToken("token-r1"))
	if len(stored.Warnings) != len(result.Warnings) {
		t.Fatalf("warnings must be persisted, got %+v", stored.Warnings)
	}
	if stored.Profile.CompanyID != "" {
		t.Fatalf("autofill must not write the profile")
	}

	if _, err := env.uc.UpdateProfile(ctx, "token-r1", map[domain.FieldName]string{domain.FieldCity: "ירושלים"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, err := env.uc.ApplyAutofill(ctx, "token-r1", true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Request.Profile.City != "ירושלים" {
		t.Fatalf("only-empty apply must keep vendor input, got %q", out.Request.Profile.City)
	}
	if out.Request.Profile.Mobile != "0521234567" {
		t.Fatalf("expected mobile from candidate, got %q", out.Request.Profile.Mobile)
	}
}

func TestSubmitRequiresAllDocuments(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	ctx := context.Background()
	if _, err := env.uc.UploadDocument(ctx, "token-r1", domain.DocTaxCert, "tax.pdf", "application/pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err := env.uc.Submit(ctx, "token-r1", domain.SubmitInput{})
	requireBlocked(t, err, domain.BlockDocumentsMissing)
	blocked, _ := domain.AsBlocked(err)
	if !strings.Contains(blocked.Detail, "bookkeeping_cert") || strings.Contains(blocked.Detail, "tax_cert") {
		t.Fatalf("unexpected missing list %q", blocked.Detail)
	}
}

func TestSubmitReportsHardErrors(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	env.uploadAll(t)

	_, err := env.uc.Submit(context.Background(), "token-r1", domain.SubmitInput{
		Patch: map[domain.FieldName]string{domain.FieldCompanyID: "12-345678"},
	})
	validation, ok := domain.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := validation.Fields[domain.FieldCompanyID]; !ok {
		t.Fatalf("expected company id error, got %+v", validation.Fields)
	}
	stored, _ := env.requests.Get(context.Background(), ports.ByToken("token-r1"))
	if stored.Profile.CompanyID != "" {
		t.Fatalf("rejected submit must not persist the patch")
	}
}

func TestSubmitNeedsWarningAcknowledgement(t *testing.T) {
	req := verifiedVendorRequest()
	req.Profile = completeProfile()
	req.Warnings = []domain.Warning{{Field: domain.FieldStreet, Message: "street was not found"}}
	env := newIntakeEnv(req)
	env.uploadAll(t)
	ctx := context.Background()

	_, err := env.uc.Submit(ctx, "token-r1", domain.SubmitInput{})
	requireBlocked(t, err, domain.BlockWarningsUnacknowledged)

	out, err := env.uc.Submit(ctx, "token-r1", domain.SubmitInput{AcknowledgeWarnings: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Request.Status != domain.RequestSubmitted {
		t.Fatalf("expected submitted, got %s", out.Request.Status)
	}
	sent := env.notifier.last()
	if sent.Template != domain.NotifyHandlerSubmitted || sent.Recipient != "dana@corp.test" {
		t.Fatalf("unexpected notification %+v", sent)
	}
	history, _ := env.requests.ListByRequest(ctx, "r1")
	if len(history) != 1 || history[0].NewStatus != domain.RequestSubmitted || history[0].ChangedBy != "vendor:vendor@acme.test" {
		t.Fatalf("unexpected history %+v", history)
	}

	_, err = env.uc.Submit(ctx, "token-r1", domain.SubmitInput{AcknowledgeWarnings: true})
	requireBlocked(t, err, domain.BlockStatusNotEligible)
}

func TestSubmitEditClearsWarning(t *testing.T) {
	req := verifiedVendorRequest()
	req.Profile = completeProfile()
	req.Warnings = []domain.Warning{{Field: domain.FieldStreet, Message: "street was not found"}}
	env := newIntakeEnv(req)
	env.uploadAll(t)

	out, err := env.uc.Submit(context.Background(), "token-r1", domain.SubmitInput{
		Patch: map[domain.FieldName]string{domain.FieldStreet: "שדרות הנשיא"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(out.Request.Warnings) != 0 {
		t.Fatalf("edited field warning must clear, got %+v", out.Request.Warnings)
	}
}

func TestVendorActionsAfterExpiry(t *testing.T) {
	env := newIntakeEnv(verifiedVendorRequest())
	env.clock.now = baseTime.Add(7*24*time.Hour + time.Second)

	_, err := env.uc.UpdateProfile(context.Background(), "token-r1", map[domain.FieldName]string{domain.FieldCity: "חיפה"})
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}
