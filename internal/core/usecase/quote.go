package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const DefaultQuoteLinkValidity = 7 * 24 * time.Hour

type QuoteSettings struct {
	LinkValidity     time.Duration
	VPEmail          string
	ProcurementEmail string
	Links            Links
}

// QuoteUseCase runs the two-gate quote approval: vp, then procurement manager.
type QuoteUseCase struct {
	quotes   ports.QuoteRepository
	requests ports.VendorRequestRepository
	storage  ports.ObjectStorage
	signer   ports.Signer
	notify   notifySender
	settings QuoteSettings
	opts     options
}

func NewQuoteUseCase(
	quotes ports.QuoteRepository,
	requests ports.VendorRequestRepository,
	storage ports.ObjectStorage,
	signer ports.Signer,
	notifier ports.Notifier,
	settings QuoteSettings,
	opts ...Option,
) *QuoteUseCase {
	if settings.LinkValidity <= 0 {
		settings.LinkValidity = DefaultQuoteLinkValidity
	}
	o := buildOptions(opts)
	return &QuoteUseCase{
		quotes:   quotes,
		requests: requests,
		storage:  storage,
		signer:   signer,
		notify:   notifySender{notifier: notifier, observer: o.observer},
		settings: settings,
		opts:     o,
	}
}

func (uc *QuoteUseCase) RequestQuote(ctx context.Context, requestID, actor string) (*domain.QuoteOutcome, error) {
	req, err := uc.eligibleRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := uc.opts.clock.Now()
	expiresAt := now.Add(uc.settings.LinkValidity)
	quote := &domain.Quote{
		ID:            uuid.NewString(),
		RequestID:     req.ID,
		Status:        domain.QuotePendingVendor,
		VendorToken:      uuid.NewString(),
		VPToken:          uuid.NewString(),
		ProcurementToken: uuid.NewString(),
		LinkSentAt:       &now,
		ExpiresAt:        &expiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.quotes.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	slog.Info("quote_requested", "quote_id", quote.ID, "request_id", req.ID, "actor", actor)

	failure := uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyQuoteRequested,
		Recipient: req.VendorEmail,
		Data: map[string]string{
			"vendor_name": req.VendorName,
			"quote_link":  uc.settings.Links.QuoteSubmission(quote.VendorToken),
			"expires_at":  expiresAt.Format(time.RFC3339),
		},
	})
	return &domain.QuoteOutcome{Quote: quote, NotificationError: failure}, nil
}

// UploadQuote is the internal path: the quote skips the vendor step.
func (uc *QuoteUseCase) UploadQuote(
	ctx context.Context,
	requestID, actor string,
	in domain.QuoteSubmission,
	body io.Reader,
) (*domain.QuoteOutcome, error) {
	if err := validateSubmission(in); err != nil {
		return nil, err
	}
	req, err := uc.eligibleRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := uc.opts.clock.Now()
	quote := &domain.Quote{
		ID:               uuid.NewString(),
		RequestID:        req.ID,
		Status:           domain.QuotePendingVP,
		VendorToken:      uuid.NewString(),
		VPToken:          uuid.NewString(),
		ProcurementToken: uuid.NewString(),
		Amount:           in.Amount,
		Description:      strings.TrimSpace(in.Description),
		FileName:         in.FileName,
		SubmittedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	key, err := uc.storeFile(ctx, quote, in.FileName, body)
	if err != nil {
		return nil, err
	}
	quote.FilePath = key
	if err := uc.quotes.Create(ctx, quote); err != nil {
		uc.discard(ctx, key)
		return nil, fmt.Errorf("create quote: %w", err)
	}
	slog.Info("quote_uploaded", "quote_id", quote.ID, "request_id", req.ID, "actor", actor)

	failure := uc.requestApproval(ctx, quote, req, domain.RoleVP)
	return &domain.QuoteOutcome{Quote: quote, NotificationError: failure}, nil
}

func (uc *QuoteUseCase) ResolveSubmission(ctx context.Context, vendorToken string) (*domain.Quote, error) {
	if strings.TrimSpace(vendorToken) == "" {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve quote", fmt.Errorf("empty token"))
	}
	quote, err := uc.quotes.Get(ctx, ports.QuoteKey{VendorToken: vendorToken})
	if err != nil {
		return nil, fmt.Errorf("resolve quote: %w", err)
	}
	if quote.VendorLinkExpired(uc.opts.clock.Now()) {
		return nil, domain.WrapError(domain.ErrExpired, "resolve quote", fmt.Errorf("quote link expired at %s", quote.ExpiresAt.Format(time.RFC3339)))
	}
	return quote, nil
}

// SubmitQuote accepts exactly one vendor submission per quote.
func (uc *QuoteUseCase) SubmitQuote(ctx context.Context, vendorToken string, in domain.QuoteSubmission, body io.Reader) (*domain.QuoteOutcome, error) {
	current, err := uc.ResolveSubmission(ctx, vendorToken)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.QuotePendingVendor {
		return nil, domain.Blocked(domain.BlockQuoteAlreadySubmitted, "quote is %s", current.Status)
	}
	if err := validateSubmission(in); err != nil {
		return nil, err
	}

	key, err := uc.storeFile(ctx, current, in.FileName, body)
	if err != nil {
		return nil, err
	}

	now := uc.opts.clock.Now()
	quote, err := uc.quotes.Mutate(ctx, ports.QuoteKey{VendorToken: vendorToken}, func(q *domain.Quote) error {
		if q.Status != domain.QuotePendingVendor {
			return domain.Blocked(domain.BlockQuoteAlreadySubmitted, "quote is %s", q.Status)
		}
		q.Status = domain.QuotePendingVP
		q.Amount = in.Amount
		q.Description = strings.TrimSpace(in.Description)
		q.FileName = in.FileName
		q.FilePath = key
		q.SubmittedAt = &now
		q.UpdatedAt = now
		return nil
	})
	if err != nil {
		uc.discard(ctx, key)
		return nil, fmt.Errorf("submit quote: %w", err)
	}

	req, err := uc.requests.Get(ctx, ports.ByID(quote.RequestID))
	if err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	failure := uc.requestApproval(ctx, quote, req, domain.RoleVP)
	return &domain.QuoteOutcome{Quote: quote, NotificationError: failure}, nil
}

// ResolveApproval reports the quote and the one gate the token is bound to.
func (uc *QuoteUseCase) ResolveApproval(ctx context.Context, approvalToken string) (*domain.QuoteApproval, error) {
	if strings.TrimSpace(approvalToken) == "" {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve quote approval", fmt.Errorf("empty token"))
	}
	quote, err := uc.quotes.Get(ctx, ports.QuoteKey{ApprovalToken: approvalToken})
	if err != nil {
		return nil, fmt.Errorf("resolve quote approval: %w", err)
	}
	role, ok := quote.ApproverFor(approvalToken)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve quote approval", fmt.Errorf("token is not bound to a gate"))
	}
	return &domain.QuoteApproval{Quote: quote, Role: role}, nil
}

// Approve decides the gate bound to approvalToken. displayName only labels the signature.
func (uc *QuoteUseCase) Approve(ctx context.Context, approvalToken, displayName string) (*domain.QuoteOutcome, error) {
	now := uc.opts.clock.Now()
	var role domain.ApproverRole
	quote, err := uc.quotes.Mutate(ctx, ports.QuoteKey{ApprovalToken: approvalToken}, func(q *domain.Quote) error {
		var err error
		if role, err = gateForToken(q, approvalToken); err != nil {
			return err
		}
		if err := checkQuoteGate(q, role); err != nil {
			return err
		}
		q.Gate(role).Decide(true, domain.ApproverActor(role), now)
		if role == domain.RoleVP {
			q.Status = domain.QuotePendingProcurement
		} else {
			q.Status = domain.QuoteApproved
		}
		q.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve quote: %w", err)
	}
	actor := domain.ApproverActor(role)
	uc.opts.observer.RecordGateDecision("quote_"+string(role), true)
	slog.Info("quote_gate_decided", "quote_id", quote.ID, "role", role, "approved", true, "actor", actor, "display_name", displayName)

	outcome := &domain.QuoteOutcome{Quote: quote}
	mark := domain.SignatureMark{Role: role, SignedBy: signatureLabel(actor, displayName), SignedAt: now}
	if signed, failure := uc.sign(ctx, quote, mark); failure != "" {
		outcome.SignatureError = failure
	} else if signed != nil {
		outcome.Quote = signed
	}

	req, err := uc.requests.Get(ctx, ports.ByID(quote.RequestID))
	if err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	if role == domain.RoleVP {
		outcome.NotificationError = uc.requestApproval(ctx, outcome.Quote, req, domain.RoleProcurementManager)
	} else {
		outcome.NotificationError = uc.notifyDecision(ctx, outcome.Quote, req)
	}
	return outcome, nil
}

func (uc *QuoteUseCase) Reject(ctx context.Context, approvalToken, displayName, reason string) (*domain.QuoteOutcome, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	now := uc.opts.clock.Now()
	var role domain.ApproverRole
	quote, err := uc.quotes.Mutate(ctx, ports.QuoteKey{ApprovalToken: approvalToken}, func(q *domain.Quote) error {
		var err error
		if role, err = gateForToken(q, approvalToken); err != nil {
			return err
		}
		if err := checkQuoteGate(q, role); err != nil {
			return err
		}
		q.Gate(role).Decide(false, domain.ApproverActor(role), now)
		q.Status = domain.QuoteRejected
		q.RejectionReason = reason
		q.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject quote: %w", err)
	}
	uc.opts.observer.RecordGateDecision("quote_"+string(role), false)
	slog.Info("quote_gate_decided", "quote_id", quote.ID, "role", role, "approved", false, "actor", domain.ApproverActor(role), "display_name", displayName)

	req, err := uc.requests.Get(ctx, ports.ByID(quote.RequestID))
	if err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	return &domain.QuoteOutcome{Quote: quote, NotificationError: uc.notifyDecision(ctx, quote, req)}, nil
}

func (uc *QuoteUseCase) ListForRequest(ctx context.Context, requestID string) ([]domain.Quote, error) {
	if _, err := uc.requests.Get(ctx, ports.ByID(requestID)); err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	quotes, err := uc.quotes.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

func gateForToken(q *domain.Quote, token string) (domain.ApproverRole, error) {
	role, ok := q.ApproverFor(token)
	if !ok {
		return "", domain.WrapError(domain.ErrNotFound, "resolve quote gate", fmt.Errorf("token is not bound to a gate"))
	}
	return role, nil
}

func signatureLabel(actor, displayName string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return fmt.Sprintf("%s (%s)", name, actor)
	}
	return actor
}

// checkQuoteGate enforces vp before procurement and a still-pending gate.
func checkQuoteGate(q *domain.Quote, role domain.ApproverRole) error {
	if q.Status.Terminal() {
		return domain.Blocked(domain.BlockStatusNotEligible, "quote is already %s", q.Status)
	}
	if !q.Gate(role).Pending() {
		return domain.Blocked(domain.BlockGateAlreadyDecided, "%s already decided", role)
	}
	switch role {
	case domain.RoleVP:
		if q.Status != domain.QuotePendingVP {
			return domain.Blocked(domain.BlockStatusNotEligible, "quote is %s", q.Status)
		}
	case domain.RoleProcurementManager:
		if !q.VP.IsApproved() {
			return domain.Blocked(domain.BlockVPPending, "vp has not approved the quote")
		}
		if q.Status != domain.QuotePendingProcurement {
			return domain.Blocked(domain.BlockStatusNotEligible, "quote is %s", q.Status)
		}
	}
	return nil
}

func validateSubmission(in domain.QuoteSubmission) error {
	if !in.Amount.IsPositive() {
		return domain.FieldError("amount", "amount must be greater than zero")
	}
	return nil
}

func (uc *QuoteUseCase) eligibleRequest(ctx context.Context, requestID string) (*domain.VendorRequest, error) {
	req, err := uc.requests.Get(ctx, ports.ByID(requestID))
	if err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	if req.Status != domain.RequestApproved && req.Status != domain.RequestSubmitted {
		return nil, domain.Blocked(domain.BlockStatusNotEligible, "quotes need a submitted or approved request, found %s", req.Status)
	}
	return req, nil
}

func (uc *QuoteUseCase) storeFile(ctx context.Context, quote *domain.Quote, filename string, body io.Reader) (string, error) {
	if body == nil {
		return "", domain.FieldError("file", "a quote document is required")
	}
	key := storageKey("requests", quote.RequestID, "quotes", fmt.Sprintf("%s_%s", quote.ID, sanitizeFilename(filename)))
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("save quote file: %w", err)
	}
	return key, nil
}

func (uc *QuoteUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		slog.Warn("storage_delete_failed", "key", key, "error", err)
	}
}

// sign embeds the approver's mark. The gate decision stands whatever happens here.
func (uc *QuoteUseCase) sign(ctx context.Context, quote *domain.Quote, mark domain.SignatureMark) (*domain.Quote, string) {
	if uc.signer == nil || quote.FilePath == "" {
		return nil, ""
	}
	source := quote.FilePath
	if quote.SignedFilePath != "" {
		source = quote.SignedFilePath
	}
	signedKey, err := uc.signer.Embed(ctx, source, mark)
	if err != nil {
		slog.Warn("signature_embed_failed", "quote_id", quote.ID, "role", mark.Role, "error", err)
		return nil, fmt.Sprintf("signature embedding failed: %v", err)
	}
	var superseded string
	updated, err := uc.quotes.Mutate(ctx, ports.QuoteKey{ID: quote.ID}, func(q *domain.Quote) error {
		superseded = q.SignedFilePath
		q.SignedFilePath = signedKey
		return nil
	})
	if err != nil {
		slog.Warn("signature_record_failed", "quote_id", quote.ID, "error", err)
		return nil, fmt.Sprintf("signature record failed: %v", err)
	}
	// The newest signed copy carries every earlier signature.
	if superseded != "" && superseded != signedKey {
		uc.discard(ctx, superseded)
	}
	return updated, ""
}

func (uc *QuoteUseCase) requestApproval(ctx context.Context, quote *domain.Quote, req *domain.VendorRequest, role domain.ApproverRole) string {
	recipient, token := uc.settings.VPEmail, quote.VPToken
	if role == domain.RoleProcurementManager {
		recipient, token = uc.settings.ProcurementEmail, quote.ProcurementToken
	}
	return uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyQuoteApprovalRequested,
		Recipient: recipient,
		Data: map[string]string{
			"vendor_name":   req.VendorName,
			"role":          string(role),
			"amount":        quote.Amount.StringFixed(2),
			"description":   quote.Description,
			"approval_link": uc.settings.Links.QuoteApproval(token),
		},
	})
}

func (uc *QuoteUseCase) notifyDecision(ctx context.Context, quote *domain.Quote, req *domain.VendorRequest) string {
	return uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyQuoteDecided,
		Recipient: req.HandlerEmail,
		Data: map[string]string{
			"vendor_name":      req.VendorName,
			"status":           string(quote.Status),
			"amount":           quote.Amount.StringFixed(2),
			"rejection_reason": quote.RejectionReason,
			"request_link":     uc.settings.Links.Request(req.ID),
		},
	})
}
