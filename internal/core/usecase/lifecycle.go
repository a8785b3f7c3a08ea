package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

type LifecycleSettings struct {
	DefaultLinkValidity time.Duration
	VPEmail             string
	ProcurementEmail    string
	Links               Links
}

type LifecycleUseCase struct {
	requests  ports.VendorRequestRepository
	documents ports.DocumentRepository
	quotes    ports.QuoteRepository
	receipts  ports.ReceiptRepository
	storage   ports.ObjectStorage
	notify    notifySender
	settings  LifecycleSettings
	opts      options
}

func NewLifecycleUseCase(
	requests ports.VendorRequestRepository,
	documents ports.DocumentRepository,
	quotes ports.QuoteRepository,
	receipts ports.ReceiptRepository,
	storage ports.ObjectStorage,
	notifier ports.Notifier,
	settings LifecycleSettings,
	opts ...Option,
) *LifecycleUseCase {
	if settings.DefaultLinkValidity <= 0 {
		settings.DefaultLinkValidity = DefaultLinkValidity
	}
	o := buildOptions(opts)
	return &LifecycleUseCase{
		requests:  requests,
		documents: documents,
		quotes:    quotes,
		receipts:  receipts,
		storage:   storage,
		notify:    notifySender{notifier: notifier, observer: o.observer},
		settings:  settings,
		opts:      o,
	}
}

func (uc *LifecycleUseCase) Create(ctx context.Context, actor string, in domain.NewRequest) (*domain.RequestOutcome, error) {
	name := strings.TrimSpace(in.VendorName)
	email := strings.ToLower(strings.TrimSpace(in.VendorEmail))
	invalid := make(map[domain.FieldName]string)
	if name == "" {
		invalid["vendor_name"] = "vendor name is required"
	}
	if !strings.Contains(email, "@") {
		invalid["vendor_email"] = "a valid vendor email is required"
	}
	if in.LinkValidity < 0 {
		invalid["link_validity"] = "link validity must be positive"
	}
	if len(invalid) > 0 {
		return nil, domain.NewValidationError(invalid)
	}

	now := uc.opts.clock.Now()
	status := domain.RequestPending
	if in.Dispatch {
		status = domain.RequestWithVendor
	}
	req := &domain.VendorRequest{
		ID:           uuid.NewString(),
		Status:       status,
		SecureToken:  uuid.NewString(),
		ExpiresAt:    now.Add(uc.validity(in.LinkValidity)),
		LinkValidity: in.LinkValidity,
		VendorName:   name,
		VendorEmail:  email,
		HandlerName:  strings.TrimSpace(in.HandlerName),
		HandlerEmail: strings.TrimSpace(in.HandlerEmail),
		RequestFlags: in.Flags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.requests.Create(ctx, req, actor); err != nil {
		return nil, fmt.Errorf("create vendor request: %w", err)
	}
	uc.opts.observer.RecordTransition("", status)

	outcome := &domain.RequestOutcome{Request: req}
	if in.Dispatch {
		outcome.NotificationError = uc.sendInvitation(ctx, req)
	}
	return outcome, nil
}

func (uc *LifecycleUseCase) Get(ctx context.Context, id string) (*domain.VendorRequest, error) {
	req, err := uc.requests.Get(ctx, ports.ByID(id))
	if err != nil {
		return nil, fmt.Errorf("get vendor request: %w", err)
	}
	return req, nil
}

func (uc *LifecycleUseCase) List(ctx context.Context, filter domain.ListFilter) ([]domain.VendorRequest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.FieldError("status", "unknown status")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	items, err := uc.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list vendor requests: %w", err)
	}
	return items, nil
}

// Dispatch sends the access link of a pending request and opens a fresh validity window.
func (uc *LifecycleUseCase) Dispatch(ctx context.Context, id, actor string) (*domain.RequestOutcome, error) {
	now := uc.opts.clock.Now()
	req, err := uc.requests.Mutate(ctx, ports.ByID(id), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if req.Status != domain.RequestPending {
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "only pending requests can be dispatched, request is %s", req.Status)
		}
		req.Status = domain.RequestWithVendor
		req.ExpiresAt = now.Add(uc.validity(req.LinkValidity))
		req.UpdatedAt = now
		return domain.Mutation{Actor: actor, At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch vendor request: %w", err)
	}
	uc.opts.observer.RecordTransition(domain.RequestPending, domain.RequestWithVendor)
	return &domain.RequestOutcome{Request: req, NotificationError: uc.sendInvitation(ctx, req)}, nil
}

// DecideGate records one gate decision. Approval may complete the request;
// rejection is terminal for the whole request.
func (uc *LifecycleUseCase) DecideGate(
	ctx context.Context,
	id string,
	gate domain.GateName,
	actor string,
	approve bool,
	reason string,
) (*domain.RequestOutcome, error) {
	if !gate.Valid() {
		return nil, domain.FieldError("gate", "unknown gate")
	}
	if !approve {
		trimmed, err := requireReason(reason)
		if err != nil {
			return nil, err
		}
		reason = trimmed
	}

	now := uc.opts.clock.Now()
	var before domain.RequestStatus
	req, err := uc.requests.Mutate(ctx, ports.ByID(id), func(req *domain.VendorRequest) (domain.Mutation, error) {
		before = req.Status
		if err := checkGate(req, gate, approve); err != nil {
			return domain.Mutation{}, err
		}

		req.Gate(gate).Decide(approve, actor, now)
		switch {
		case !approve:
			req.Status = domain.RequestRejected
			req.HandlerRejectionReason = reason
		case req.ApprovalComplete():
			req.Status = domain.RequestApproved
		}
		req.UpdatedAt = now
		return domain.Mutation{
			Actor:  actor,
			Note:   fmt.Sprintf("%s %s", gate, decisionLabel(approve)),
			At:     now,
			Record: true,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decide %s gate: %w", gate, err)
	}

	uc.opts.observer.RecordGateDecision(string(gate), approve)
	if req.Status != before {
		uc.opts.observer.RecordTransition(before, req.Status)
	}
	slog.Info("gate_decided",
		"request_id", req.ID,
		"gate", gate,
		"approved", approve,
		"actor", actor,
		"status", req.Status,
	)

	outcome := &domain.RequestOutcome{Request: req}
	switch {
	case req.Status == domain.RequestRejected:
		outcome.NotificationError = uc.notify.send(ctx, uc.vendorNotice(domain.NotifyVendorRejected, req, map[string]string{"reason": reason}))
	case req.Status == domain.RequestApproved:
		outcome.NotificationError = uc.notify.send(ctx, uc.vendorNotice(domain.NotifyVendorApproved, req, nil))
	default:
		if next, ok := uc.nextGateNotice(req, gate); ok {
			outcome.NotificationError = uc.notify.send(ctx, next)
		}
	}
	return outcome, nil
}

// checkGate enforces gate ordering under the row lock.
func checkGate(req *domain.VendorRequest, gate domain.GateName, approve bool) error {
	if req.Status != domain.RequestSubmitted {
		return domain.Blocked(domain.BlockStatusNotEligible, "gate decisions require a submitted request, request is %s", req.Status)
	}
	current := req.Gate(gate)
	if !current.Pending() {
		return domain.Blocked(domain.BlockGateAlreadyDecided, "%s was already %s by %s", gate, decisionLabel(current.IsApproved()), current.By)
	}

	switch gate {
	case domain.GateFirstReview:
		if approve && req.RequiresContractSignature && strings.TrimSpace(req.ContractFilePath) == "" {
			return domain.Blocked(domain.BlockContractMissing, "contract not yet uploaded")
		}
	case domain.GateVP:
		if !req.RequiresVPApproval {
			return domain.Blocked(domain.BlockVPNotRequired, "this request does not require VP approval")
		}
		if !req.FirstReview.IsApproved() {
			return domain.Blocked(domain.BlockFirstReviewPending, "first review has not been approved yet")
		}
	case domain.GateProcurementManager:
		if req.SkipManagerApproval {
			return domain.Blocked(domain.BlockManagerApprovalSkipped, "manager approval is skipped for this request")
		}
		if !req.FirstReview.IsApproved() {
			return domain.Blocked(domain.BlockFirstReviewPending, "first review has not been approved yet")
		}
		if approve && req.RequiresVPApproval && !req.VP.IsApproved() {
			return domain.Blocked(domain.BlockVPPending, "VP approval is required before procurement manager approval")
		}
	}
	return nil
}

func (uc *LifecycleUseCase) nextGateNotice(req *domain.VendorRequest, decided domain.GateName) (domain.Notification, bool) {
	data := map[string]string{
		"vendor_name":  req.VendorName,
		"request_id":   req.ID,
		"request_link": uc.settings.Links.Request(req.ID),
	}
	switch decided {
	case domain.GateFirstReview:
		if req.SkipManagerApproval {
			return domain.Notification{}, false
		}
		if req.RequiresVPApproval {
			return domain.Notification{Template: domain.NotifyVPApprovalRequested, Recipient: uc.settings.VPEmail, Data: data}, true
		}
		return domain.Notification{Template: domain.NotifyProcurementApproval, Recipient: uc.settings.ProcurementEmail, Data: data}, true
	case domain.GateVP:
		return domain.Notification{Template: domain.NotifyProcurementApproval, Recipient: uc.settings.ProcurementEmail, Data: data}, true
	default:
		return domain.Notification{}, false
	}
}

// Resend reopens a request for vendor edits and forces re-verification.
func (uc *LifecycleUseCase) Resend(ctx context.Context, id, actor, reason string) (*domain.RequestOutcome, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}

	now := uc.opts.clock.Now()
	var before domain.RequestStatus
	req, err := uc.requests.Mutate(ctx, ports.ByID(id), func(req *domain.VendorRequest) (domain.Mutation, error) {
		before = req.Status
		eligible := req.Status.VendorEditable() ||
			(req.Status == domain.RequestSubmitted && req.FirstReview.Pending())
		if !eligible {
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "a %s request cannot be resent", req.Status)
		}

		req.Status = domain.RequestResent
		req.ClearPasscode()
		req.ExpiresAt = now.Add(uc.validity(req.LinkValidity))
		req.HandlerRejectionReason = reason
		req.ReminderSentAt = nil
		req.UpdatedAt = now
		return domain.Mutation{Actor: actor, Note: "resent: " + reason, At: now, Record: true}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resend vendor request: %w", err)
	}
	uc.opts.observer.RecordTransition(before, domain.RequestResent)

	notice := uc.vendorNotice(domain.NotifyVendorResent, req, map[string]string{
		"reason":      reason,
		"vendor_link": uc.settings.Links.Vendor(req.SecureToken),
		"expires_at":  req.ExpiresAt.Format(time.RFC3339),
	})
	return &domain.RequestOutcome{Request: req, NotificationError: uc.notify.send(ctx, notice)}, nil
}

func (uc *LifecycleUseCase) Reject(ctx context.Context, id, actor, reason string) (*domain.RequestOutcome, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}

	now := uc.opts.clock.Now()
	var before domain.RequestStatus
	req, err := uc.requests.Mutate(ctx, ports.ByID(id), func(req *domain.VendorRequest) (domain.Mutation, error) {
		before = req.Status
		if req.Status.Terminal() {
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "request is already %s", req.Status)
		}
		req.Status = domain.RequestRejected
		req.HandlerRejectionReason = reason
		req.ClearPasscode()
		req.UpdatedAt = now
		return domain.Mutation{Actor: actor, Note: "rejected: " + reason, At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject vendor request: %w", err)
	}
	uc.opts.observer.RecordTransition(before, domain.RequestRejected)

	notice := uc.vendorNotice(domain.NotifyVendorRejected, req, map[string]string{"reason": reason})
	return &domain.RequestOutcome{Request: req, NotificationError: uc.notify.send(ctx, notice)}, nil
}

func (uc *LifecycleUseCase) UploadContract(ctx context.Context, id, actor, filename string, body io.Reader) (*domain.RequestOutcome, error) {
	current, err := uc.requests.Get(ctx, ports.ByID(id))
	if err != nil {
		return nil, fmt.Errorf("get vendor request: %w", err)
	}
	if current.Status.Terminal() {
		return nil, domain.Blocked(domain.BlockStatusNotEligible, "cannot attach a contract to a %s request", current.Status)
	}

	key := storageKey("requests", current.ID, "contract", uuid.NewString()[:8]+"_"+sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save contract: %w", err)
	}

	now := uc.opts.clock.Now()
	req, err := uc.requests.Mutate(ctx, ports.ByID(id), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if req.Status.Terminal() {
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "cannot attach a contract to a %s request", req.Status)
		}
		req.ContractFilePath = key
		req.UpdatedAt = now
		return domain.Mutation{Actor: actor, At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach contract: %w", err)
	}
	return &domain.RequestOutcome{Request: req}, nil
}

// Delete removes the request with its documents, history and quotes. Stored
// files are removed afterwards on a best-effort basis.
func (uc *LifecycleUseCase) Delete(ctx context.Context, id string) error {
	req, err := uc.requests.Get(ctx, ports.ByID(id))
	if err != nil {
		return fmt.Errorf("get vendor request: %w", err)
	}
	keys, err := uc.storedFiles(ctx, req)
	if err != nil {
		return err
	}
	if err := uc.requests.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete vendor request: %w", err)
	}

	for _, key := range keys {
		if err := uc.storage.Delete(ctx, key); err != nil {
			slog.Warn("storage_delete_failed", "request_id", id, "key", key, "error", err)
		}
	}
	return nil
}

// storedFiles lists every object a request owns: documents, the contract,
// quote uploads with their signed copies, and receipts.
func (uc *LifecycleUseCase) storedFiles(ctx context.Context, req *domain.VendorRequest) ([]string, error) {
	docs, err := uc.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	quotes, err := uc.quotes.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	receipts, err := uc.receipts.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	keys := make([]string, 0, len(docs)+2*len(quotes)+len(receipts)+1)
	for _, doc := range docs {
		keys = append(keys, doc.FilePath)
	}
	if req.ContractFilePath != "" {
		keys = append(keys, req.ContractFilePath)
	}
	for _, q := range quotes {
		for _, key := range []string{q.FilePath, q.SignedFilePath} {
			if key != "" {
				keys = append(keys, key)
			}
		}
	}
	for _, rc := range receipts {
		keys = append(keys, rc.FilePath)
	}
	return keys, nil
}

// SendExpiryReminders notifies vendors whose link expires within the window.
func (uc *LifecycleUseCase) SendExpiryReminders(ctx context.Context, within time.Duration) (*domain.ReminderReport, error) {
	if within <= 0 {
		return nil, domain.FieldError("within", "reminder window must be positive")
	}
	now := uc.opts.clock.Now()
	candidates, err := uc.requests.ListExpiring(ctx, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("list expiring requests: %w", err)
	}

	report := &domain.ReminderReport{Reminded: []string{}, Failed: []string{}, Skipped: []string{}}
	for _, candidate := range candidates {
		req, err := uc.claimReminder(ctx, candidate.ID, now)
		if err != nil {
			if _, blocked := domain.AsBlocked(err); blocked || errors.Is(err, domain.ErrNotFound) {
				report.Skipped = append(report.Skipped, candidate.ID)
				continue
			}
			slog.Warn("reminder_claim_failed", "request_id", candidate.ID, "error", err)
			report.Failed = append(report.Failed, candidate.ID)
			continue
		}

		notice := uc.vendorNotice(domain.NotifyExpiryReminder, req, map[string]string{
			"vendor_link": uc.settings.Links.Vendor(req.SecureToken),
			"expires_at":  req.ExpiresAt.Format(time.RFC3339),
		})
		if failure := uc.notify.send(ctx, notice); failure != "" {
			uc.releaseReminder(ctx, req.ID, now)
			report.Failed = append(report.Failed, req.ID)
			continue
		}
		report.Reminded = append(report.Reminded, req.ID)
	}
	return report, nil
}

// claimReminder marks the reminder as sent under the row lock, re-checking the
// listing conditions so a request that changed since the scan is not reminded.
func (uc *LifecycleUseCase) claimReminder(ctx context.Context, id string, now time.Time) (*domain.VendorRequest, error) {
	return uc.requests.Mutate(ctx, ports.ByID(id), func(locked *domain.VendorRequest) (domain.Mutation, error) {
		switch {
		case !locked.Status.VendorEditable():
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "request is %s", locked.Status)
		case locked.ReminderSentAt != nil:
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "reminder already sent")
		case !locked.ExpiresAt.After(now):
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "link already expired")
		}
		sent := now
		locked.ReminderSentAt = &sent
		return domain.Mutation{Actor: "system", At: now}, nil
	})
}

// releaseReminder undoes a claim whose notification failed so the next run retries it.
func (uc *LifecycleUseCase) releaseReminder(ctx context.Context, id string, claimedAt time.Time) {
	_, err := uc.requests.Mutate(ctx, ports.ByID(id), func(locked *domain.VendorRequest) (domain.Mutation, error) {
		if locked.ReminderSentAt != nil && locked.ReminderSentAt.Equal(claimedAt) {
			locked.ReminderSentAt = nil
		}
		return domain.Mutation{Actor: "system", At: claimedAt}, nil
	})
	if err != nil {
		slog.Warn("reminder_release_failed", "request_id", id, "error", err)
	}
}

func (uc *LifecycleUseCase) validity(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return uc.settings.DefaultLinkValidity
}

func (uc *LifecycleUseCase) sendInvitation(ctx context.Context, req *domain.VendorRequest) string {
	return uc.notify.send(ctx, uc.vendorNotice(domain.NotifyVendorInvitation, req, map[string]string{
		"vendor_link": uc.settings.Links.Vendor(req.SecureToken),
		"expires_at":  req.ExpiresAt.Format(time.RFC3339),
	}))
}

func (uc *LifecycleUseCase) vendorNotice(template domain.NotificationTemplate, req *domain.VendorRequest, extra map[string]string) domain.Notification {
	data := map[string]string{
		"vendor_name":  req.VendorName,
		"handler_name": req.HandlerName,
	}
	for k, v := range extra {
		data[k] = v
	}
	return domain.Notification{Template: template, Recipient: req.VendorEmail, Data: data}
}

func decisionLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}
