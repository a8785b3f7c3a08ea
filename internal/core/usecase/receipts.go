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

type ReceiptSettings struct {
	// LinkValidity renews an expired vendor link when a receipts link is sent.
	LinkValidity time.Duration
	Links        Links
}

// ReceiptUseCase lets approved vendors upload receipts and handlers review them.
type ReceiptUseCase struct {
	receipts ports.ReceiptRepository
	requests ports.VendorRequestRepository
	storage  ports.ObjectStorage
	notify   notifySender
	settings ReceiptSettings
	opts     options
}

func NewReceiptUseCase(
	receipts ports.ReceiptRepository,
	requests ports.VendorRequestRepository,
	storage ports.ObjectStorage,
	notifier ports.Notifier,
	settings ReceiptSettings,
	opts ...Option,
) *ReceiptUseCase {
	if settings.LinkValidity <= 0 {
		settings.LinkValidity = DefaultLinkValidity
	}
	o := buildOptions(opts)
	return &ReceiptUseCase{
		receipts: receipts,
		requests: requests,
		storage:  storage,
		notify:   notifySender{notifier: notifier, observer: o.observer},
		settings: settings,
		opts:     o,
	}
}

func (uc *ReceiptUseCase) VendorReceipts(ctx context.Context, token string) ([]domain.Receipt, error) {
	req, err := uc.vendorRequest(ctx, token)
	if err != nil {
		return nil, err
	}
	return uc.list(ctx, req.ID)
}

func (uc *ReceiptUseCase) UploadReceipt(ctx context.Context, token string, in domain.ReceiptUpload, body io.Reader) (*domain.Receipt, error) {
	req, err := uc.vendorRequest(ctx, token)
	if err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, domain.FieldError("amount", "amount must be greater than zero")
	}
	if in.ReceiptDate.IsZero() {
		return nil, domain.FieldError("receipt_date", "receipt date is required")
	}
	if body == nil {
		return nil, domain.FieldError("file", "a receipt file is required")
	}

	now := uc.opts.clock.Now()
	receipt := &domain.Receipt{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		Status:      domain.ReceiptPending,
		Amount:      in.Amount,
		ReceiptDate: in.ReceiptDate,
		Description: strings.TrimSpace(in.Description),
		FileName:    in.FileName,
		MimeType:    in.MimeType,
		CreatedAt:   now,
	}
	receipt.FilePath = storageKey("requests", req.ID, "receipts", fmt.Sprintf("%s_%s", receipt.ID, sanitizeFilename(in.FileName)))
	if err := uc.storage.Save(ctx, receipt.FilePath, body); err != nil {
		return nil, fmt.Errorf("save receipt file: %w", err)
	}
	if err := uc.receipts.Create(ctx, receipt); err != nil {
		uc.discard(ctx, receipt.FilePath)
		return nil, fmt.Errorf("create receipt: %w", err)
	}
	slog.Info("receipt_uploaded", "receipt_id", receipt.ID, "request_id", req.ID, "amount", receipt.Amount.StringFixed(2))
	return receipt, nil
}

// DeleteReceipt lets the vendor withdraw a receipt nobody has reviewed yet.
func (uc *ReceiptUseCase) DeleteReceipt(ctx context.Context, token, receiptID string) error {
	req, err := uc.vendorRequest(ctx, token)
	if err != nil {
		return err
	}
	current, err := uc.receipts.Get(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("get receipt: %w", err)
	}
	if current.RequestID != req.ID {
		return domain.WrapError(domain.ErrNotFound, "delete receipt", fmt.Errorf("receipt %s", receiptID))
	}
	if current.Status != domain.ReceiptPending {
		return domain.Blocked(domain.BlockStatusNotEligible, "receipt is already %s", current.Status)
	}

	deleted, err := uc.receipts.DeletePending(ctx, req.ID, receiptID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Blocked(domain.BlockStatusNotEligible, "receipt was reviewed in the meantime")
		}
		return fmt.Errorf("delete receipt: %w", err)
	}
	uc.discard(ctx, deleted.FilePath)
	return nil
}

func (uc *ReceiptUseCase) ListForRequest(ctx context.Context, requestID string) ([]domain.Receipt, error) {
	if _, err := uc.requests.Get(ctx, ports.ByID(requestID)); err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	return uc.list(ctx, requestID)
}

// Decide approves or rejects a pending receipt. A rejection needs a reason.
func (uc *ReceiptUseCase) Decide(ctx context.Context, receiptID, actor string, approve bool, reason string) (*domain.ReceiptOutcome, error) {
	if !approve {
		trimmed, err := requireReason(reason)
		if err != nil {
			return nil, err
		}
		reason = trimmed
	}

	now := uc.opts.clock.Now()
	receipt, err := uc.receipts.Mutate(ctx, receiptID, func(r *domain.Receipt) error {
		if r.Status != domain.ReceiptPending {
			return domain.Blocked(domain.BlockStatusNotEligible, "receipt is already %s", r.Status)
		}
		r.Status = domain.ReceiptApproved
		if !approve {
			r.Status = domain.ReceiptRejected
			r.RejectionReason = reason
		}
		r.ReviewedBy = actor
		r.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decide receipt: %w", err)
	}
	uc.opts.observer.RecordGateDecision("receipt", approve)
	slog.Info("receipt_decided", "receipt_id", receipt.ID, "request_id", receipt.RequestID, "status", receipt.Status, "actor", actor)

	req, err := uc.requests.Get(ctx, ports.ByID(receipt.RequestID))
	if err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	failure := uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyReceiptStatus,
		Recipient: req.VendorEmail,
		Data: map[string]string{
			"vendor_name":      req.VendorName,
			"status":           string(receipt.Status),
			"amount":           receipt.Amount.StringFixed(2),
			"receipt_date":     receipt.ReceiptDate.Format(domain.ReceiptDateLayout),
			"rejection_reason": receipt.RejectionReason,
		},
	})
	return &domain.ReceiptOutcome{Receipt: receipt, NotificationError: failure}, nil
}

// SendLink emails the vendor the receipts page of an approved request and
// renews the link window when it has lapsed.
func (uc *ReceiptUseCase) SendLink(ctx context.Context, requestID, actor string) (*domain.RequestOutcome, error) {
	now := uc.opts.clock.Now()
	req, err := uc.requests.Mutate(ctx, ports.ByID(requestID), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if req.Status != domain.RequestApproved {
			return domain.Mutation{}, domain.Blocked(domain.BlockStatusNotEligible, "receipts open once the request is approved, request is %s", req.Status)
		}
		if req.Expired(now) {
			req.ExpiresAt = now.Add(uc.settings.LinkValidity)
			req.UpdatedAt = now
		}
		return domain.Mutation{Actor: actor, Note: "receipts link sent", At: now, Record: true}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("send receipts link: %w", err)
	}

	failure := uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyReceiptsLink,
		Recipient: req.VendorEmail,
		Data: map[string]string{
			"vendor_name":   req.VendorName,
			"receipts_link": uc.settings.Links.Receipts(req.SecureToken),
			"expires_at":    req.ExpiresAt.Format(time.RFC3339),
		},
	})
	return &domain.RequestOutcome{Request: req, NotificationError: failure}, nil
}

// vendorRequest applies the receipt access rules: a known, unexpired token,
// a verified passcode and an approved request.
func (uc *ReceiptUseCase) vendorRequest(ctx context.Context, token string) (*domain.VendorRequest, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve token", fmt.Errorf("empty token"))
	}
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if req.Expired(uc.opts.clock.Now()) {
		return nil, expiredError("receipts", req)
	}
	if !req.OTPVerified {
		return nil, domain.WrapError(domain.ErrUnauthorized, "receipts", fmt.Errorf("passcode not verified"))
	}
	if req.Status != domain.RequestApproved {
		return nil, domain.Blocked(domain.BlockStatusNotEligible, "receipts open once the request is approved, request is %s", req.Status)
	}
	return req, nil
}

func (uc *ReceiptUseCase) list(ctx context.Context, requestID string) ([]domain.Receipt, error) {
	receipts, err := uc.receipts.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	return receipts, nil
}

func (uc *ReceiptUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		slog.Warn("storage_delete_failed", "key", key, "error", err)
	}
}
