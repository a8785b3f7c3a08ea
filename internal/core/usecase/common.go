package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

// DefaultLinkValidity applies when a request carries no original validity.
const DefaultLinkValidity = 7 * 24 * time.Hour

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type noopObserver struct{}

func (noopObserver) RecordTransition(domain.RequestStatus, domain.RequestStatus) {}
func (noopObserver) RecordGateDecision(string, bool) {}
func (noopObserver) RecordPasscodeVerification(string) {}
func (noopObserver) RecordNotificationFailure(domain.NotificationTemplate) {}

type options struct {
	clock    ports.Clock
	observer ports.Observer
}

type Option func(*options)

func WithClock(clock ports.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithObserver(observer ports.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func buildOptions(opts []Option) options {
	out := options{clock: systemClock{}, observer: noopObserver{}}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// Links builds the external URLs placed into notifications.
type Links struct {
	BaseURL string
}

func (l Links) base() string {
	return strings.TrimRight(l.BaseURL, "/")
}

func (l Links) Vendor(token string) string {
	return l.base() + "/vendor/" + url.PathEscape(token)
}

func (l Links) Request(id string) string {
	return l.base() + "/requests/" + url.PathEscape(id)
}

func (l Links) QuoteSubmission(token string) string {
	return l.base() + "/quote/" + url.PathEscape(token)
}

func (l Links) Receipts(token string) string {
	return l.Vendor(token) + "/receipts"
}

func (l Links) QuoteApproval(token string) string {
	return l.base() + "/quote-approval/" + url.PathEscape(token)
}

// notifySender isolates notification failures from state changes.
type notifySender struct {
	notifier ports.Notifier
	observer ports.Observer
}

// send returns a non-empty message when delivery failed; it never returns an error.
func (s notifySender) send(ctx context.Context, n domain.Notification) string {
	if s.notifier == nil {
		return ""
	}
	if strings.TrimSpace(n.Recipient) == "" {
		slog.Warn("notification_skipped", "template", n.Template, "reason", "no recipient")
		return ""
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		slog.Warn("notification_failed",
			"template", n.Template,
			"recipient", n.Recipient,
			"error", err,
		)
		s.observer.RecordNotificationFailure(n.Template)
		return fmt.Sprintf("%s notification failed: %v", n.Template, err)
	}
	return ""
}

func requireReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", domain.FieldError("reason", "a reason is required")
	}
	return reason, nil
}

func vendorActor(req *domain.VendorRequest) string {
	return "vendor:" + req.VendorEmail
}

func storageKey(parts ...string) string {
	return strings.Join(parts, "/")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
