package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const DefaultPasscodeTTL = 10 * time.Minute

type AccessGateUseCase struct {
	requests  ports.VendorRequestRepository
	documents ports.DocumentRepository
	notify    notifySender
	links     Links
	ttl       time.Duration
	generate  func() (string, error)
	opts      options
}

func NewAccessGateUseCase(
	requests ports.VendorRequestRepository,
	documents ports.DocumentRepository,
	notifier ports.Notifier,
	links Links,
	passcodeTTL time.Duration,
	opts ...Option,
) *AccessGateUseCase {
	if passcodeTTL <= 0 {
		passcodeTTL = DefaultPasscodeTTL
	}
	o := buildOptions(opts)
	return &AccessGateUseCase{
		requests:  requests,
		documents: documents,
		notify:    notifySender{notifier: notifier, observer: o.observer},
		links:     links,
		ttl:       passcodeTTL,
		generate:  generatePasscode,
		opts:      o,
	}
}

func (uc *AccessGateUseCase) Resolve(ctx context.Context, token string) (*domain.VendorRequest, []domain.VendorDocument, error) {
	req, err := uc.lookup(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	docs, err := uc.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	return req, docs, nil
}

// Status answers the passcode-free lookup; an expired link still reports its status.
func (uc *AccessGateUseCase) Status(ctx context.Context, token string) (*domain.VendorStatusView, error) {
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return &domain.VendorStatusView{
		VendorName: req.VendorName,
		Status:     req.Status,
		Expired:    req.Expired(uc.opts.clock.Now()),
		ExpiresAt:  req.ExpiresAt,
	}, nil
}

func (uc *AccessGateUseCase) IssuePasscode(ctx context.Context, token string) (*domain.PasscodeIssue, error) {
	now := uc.opts.clock.Now()
	issue := &domain.PasscodeIssue{}
	var code string

	req, err := uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if req.Expired(now) {
			return domain.Mutation{}, expiredError("issue passcode", req)
		}
		issue.MaskedEmail = MaskEmail(req.VendorEmail)
		if req.OTPVerified && req.Status != domain.RequestResent {
			issue.AlreadyVerified = true
			return domain.Mutation{}, nil
		}

		generated, err := uc.generate()
		if err != nil {
			return domain.Mutation{}, fmt.Errorf("generate passcode: %w", err)
		}
		code = generated
		expiresAt := now.Add(uc.ttl)
		req.OTPVerified = false
		req.OTPCodeHash = hashPasscode(code)
		req.OTPExpiresAt = &expiresAt
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("issue passcode: %w", err)
	}
	if issue.AlreadyVerified {
		return issue, nil
	}

	failure := uc.notify.send(ctx, domain.Notification{
		Template:  domain.NotifyVendorPasscode,
		Recipient: req.VendorEmail,
		Data: map[string]string{
			"vendor_name":   req.VendorName,
			"code":          code,
			"valid_minutes": strconv.Itoa(int(uc.ttl / time.Minute)),
			"vendor_link":   uc.links.Vendor(req.SecureToken),
		},
	})
	if failure != "" {
		return nil, domain.WrapError(domain.ErrDependencyUnavailable, "send passcode", errors.New(failure))
	}
	return issue, nil
}

// VerifyPasscode consumes the stored code on success; a replay fails with ErrInvalidCode.
func (uc *AccessGateUseCase) VerifyPasscode(ctx context.Context, token, code string) error {
	now := uc.opts.clock.Now()
	code = strings.TrimSpace(code)

	_, err := uc.requests.Mutate(ctx, ports.ByToken(token), func(req *domain.VendorRequest) (domain.Mutation, error) {
		if req.Expired(now) {
			return domain.Mutation{}, expiredError("verify passcode", req)
		}
		if req.OTPCodeHash == "" {
			return domain.Mutation{}, domain.WrapError(domain.ErrInvalidCode, "verify passcode", fmt.Errorf("no active passcode"))
		}
		if req.OTPExpiresAt != nil && !now.Before(*req.OTPExpiresAt) {
			return domain.Mutation{}, domain.WrapError(domain.ErrCodeExpired, "verify passcode", fmt.Errorf("passcode expired at %s", req.OTPExpiresAt.Format(time.RFC3339)))
		}
		if !passcodeMatches(req.OTPCodeHash, code) {
			return domain.Mutation{}, domain.WrapError(domain.ErrInvalidCode, "verify passcode", fmt.Errorf("code mismatch"))
		}

		req.OTPVerified = true
		req.OTPCodeHash = ""
		req.OTPExpiresAt = nil
		req.UpdatedAt = now
		return domain.Mutation{Actor: vendorActor(req), At: now}, nil
	})
	uc.opts.observer.RecordPasscodeVerification(verificationResult(err))
	if err != nil {
		return err
	}
	return nil
}

// RequireVerified resolves a token and insists on a verified passcode.
func (uc *AccessGateUseCase) RequireVerified(ctx context.Context, token string) (*domain.VendorRequest, error) {
	req, err := uc.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !req.OTPVerified {
		return nil, domain.WrapError(domain.ErrUnauthorized, "require verified", fmt.Errorf("passcode not verified"))
	}
	return req, nil
}

func (uc *AccessGateUseCase) lookup(ctx context.Context, token string) (*domain.VendorRequest, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.WrapError(domain.ErrNotFound, "resolve token", fmt.Errorf("empty token"))
	}
	req, err := uc.requests.Get(ctx, ports.ByToken(token))
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if req.Expired(uc.opts.clock.Now()) {
		return nil, expiredError("resolve token", req)
	}
	return req, nil
}

func expiredError(operation string, req *domain.VendorRequest) error {
	return domain.WrapError(domain.ErrExpired, operation, fmt.Errorf("link expired at %s", req.ExpiresAt.Format(time.RFC3339)))
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "verified"
	case domain.IsKind(err, domain.ErrInvalidCode):
		return "invalid_code"
	case domain.IsKind(err, domain.ErrCodeExpired):
		return "code_expired"
	case domain.IsKind(err, domain.ErrExpired):
		return "link_expired"
	case domain.IsKind(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// MaskEmail keeps the first two characters of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***"
	}
	local, host := email[:at], email[at+1:]
	visible := local
	if len(visible) > 2 {
		visible = visible[:2]
	}
	return visible + "***@" + host
}

func generatePasscode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

func hashPasscode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func passcodeMatches(storedHash, code string) bool {
	candidate := hashPasscode(code)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}
