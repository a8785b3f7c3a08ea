package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

type accessEnv struct {
	clock    *fakeClock
	requests *requestRepoFake
	notifier *notifierFake
	observer *observerFake
	uc       *AccessGateUseCase
}

func newAccessEnv(req domain.VendorRequest) *accessEnv {
	env := &accessEnv{
		clock:    &fakeClock{now: baseTime},
		notifier: &notifierFake{},
		observer: &observerFake{},
	}
	env.requests = newRequestRepoFake(env.clock)
	env.requests.put(req)
	env.uc = NewAccessGateUseCase(env.requests, newDocumentRepoFake(), env.notifier, Links{BaseURL: "https://onboarding.test"}, 0,
		WithClock(env.clock), WithObserver(env.observer))
	env.uc.generate = func() (string, error) { return "482913", nil }
	return env
}

func vendorRequest() domain.VendorRequest {
	req := submittedRequest("r1", domain.RequestFlags{})
	req.Status = domain.RequestWithVendor
	req.OTPVerified = false
	return req
}

func TestResolveUnknownAndExpiredToken(t *testing.T) {
	env := newAccessEnv(vendorRequest())
	ctx := context.Background()

	if _, _, err := env.uc.Resolve(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := env.uc.Resolve(ctx, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty token, got %v", err)
	}

	env.clock.now = baseTime.Add(7 * 24 * time.Hour)
	if _, _, err := env.uc.Resolve(ctx, "token-r1"); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired at the boundary, got %v", err)
	}

	view, err := env.uc.Status(ctx, "token-r1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !view.Expired || view.Status != domain.RequestWithVendor {
		t.Fatalf("unexpected status view %+v", view)
	}
}

func TestIssueAndVerifyPasscode(t *testing.T) {
	env := newAccessEnv(vendorRequest())
	ctx := context.Background()

	issue, err := env.uc.IssuePasscode(ctx, "token-r1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issue.MaskedEmail != "ve***@acme.test" {
		t.Fatalf("unexpected mask %q", issue.MaskedEmail)
	}
	sent := env.notifier.last()
	if sent.Template != domain.NotifyVendorPasscode || sent.Data["code"] != "482913" {
		t.Fatalf("unexpected notification %+v", sent)
	}
	stored, _ := env.requests.Get(ctx, ports.ByToken("token-r1"))
	if stored.OTPCodeHash == "" || stored.OTPCodeHash == "482913" {
		t.Fatalf("expected hashed code, got %q", stored.OTPCodeHash)
	}

	if err := env.uc.VerifyPasscode(ctx, "token-r1", "000000"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if err := env.uc.VerifyPasscode(ctx, "token-r1", " 482913 "); err != nil {
		t.Fatalf("verify: %v", err)
	}
	stored, _ = env.requests.Get(ctx, ports.ByToken("token-r1"))
	if !stored.OTPVerified || stored.OTPCodeHash != "" {
		t.Fatalf("expected verified and cleared, got %+v", stored)
	}

	if err := env.uc.VerifyPasscode(ctx, "token-r1", "482913"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("replayed code must be invalid, got %v", err)
	}
	want := []string{"invalid_code", "verified", "invalid_code"}
	if len(env.observer.passcodes) != len(want) {
		t.Fatalf("unexpected passcode metrics %v", env.observer.passcodes)
	}
	for i := range want {
		if env.observer.passcodes[i] != want[i] {
			t.Fatalf("unexpected passcode metrics %v", env.observer.passcodes)
		}
	}
}

func TestPasscodeExpiresAfterTTL(t *testing.T) {
	env := newAccessEnv(vendorRequest())
	ctx := context.Background()

	if _, err := env.uc.IssuePasscode(ctx, "token-r1"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	env.clock.Advance(DefaultPasscodeTTL)
	if err := env.uc.VerifyPasscode(ctx, "token-r1", "482913"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected code expired, got %v", err)
	}
}

func TestIssueOnExpiredLink(t *testing.T) {
	req := vendorRequest()
	req.ExpiresAt = baseTime
	env := newAccessEnv(req)
	env.clock.Advance(time.Second)

	if _, err := env.uc.IssuePasscode(context.Background(), "token-r1"); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if len(env.notifier.sent) != 0 {
		t.Fatalf("expired link must not send a code")
	}
}

func TestIssueWhenAlreadyVerified(t *testing.T) {
	req := vendorRequest()
	req.OTPVerified = true
	env := newAccessEnv(req)

	issue, err := env.uc.IssuePasscode(context.Background(), "token-r1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !issue.AlreadyVerified {
		t.Fatalf("expected already verified")
	}
	if len(env.notifier.sent) != 0 {
		t.Fatalf("no code should be sent")
	}
}

func TestIssueReportsDeliveryFailure(t *testing.T) {
	env := newAccessEnv(vendorRequest())
	env.notifier.err = errors.New("mail relay refused")
	ctx := context.Background()

	_, err := env.uc.IssuePasscode(ctx, "token-r1")
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	stored, _ := env.requests.Get(ctx, ports.ByToken("token-r1"))
	if stored.OTPCodeHash == "" {
		t.Fatalf("stored code must remain after a delivery failure")
	}
}

func TestRequireVerified(t *testing.T) {
	env := newAccessEnv(vendorRequest())
	if _, err := env.uc.RequireVerified(context.Background(), "token-r1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"vendor@acme.test": "ve***@acme.test",
		"a@b.test":         "a***@b.test",
		"broken":           "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGeneratePasscodeRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generatePasscode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 || code[0] == '0' {
			t.Fatalf("unexpected code %q", code)
		}
	}
}
