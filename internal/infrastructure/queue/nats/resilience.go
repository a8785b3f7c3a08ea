package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.Verdict {
	switch {
	case err == nil:
		return resilience.Verdict{}
	case resilience.Cancelled(err):
		return resilience.Verdict{}
	case resilience.IsCircuitOpen(err):
		return resilience.Verdict{Retry: true, CountFailure: true}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Verdict{Retry: true, CountFailure: true}
	default:
		return resilience.Verdict{CountFailure: true}
	}
}

// wrapUnavailable marks broker-side failures so callers report them as a dependency outage.
func wrapUnavailable(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrDependencyUnavailable) || domain.IsKind(err, domain.ErrValidationFailed) {
		return err
	}
	if resilience.Cancelled(err) {
		return err
	}
	return domain.WrapError(domain.ErrDependencyUnavailable, operation, err)
}
