package ollama

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyOllamaError(err error) resilience.Verdict {
	if err == nil || resilience.Cancelled(err) {
		return resilience.Verdict{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if resilience.TransientHTTPStatus(statusErr.StatusCode) {
			return resilience.Verdict{Retry: true, CountFailure: true}
		}
		// A 4xx means a bad prompt or unknown model, not an unhealthy server.
		return resilience.Verdict{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	return resilience.Verdict{CountFailure: true}
}

func wrapUnavailableIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrDependencyUnavailable) {
		return err
	}
	if classifyOllamaError(err).Retry || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrDependencyUnavailable, operation, err)
	}
	return err
}
