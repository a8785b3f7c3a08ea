package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Reason string            `json:"reason,omitempty"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrExpired):
		return http.StatusGone
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrInvalidCode), domain.IsKind(err, domain.ErrCodeExpired):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrPreconditionBlocked):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorPayload(err error, status int) errorBody {
	body := errorBody{Error: http.StatusText(status)}
	switch {
	case domain.IsKind(err, domain.ErrExpired):
		body.Code = "link_expired"
	case domain.IsKind(err, domain.ErrInvalidCode):
		body.Code = "invalid_code"
	case domain.IsKind(err, domain.ErrCodeExpired):
		body.Code = "code_expired"
	}
	if validation, ok := domain.AsValidation(err); ok {
		body.Fields = make(map[string]string, len(validation.Fields))
		for field, msg := range validation.Fields {
			body.Fields[string(field)] = msg
		}
	} else if status == http.StatusUnprocessableEntity {
		body.Detail = err.Error()
	}
	if blocked, ok := domain.AsBlocked(err); ok {
		body.Reason = string(blocked.Reason)
		body.Detail = blocked.Detail
	}
	return body
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorPayload(err, status))
}
