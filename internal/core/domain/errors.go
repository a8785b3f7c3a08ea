package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrExpired               = errors.New("link expired")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrValidationFailed      = errors.New("validation failed")
	ErrPreconditionBlocked   = errors.New("precondition blocked")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrInvalidCode = errors.New("invalid passcode")
	ErrCodeExpired = errors.New("passcode expired")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError carries user-correctable, per-field messages.
type ValidationError struct {
	Fields map[FieldName]string
}

func NewValidationError(fields map[FieldName]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// FieldError is shorthand for a single-field validation failure.
func FieldError(field FieldName, message string) *ValidationError {
	return &ValidationError{Fields: map[FieldName]string{field: message}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, string(field))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[FieldName(key)])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

type BlockReason string

const (
	BlockContractMissing        BlockReason = "contract_missing"
	BlockFirstReviewPending     BlockReason = "first_review_pending"
	BlockVPPending              BlockReason = "vp_pending"
	BlockVPNotRequired          BlockReason = "vp_not_required"
	BlockManagerApprovalSkipped BlockReason = "manager_approval_skipped"
	BlockGateAlreadyDecided     BlockReason = "gate_already_decided"
	BlockStatusNotEligible      BlockReason = "status_not_eligible"
	BlockDocumentsMissing       BlockReason = "documents_missing"
	BlockWarningsUnacknowledged BlockReason = "warnings_unacknowledged"
	BlockQuoteAlreadySubmitted  BlockReason = "quote_already_submitted"
)

// BlockedError names the specific unmet precondition of a refused transition.
type BlockedError struct {
	Reason BlockReason
	Detail string
}

func Blocked(reason BlockReason, format string, args ...any) *BlockedError {
	return &BlockedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *BlockedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrPreconditionBlocked, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrPreconditionBlocked, e.Reason, e.Detail)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrPreconditionBlocked
}

// AsBlocked extracts the BlockedError from a wrapped chain.
func AsBlocked(err error) (*BlockedError, bool) {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return blocked, true
	}
	return nil, false
}

func AsValidation(err error) (*ValidationError, bool) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}
