// Package dErrors provides the domain error type shared by all engine
// modules. Every rejected operation carries a machine-checkable code so
// clients and tests can distinguish, for example, an insufficient fee from
// an already-decrypted result without parsing messages.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput covers malformed or out-of-range parameters: bad
	// ids, inverted age ranges, oversized batches, stake outside bounds.
	CodeInvalidInput Code = "invalid_input"

	// CodeInsufficientFee rejects a paid call whose bound payment is below
	// the scheduled fee. Checked before any state change.
	CodeInsufficientFee Code = "insufficient_fee"

	// CodeUnauthorized means the caller could not be identified.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden means the caller is identified but lacks the required
	// role or ownership (non-owner revoke, unauthenticated relayer, ...).
	CodeForbidden Code = "forbidden"

	// CodeNotFound means the referenced entity does not exist.
	CodeNotFound Code = "not_found"

	// CodeConflict covers state-machine violations: double deposit, double
	// decrypt, resolving an already-resolved dispute, revoking a revoked
	// record.
	CodeConflict Code = "conflict"

	// CodeInvariantViolation signals a broken internal invariant such as
	// fund conservation. Unreachable in a correct deployment; surfaced so
	// it is never silently absorbed.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeExternalFailure wraps a failed call across an external boundary,
	// e.g. the payout transfer during withdrawal.
	CodeExternalFailure Code = "external_failure"

	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a classification code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Unwrap for logging; callers branch on the code.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeInsufficientFee:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvariantViolation, CodeInternal:
		return http.StatusInternalServerError
	case CodeExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
