// Package apperror defines the stable error taxonomy shared by the
// application services and the HTTP layer. Codes are part of the API
// contract; messages are free-form and safe to show to callers.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeCredentialInvalid   Code = "credential_invalid"
	CodeSessionInvalid      Code = "session_invalid"
	CodeOrgAccessDenied     Code = "org_access_denied"
	CodeAdminRequired       Code = "admin_required"
	CodeValidationError     Code = "validation_error"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodePrerequisitesNotMet Code = "prerequisites_not_met"
	CodeDispatchFailed      Code = "dispatch_failed"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeInternal            Code = "internal_error"
)

// Error is a coded application error. Details carries field-level reasons
// for validation failures; ResetAt carries the window reset time for rate
// limit failures. Both are zero-valued for other codes.
type Error struct {
	Code    Code
	Message string
	Details []string
	ResetAt time.Time
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted caller-facing message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error that records cause internally. The cause is
// never included in the caller-facing message; it surfaces only through
// Error() for logging and errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches field-level reasons and returns the error.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// WithResetAt attaches a rate-limit window reset time and returns the error.
func (e *Error) WithResetAt(t time.Time) *Error {
	e.ResetAt = t
	return e
}

// CodeOf extracts the Code from err, or CodeInternal if err carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
