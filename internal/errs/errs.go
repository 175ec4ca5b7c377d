// Package errs defines the error taxonomy shared by the accrual engine.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an engine error.
type Code string

const (
	// CodeValidation marks malformed input rejected before it reaches the
	// store (bad multiplier, negative duration, unknown source).
	CodeValidation Code = "validation"
	// CodeTransientStore marks a network or timeout failure talking to the
	// remote store. Callers may retry with backoff; local state is intact.
	CodeTransientStore Code = "transient_store"
	// CodeConflict marks a duplicate claim token or concurrent writer. The
	// remote value is truth; the local attempt is discarded.
	CodeConflict Code = "conflict"
	// CodeCorruption marks an impossible value observed from the store
	// (negative balance, multiplier below one). Fatal for that read.
	CodeCorruption Code = "corruption"
	// CodeRateLimited marks a claim rejected by the per-user rate limiter.
	CodeRateLimited Code = "rate_limited"
	// CodeNothingToClaim marks a claim with an empty accrual window.
	CodeNothingToClaim Code = "nothing_to_claim"
	// CodeUnavailable marks the ledger store being unreachable.
	CodeUnavailable Code = "unavailable"
	// CodeNotFound marks a missing document.
	CodeNotFound Code = "not_found"
)

// Error is the engine error type. It carries a code for classification and
// wraps an optional cause.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the code from err, or "" if err is not an engine error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the operation that produced err may be safely
// retried without losing local state.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeTransientStore, CodeUnavailable, CodeRateLimited:
		return true
	}
	return false
}
