// Package errors provides typed error handling for Quorum.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// Kind. The dispatcher branches on the Kind to decide between retrying the
// same backend, falling over to the next candidate, or giving up.
package errors

import (
	"errors"
	"strings"
	"time"
)

// Kind classifies an error for routing and retry decisions.
type Kind int

const (
	// KindRateLimited means the backend rejected the call due to rate
	// limiting. Retryable on a different backend.
	KindRateLimited Kind = iota

	// KindUnavailable means a transient failure (timeout, connection reset,
	// 5xx). Retryable on the same backend later or a different one now.
	KindUnavailable

	// KindInvalid means the request itself is malformed. Never retried.
	KindInvalid

	// KindNoBackend means no configured backend can serve the request.
	KindNoBackend

	// KindBudgetExceeded means the monthly budget blocks every paid
	// candidate and no free backend is available.
	KindBudgetExceeded

	// KindConsensusFailed means every consensus participant failed.
	KindConsensusFailed

	// KindInternal covers everything else.
	KindInternal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindInvalid:
		return "invalid"
	case KindNoBackend:
		return "no_backend"
	case KindBudgetExceeded:
		return "budget_exceeded"
	case KindConsensusFailed:
		return "consensus_failed"
	default:
		return "internal"
	}
}

// AppError is the error type used across Quorum packages.
type AppError struct {
	// Code is a stable error code for programmatic handling.
	Code string

	// Message is a human-readable description.
	Message string

	// Kind drives dispatcher fallback/retry branching.
	Kind Kind

	// Inner is the underlying error, if any.
	Inner error

	// RetryAfter is the backend-suggested delay before retrying, if any.
	RetryAfter time.Duration

	// Backend names the backend that produced the error, if any.
	Backend string
}

// Error returns the formatted error message.
func (e *AppError) Error() string {
	var sb strings.Builder
	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}
	sb.WriteString(e.Message)
	if e.Inner != nil {
		inner := e.Inner.Error()
		if inner != "" && inner != e.Message {
			sb.WriteString(": ")
			sb.WriteString(inner)
		}
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// Is matches on Kind so callers can compare against sentinel errors.
func (e *AppError) Is(target error) bool {
	var app *AppError
	if errors.As(target, &app) {
		return e.Kind == app.Kind
	}
	return errors.Is(e.Inner, target)
}

// ============================================================
// Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, kind Kind) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind}
}

// Wrap wraps err with a code, message and kind. Returns nil if err is nil.
func Wrap(err error, code, message string, kind Kind) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Kind: kind, Inner: err}
}

// RateLimited creates a rate-limit error with the suggested retry delay.
func RateLimited(backend string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       CodeBackendRateLimited,
		Message:    "backend rate limited",
		Kind:       KindRateLimited,
		RetryAfter: retryAfter,
		Backend:    backend,
	}
}

// Unavailable creates a transient backend failure error.
func Unavailable(backend string, inner error) *AppError {
	return &AppError{
		Code:    CodeBackendUnavailable,
		Message: "backend unavailable",
		Kind:    KindUnavailable,
		Inner:   inner,
		Backend: backend,
	}
}

// Invalid creates a non-retryable bad-request error.
func Invalid(backend string, inner error) *AppError {
	return &AppError{
		Code:    CodeBackendInvalidRequest,
		Message: "backend rejected request",
		Kind:    KindInvalid,
		Inner:   inner,
		Backend: backend,
	}
}

// NoBackend creates the configuration-gap error: nothing can serve the request.
func NoBackend(message string) *AppError {
	return &AppError{Code: CodeNoBackendAvailable, Message: message, Kind: KindNoBackend}
}

// BudgetExceeded creates the hard budget-stop error.
func BudgetExceeded(message string) *AppError {
	return &AppError{Code: CodeBudgetExceeded, Message: message, Kind: KindBudgetExceeded}
}

// ConsensusAllFailed creates the error for a fan-out with zero successes.
func ConsensusAllFailed(last error) *AppError {
	return &AppError{
		Code:    CodeConsensusAllFailed,
		Message: "all consensus participants failed",
		Kind:    KindConsensusFailed,
		Inner:   last,
	}
}

// ============================================================
// Error Codes
// ============================================================

const (
	CodeBackendRateLimited    = "BACKEND_RATE_LIMITED"
	CodeBackendUnavailable    = "BACKEND_UNAVAILABLE"
	CodeBackendInvalidRequest = "BACKEND_INVALID_REQUEST"
	CodeNoBackendAvailable    = "NO_BACKEND_AVAILABLE"
	CodeBudgetExceeded        = "BUDGET_EXCEEDED"
	CodeConsensusAllFailed    = "CONSENSUS_ALL_FAILED"
	CodeLedgerStore           = "LEDGER_STORE_FAILED"
	CodeConfigInvalid         = "CONFIG_INVALID"
	CodeInvalidInput          = "INVALID_INPUT"
)

// ============================================================
// Helpers
// ============================================================

// GetKind extracts the Kind from an error. Unknown errors are treated as
// unavailable, the safe default for network-shaped failures.
func GetKind(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.Kind
	}
	return KindUnavailable
}

// IsRetryable reports whether the dispatcher may try another backend after
// this error. Only rate-limit and transient failures qualify.
func IsRetryable(err error) bool {
	switch GetKind(err) {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the backend-suggested retry delay, or zero.
func GetRetryAfter(err error) time.Duration {
	var app *AppError
	if errors.As(err, &app) {
		return app.RetryAfter
	}
	return 0
}

// BackendName returns the backend that produced the error, or "".
func BackendName(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Backend
	}
	return ""
}
