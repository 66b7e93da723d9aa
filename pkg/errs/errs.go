// Package errs defines the closed set of tagged error kinds used at every
// public boundary of the engine. Errors are never typed as exceptions at the
// boundary: a Kind plus an optional reason string is always enough for the
// HTTP layer to render {status, reason, ...}.
package errs

import (
	"github.com/pkg/errors"
)

// Kind is the closed set of error kinds the engine can return.
type Kind string

const (
	InvalidPayload        Kind = "invalid_payload"
	UnsupportedAsset      Kind = "unsupported_asset"
	InvalidLeverage       Kind = "invalid_leverage"
	NoQuote               Kind = "no_quote"
	PremiumFloor          Kind = "premium_floor"
	PerpFallback          Kind = "perp_fallback"
	QuoteExpired          Kind = "quote_expired"
	QuoteDrift             Kind = "quote_drift"
	QuoteUnknown          Kind = "quote_unknown"
	MissingExecutor       Kind = "missing_executor"
	DrawdownBufferPositive Kind = "drawdown_buffer_positive"
	MissingDrawdownInputs Kind = "missing_drawdown_inputs"
	RequestFailed         Kind = "request_failed"
	Timeout               Kind = "timeout"
)

// Error is the engine's boundary error type: a Kind, a human reason, and an
// optional wrapped cause for logging (never surfaced on the wire).
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return string(e.Kind) + ": " + e.Reason
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a boundary error with no reason text.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap builds a boundary error with a reason and wraps cause for diagnostics.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: errors.WithStack(cause)}
}

// WithReason builds a boundary error carrying only a reason string.
func WithReason(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrInvalidPayload  = New(InvalidPayload)
	ErrInvalidLeverage = New(InvalidLeverage)
	ErrNoQuote         = New(NoQuote)
	ErrMissingExecutor = New(MissingExecutor)
)
