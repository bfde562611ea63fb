// Package gatewayerr defines the structured error taxonomy returned by every
// trading-side and read-side operation in the gateway. Callers use
// errors.As to recover the Kind and Details rather than matching strings.
package gatewayerr

import "fmt"

// Kind identifies one of the fixed error categories an operation can fail with.
type Kind string

// Error kinds. Each corresponds to a failure mode enumerated by the safety
// and resolution design; AuditWriteFailed is intentionally never wrapped in
// an Error value (see audit package) since it must never surface to callers.
const (
	NotConnected        Kind = "NotConnected"
	TradingDisabled     Kind = "TradingDisabled"
	EmergencyHalt       Kind = "EmergencyHalt"
	LiveAccountBlocked  Kind = "LiveAccountBlocked"
	RateLimited         Kind = "RateLimited"
	DailyLimitExceeded  Kind = "DailyLimitExceeded"
	InvalidParameter    Kind = "InvalidParameter"
	NoRateAvailable     Kind = "NoRateAvailable"
	BrokerTimeout       Kind = "BrokerTimeout"
	BrokerRejected      Kind = "BrokerRejected"
	PermissionDenied    Kind = "PermissionDenied"
)

// Error is the concrete error type carried through the gateway. Details
// holds machine-readable context keyed per Kind (e.g. "class"/"retry_after"
// for RateLimited, "which"/"current"/"max" for DailyLimitExceeded).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Unwrap allows errors.Is/errors.As to see through to a wrapped cause.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, gatewayerr.New(gatewayerr.NotConnected, "")) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a bare Error of the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: cause}
}

// WithDetails attaches machine-readable context and returns the same Error
// for chaining, e.g. gatewayerr.New(...).WithDetails(map[string]any{...}).
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// RateLimitedErr builds the RateLimited(class, retry_after_seconds) kind.
func RateLimitedErr(class string, retryAfterSeconds float64) *Error {
	return New(RateLimited, fmt.Sprintf("rate limit exceeded for %s, retry after %.1fs", class, retryAfterSeconds)).
		WithDetails(map[string]any{"class": class, "retry_after_seconds": retryAfterSeconds})
}

// DailyLimitExceededErr builds the DailyLimitExceeded(which, current, max) kind.
func DailyLimitExceededErr(which string, current, max int) *Error {
	return New(DailyLimitExceeded, fmt.Sprintf("daily limit exceeded for %s: %d/%d", which, current, max)).
		WithDetails(map[string]any{"which": which, "current": current, "max": max})
}

// EmergencyHaltErr builds the EmergencyHalt(reason) kind.
func EmergencyHaltErr(reason string) *Error {
	return New(EmergencyHalt, fmt.Sprintf("kill switch active: %s", reason)).
		WithDetails(map[string]any{"reason": reason})
}

// FromDecision rebuilds an Error from a safety-chain rejection, preserving
// the kind of whichever check failed first instead of collapsing every
// rejection to InvalidParameter. kind is expected to be one of this
// package's Kind constants rendered as a string (as models.ValidationDecision
// stores it, to avoid that package importing this one); an empty or
// unrecognized kind falls back to InvalidParameter.
func FromDecision(kind, message string) *Error {
	switch Kind(kind) {
	case NotConnected, TradingDisabled, EmergencyHalt, LiveAccountBlocked, RateLimited,
		DailyLimitExceeded, InvalidParameter, NoRateAvailable, BrokerTimeout, BrokerRejected, PermissionDenied:
		return New(Kind(kind), message)
	default:
		return New(InvalidParameter, message)
	}
}

// InvalidParameterErr builds the InvalidParameter(field, reason) kind.
func InvalidParameterErr(field, reason string) *Error {
	return New(InvalidParameter, fmt.Sprintf("invalid parameter %s: %s", field, reason)).
		WithDetails(map[string]any{"field": field, "reason": reason})
}

// NoRateAvailableErr builds the NoRateAvailable(from, to) kind.
func NoRateAvailableErr(from, to string) *Error {
	return New(NoRateAvailable, fmt.Sprintf("no conversion path available for %s->%s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
