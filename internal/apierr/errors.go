// Package apierr defines the tagged error taxonomy shared across the
// proxy pipeline. Every pipeline component returns one of these values
// rather than raising an exception across a component boundary; a single
// boundary adapter in internal/api converts a *Error into the right HTTP
// status per dialect.
package apierr

import (
	"fmt"
	"time"
)

// Kind identifies which failure category an Error instance belongs to,
// each with its own HTTP status and retry disposition.
type Kind string

const (
	KindInvalidRequest         Kind = "invalid_request"
	KindUnauthorized           Kind = "unauthorized"
	KindUnknownModel           Kind = "unknown_model"
	KindRateLimited            Kind = "rate_limited"
	KindTransient              Kind = "transient"
	KindTerminal               Kind = "terminal"
	KindAllBackendsUnavailable Kind = "all_backends_unavailable"
	KindLoopDetected           Kind = "loop_detected"
	KindCancelled              Kind = "cancelled"
)

// Error is the tagged value carried through the pipeline for every failure
// mode a dispatch attempt can end in.
type Error struct {
	Kind    Kind
	Message string

	// UpstreamStatus is set by Terminal errors: the HTTP status code
	// reported by the upstream backend, preserved to the client.
	UpstreamStatus int

	// Delay is set by RateLimited: how long before the (backend, model,
	// key) may be retried.
	Delay time.Duration

	// Earliest is set by AllBackendsUnavailable: the soonest any blocked
	// candidate becomes available again.
	Earliest *time.Time
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil apierr.Error>"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InvalidRequest constructs a KindInvalidRequest error.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized constructs a KindUnauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// UnknownModel constructs a KindUnknownModel error.
func UnknownModel(message string) *Error {
	return &Error{Kind: KindUnknownModel, Message: message}
}

// RateLimited constructs a KindRateLimited error carrying the parsed retry
// delay, when one was deducible from the upstream payload.
func RateLimited(delay time.Duration, message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message, Delay: delay}
}

// Transient constructs a KindTransient error.
func Transient(message string) *Error {
	return &Error{Kind: KindTransient, Message: message}
}

// Terminal constructs a KindTerminal error preserving the upstream status.
func Terminal(status int, message string) *Error {
	return &Error{Kind: KindTerminal, Message: message, UpstreamStatus: status}
}

// AllBackendsUnavailable constructs a KindAllBackendsUnavailable error.
func AllBackendsUnavailable(earliest *time.Time) *Error {
	msg := "all candidate backends are currently unavailable"
	return &Error{Kind: KindAllBackendsUnavailable, Message: msg, Earliest: earliest}
}

// Cancelled constructs a KindCancelled error.
func Cancelled() *Error {
	return &Error{Kind: KindCancelled, Message: "request cancelled"}
}

// HTTPStatus maps an error's Kind to the HTTP status code it should
// produce. KindUnknownModel's disposition depends on interactive mode,
// which callers must special-case before falling back to this helper.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return 400
	case KindUnauthorized:
		return 401
	case KindUnknownModel:
		return 404
	case KindTerminal:
		if e.UpstreamStatus != 0 {
			return e.UpstreamStatus
		}
		return 502
	case KindAllBackendsUnavailable:
		return 503
	default:
		return 500
	}
}
