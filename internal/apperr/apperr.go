// Package apperr defines the typed error vocabulary used across the
// session engine. Every error the router can surface to a client maps
// to one of a small fixed set of kinds with a short, non-sensitive
// message.
package apperr

import "fmt"

// Kind classifies an error for routing to the right outbound event
// and metrics counter.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindAuthDenied      Kind = "auth_denied"
	KindConflict        Kind = "conflict"
	KindTokenExpired    Kind = "token_expired"
	KindBusy            Kind = "busy"
	KindTimeout         Kind = "timeout"
	KindBufferOverflow  Kind = "buffer_overflow"
	KindStorage         Kind = "storage"
)

// Error is the typed error every core operation returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional wrapped cause, never surfaced to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Validation(msg string) *Error   { return new_(KindValidation, msg) }
func NotFound(msg string) *Error     { return new_(KindNotFound, msg) }
func AuthDenied(msg string) *Error   { return new_(KindAuthDenied, msg) }
func Conflict(msg string) *Error     { return new_(KindConflict, msg) }
func TokenExpired(msg string) *Error { return new_(KindTokenExpired, msg) }
func Busy(msg string) *Error         { return new_(KindBusy, msg) }
func Timeout(msg string) *Error      { return new_(KindTimeout, msg) }
func BufferOverflow(msg string) *Error {
	return new_(KindBufferOverflow, msg)
}

func Storage(msg string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: cause}
}

// The Msg* constants are the fixed, client-safe vocabulary for well-known
// conditions. Callers may also construct ad hoc short messages via the
// constructors above; these constants just centralize the common ones
// named in the spec so call sites don't re-type them.
const (
	MsgGameNotFound       = "Game not found"
	MsgNotAuthorized      = "Not authorized"
	MsgInvalidToken       = "Invalid token"
	MsgTokenExpired       = "Token expired"
	MsgPlayerAlreadyClaim = "Player already claimed"
	MsgRateLimitExceeded  = "Rate limit exceeded"
	MsgTooBusy            = "Server busy, try again"
	MsgTimedOut            = "Operation timed out"
)

// As returns err as an *Error and reports whether it is one. It is a
// plain type assertion: an *Error wrapped inside another error is not
// found.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// Is reports whether err is an *Error with the given kind.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
