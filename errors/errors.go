package errors

import (
	"fmt"
	"strings"
)

// Class indicates which contract the error violated.
type Class string

const (
	ClassUsage     Class = "usage"     // local programming errors, never retried
	ClassStream    Class = "stream"    // raised by a source/sink/transform callback
	ClassTransport Class = "transport" // surfaced by the native transport bridge
	ClassRedirect  Class = "redirect"  // HTTP redirect state machine failures
)

// Kind categorizes the error within its class.
type Kind string

const (
	// Usage kinds.
	KindLocked       Kind = "locked"        // stream already has an active reader/writer
	KindReleased     Kind = "released"      // operation on a released reader/writer
	KindInvalidState Kind = "invalid_state" // operation not valid in current stream state
	KindBodyUsed     Kind = "body_used"     // body stream already consumed or locked
	KindNotReplay    Kind = "not_replayable"

	// Stream kinds.
	KindSourceFailed Kind = "source_failed"
	KindSinkFailed   Kind = "sink_failed"
	KindCancelled    Kind = "cancelled"

	// Transport kinds.
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindTLS     Kind = "tls"
	KindAbort   Kind = "abort"

	// Redirect kinds.
	KindNotAllowed Kind = "not_allowed"
	KindLoop       Kind = "loop"
)

// Error is the structured error type used throughout the runtime.
type Error struct {
	// Reason is an optional script-provided value (a cancel or abort reason).
	Reason any
	Cause  error
	Class  Class
	Kind   Kind
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Class))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Reason != nil {
		fmt.Fprintf(&b, " (reason: %v)", e.Reason)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by class and kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Class == t.Class && e.Kind == t.Kind
	}
	return false
}

// Usage creates a programming-error signal. It is never retried and
// indicates a bug in the caller, not a runtime condition.
func Usage(kind Kind, detail string) *Error {
	return &Error{Class: ClassUsage, Kind: kind, Detail: detail}
}

// Stream creates an error propagated through a stream side.
func Stream(kind Kind, detail string, cause error) *Error {
	return &Error{Class: ClassStream, Kind: kind, Detail: detail, Cause: cause}
}

// Transport creates an error surfaced from the native transport.
func Transport(kind Kind, detail string, cause error) *Error {
	return &Error{Class: ClassTransport, Kind: kind, Detail: detail, Cause: cause}
}

// Redirect creates an error from the HTTP redirect state machine.
func Redirect(kind Kind, detail string) *Error {
	return &Error{Class: ClassRedirect, Kind: kind, Detail: detail}
}

// Abort creates the canonical abort error carrying an optional reason value.
func Abort(reason any) *Error {
	return &Error{Class: ClassTransport, Kind: KindAbort, Detail: "operation was aborted", Reason: reason}
}

// IsAbort reports whether err is an abort-kind error anywhere in its chain.
func IsAbort(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindAbort {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf returns the Kind of err if it is a structured Error, or "" otherwise.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
