// Package errors provides structured error types for the stream-runtime library.
//
// Errors are categorized by Class (which contract was violated) and Kind
// (error category within that class). The Error type includes a detail
// message, an optional script-provided reason value, and a cause chain.
//
// The four classes map to the runtime's failure domains:
//
//	ClassUsage      local programming errors (double lock, released reader)
//	ClassStream     errors raised by or propagated through a stream
//	ClassTransport  failures surfaced by the native transport bridge
//	ClassRedirect   failures from the HTTP redirect state machine
//
// Use the convenience constructors for common patterns:
//
//	err := errors.Usage(errors.KindLocked, "stream already has a reader")
//	err := errors.Transport(errors.KindTimeout, "request deadline exceeded", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
