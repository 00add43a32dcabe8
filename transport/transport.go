package transport

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"net"

	"github.com/wippyai/stream-runtime/errors"
)

// Head describes an outgoing request before any body bytes are produced.
type Head struct {
	Method string
	URL    string
	Header map[string][]string
	// ContentLength is the exact body length in bytes, or -1 when the body
	// is streamed with unknown length. Ignored when HasBody is false.
	ContentLength int64
	HasBody       bool
}

// ResponseHead carries the response status line and headers. Body bytes are
// pulled separately through Exchange.ReadChunk.
type ResponseHead struct {
	Status     int
	StatusText string
	Header     map[string][]string
	// ContentLength is -1 when the response length is unknown.
	ContentLength int64
}

// Exchange is a single request/response round trip in flight.
type Exchange interface {
	// WriteChunk sends one chunk of the request body. It blocks while the
	// peer is not consuming; that block is the upload backpressure signal.
	WriteChunk(ctx context.Context, p []byte) error

	// FinishBody marks the end of the request body. No WriteChunk may
	// follow. Required even for empty bodies when Head.HasBody was set.
	FinishBody(ctx context.Context) error

	// Response blocks until the response head arrives. At most one call.
	Response(ctx context.Context) (*ResponseHead, error)

	// ReadChunk returns the next response body chunk, or io.EOF after the
	// last one. The caller owns the returned slice.
	ReadChunk(ctx context.Context) ([]byte, error)

	// Cancel tears the exchange down. Idempotent, safe from any goroutine;
	// blocked calls fail promptly with reason.
	Cancel(reason error)
}

// Transport opens exchanges against some native HTTP stack.
type Transport interface {
	Open(ctx context.Context, head *Head) (Exchange, error)
}

// Classify wraps a raw transport failure in the structured error taxonomy.
// Already-structured errors pass through unchanged.
func Classify(err error) *errors.Error {
	if err == nil {
		return nil
	}
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return structured
	}

	if stderrors.Is(err, context.Canceled) {
		return errors.Transport(errors.KindAbort, "exchange cancelled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transport(errors.KindTimeout, "exchange deadline exceeded", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Transport(errors.KindTimeout, "network timeout", err)
	}

	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	if stderrors.As(err, &recordErr) || stderrors.As(err, &verifyErr) {
		return errors.Transport(errors.KindTLS, "tls handshake failed", err)
	}

	return errors.Transport(errors.KindNetwork, "network failure", err)
}
