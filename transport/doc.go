// Package transport defines the native side of the streaming exchange: a
// Transport opens an Exchange, and the Exchange carries one request/response
// round trip chunk by chunk.
//
// # Contract
//
// Everything in this package runs on ordinary goroutines and blocks on
// context.Context; nothing here touches the script loop. The bridge package
// owns the hand-off between an Exchange and loop-confined streams.
//
// An Exchange moves through three phases:
//
//  1. Upload: WriteChunk is called zero or more times, then FinishBody.
//     WriteChunk blocking IS the upload backpressure signal.
//  2. Response: Response blocks until the status line and headers arrive.
//     It may be called at most once.
//  3. Download: ReadChunk returns body chunks in order and io.EOF after the
//     final chunk. The returned slice is owned by the caller.
//
// Cancel is safe from any goroutine at any phase and is idempotent. After
// Cancel, every blocked or future call fails promptly.
//
// # Implementations
//
// NetHTTP adapts net/http with redirect-following disabled (the exchange
// layer above decides redirects). FastHTTP adapts valyala/fasthttp with
// streaming response bodies. Script is an in-memory transport for tests:
// it records uploads and serves scripted replies.
package transport
