// Package bridge connects loop-confined streams to native transport
// exchanges.
//
// # Threading Model
//
// Streams mutate only on the script loop; an Exchange blocks on ordinary
// goroutines. The bridge keeps the two apart with a strict hand-off
// discipline:
//
//   - Download: each readable pull spawns one native read. The chunk (or
//     terminal signal) crosses back by posting onto the loop, so at most one
//     native read is in flight per stream and delivery order matches read
//     order.
//   - Upload: a single pump goroutine alternates between a loop-side read
//     (posted, then awaited through the promise) and a native WriteChunk.
//     The blocking write is the backpressure signal; the next read does not
//     start until the previous chunk is accepted.
//
// Run ties both directions to one exchange with first-error semantics and
// optional abort-signal wiring.
package bridge
