// Package streams implements the browser-standard stream model: pull-based
// readable streams, push-based writable streams with backpressure accounting,
// transform streams coupling the two, and the composition operators tee,
// pipeTo, and pipeThrough.
//
// # Confinement
//
// Every stream, reader, writer, and controller is confined to the sched.Loop
// passed at construction: all methods must be called from tasks running on
// that loop. The only values that may leave the loop are promises, observed
// via Result. Sources and sinks that perform native I/O must marshal their
// completions back onto the loop before touching a controller; the bridge
// package does exactly that.
//
// # State machine
//
// Each stream side moves monotonically through
//
//	active → (closing) → closed
//	active → errored
//
// closed and errored are terminal. Queue contents and lock flags are only
// mutated from the loop goroutine, so no stream state requires locking.
//
// # Sources and sinks
//
// Source, Sink, and Transformer are capability records: every hook is
// optional and a nil hook is a no-op default, not a runtime type error.
// Hooks that do asynchronous work return a promise; returning nil means the
// hook completed synchronously.
package streams
