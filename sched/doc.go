// Package sched provides the cooperative scheduler the stream engine runs on.
//
// A Loop is a single-goroutine run queue: tasks posted from any goroutine are
// executed one at a time, in FIFO order, on the goroutine that called Run.
// This is the single serialization point for all script-visible state; it
// provides happens-before ordering between native-thread events and stream
// mutations. Nothing in this package busy-waits.
//
// # Promises
//
// Promise[T] is the suspension primitive. It may be settled from any
// goroutine, exactly once; registered callbacks always execute as tasks on
// the owning Loop, in registration order. Result blocks the calling
// goroutine until the promise settles and is the only way to observe a
// promise from outside the loop. Calling Result from the loop goroutine
// deadlocks, so don't.
//
// # Abort signals
//
// AbortController/AbortSignal implement the cancellation token contract:
// firing is idempotent, callbacks are delivered on the Loop, and native
// threads can observe the fire through the signal's Fired channel without
// touching loop state.
package sched
