// Package host exposes the runtime to an embedding script engine as flat,
// handle-based host functions.
//
// An engine registers each host's Register() map under its Namespace() and
// calls the functions from the script thread, which must be the goroutine
// running the scheduler loop. Objects cross the boundary as resource
// handles; asynchronous results come back through the engine-provided
// Completer, keyed by a caller-chosen token.
//
// # Hosts
//
// StreamsHost covers stream construction, readers, writers, tee and pipe.
// FetchHost covers abort controllers, fetch itself, and response accessors.
package host
