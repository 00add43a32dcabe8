// Package streamruntime provides browser-standard streaming I/O primitives
// and an HTTP client abstraction for embedded scripting runtimes.
//
// The library implements the readable/writable/transform stream model with
// backpressure, composition operators (tee, pipeTo, pipeThrough), and a fetch
// style HTTP exchange layer, all driven by a single-threaded cooperative
// scheduler. A bridge component marshals chunks, errors, and cancellation
// between that scheduler and a multi-threaded native transport.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	stream-runtime/
//	├── sched/      Cooperative run loop, promises, and abort signals
//	├── streams/    ReadableStream, WritableStream, TransformStream, pipes
//	├── transport/  Native async transport contract and implementations
//	├── bridge/     Marshaling between native transports and streams
//	├── fetch/      Request/Response, body negotiation, redirects, multipart
//	├── resource/   Handle table for exposing runtime objects to an engine
//	├── host/       Handle-based host function bindings for embedders
//	└── errors/     Structured error types for debugging
//
// # Quick Start
//
// Run a fetch against the default transport:
//
//	loop := sched.NewLoop()
//	go loop.Run(ctx)
//
//	client := fetch.NewClient(loop)
//
//	p, _ := sched.Call(ctx, loop, func() *sched.Promise[*fetch.Response] {
//	    req, _ := fetch.NewRequest("https://example.com/data", nil)
//	    return client.Fetch(ctx, req)
//	})
//	resp, err := p.Result(ctx)
//
// # Threading Model
//
// All stream and fetch objects are confined to the scheduler's goroutine:
// every method on them must run from a task posted to the Loop. Promises are
// the only objects that may be observed from other goroutines, via Result.
// The bridge and transport packages are the only components that execute off
// the loop; they never touch stream state directly and instead post marshaled
// events onto the loop's run queue.
package streamruntime
