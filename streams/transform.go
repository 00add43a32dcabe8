package streams

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// Transformer maps chunks written to a TransformStream's writable side into
// chunks enqueued on its readable side. All hooks are optional; a nil
// Transform passes chunks through unchanged (an identity transform).
//
// Transform runs once per write, in write order. Flush runs once when the
// writable side closes, for final enqueues, after which the readable side
// closes.
type Transformer struct {
	Start     func(c *TransformController) error
	Transform func(chunk any, c *TransformController) *sched.Promise[sched.Void]
	Flush     func(c *TransformController) *sched.Promise[sched.Void]
}

// TransformStream pairs a writable side with a readable side. Backpressure
// couples them: the writable side's ready signal is derived from the
// readable side's queue pressure, so a stalled downstream reader stalls the
// upstream writer.
type TransformStream struct {
	loop        *sched.Loop
	transformer Transformer
	readable    *ReadableStream
	writable    *WritableStream
	controller  *TransformController

	// gate is pending while the readable side reports backpressure.
	gate         *sched.Promise[sched.Void]
	backpressure bool
}

// NewTransformStream creates a transform stream. Must be called on the loop.
// The writable side defaults to a count strategy with high-water mark 1; the
// readable side to high-water mark 0, so chunks flow only on demand.
func NewTransformStream(loop *sched.Loop, tr Transformer, writableStrategy, readableStrategy *QueuingStrategy) *TransformStream {
	ts := &TransformStream{loop: loop, transformer: tr}
	ts.controller = &TransformController{ts: ts}

	// Until the first pull there is no demand downstream.
	ts.backpressure = true
	ts.gate = sched.NewPromise[sched.Void](loop)

	if readableStrategy == nil {
		readableStrategy = CountStrategy(0)
	}
	ts.readable = NewReadableStream(loop, Source{
		Pull: func(*ReadableController) *sched.Promise[sched.Void] {
			ts.setBackpressure(false)
			return nil
		},
		Cancel: func(reason error) *sched.Promise[sched.Void] {
			ts.writable.errorStream(asStreamError(errors.KindCancelled, reasonOrCancelled(reason)))
			return nil
		},
	}, readableStrategy)

	ts.writable = NewWritableStream(loop, Sink{
		Write: ts.sinkWrite,
		Close: ts.sinkClose,
		Abort: func(reason error) *sched.Promise[sched.Void] {
			ts.readable.errorStream(reason)
			return nil
		},
	}, writableStrategy)

	if tr.Start != nil {
		if err := tr.Start(ts.controller); err != nil {
			ts.controller.Error(asStreamError(errors.KindSinkFailed, err))
		}
	}
	return ts
}

// Readable returns the output side.
func (ts *TransformStream) Readable() *ReadableStream {
	return ts.readable
}

// Writable returns the input side.
func (ts *TransformStream) Writable() *WritableStream {
	return ts.writable
}

func (ts *TransformStream) setBackpressure(bp bool) {
	if bp == ts.backpressure {
		return
	}
	ts.backpressure = bp
	if bp {
		if ts.gate.Settled() {
			ts.gate = sched.NewPromise[sched.Void](ts.loop)
		}
	} else {
		ts.gate.Resolve(sched.Void{})
	}
}

func (ts *TransformStream) sinkWrite(chunk any, _ *WritableController) *sched.Promise[sched.Void] {
	if !ts.backpressure {
		return ts.performTransform(chunk)
	}
	p := sched.NewPromise[sched.Void](ts.loop)
	ts.gate.Then(func(_ sched.Void, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		inner := ts.performTransform(chunk)
		if inner == nil {
			p.Resolve(sched.Void{})
			return
		}
		inner.Then(func(_ sched.Void, err error) {
			if err != nil {
				p.Reject(err)
			} else {
				p.Resolve(sched.Void{})
			}
		})
	})
	return p
}

func (ts *TransformStream) performTransform(chunk any) *sched.Promise[sched.Void] {
	if ts.transformer.Transform == nil {
		if err := ts.controller.Enqueue(chunk); err != nil {
			return sched.Rejected[sched.Void](ts.loop, err)
		}
		return sched.Resolved(ts.loop, sched.Void{})
	}

	p := ts.transformer.Transform(chunk, ts.controller)
	if p == nil {
		return sched.Resolved(ts.loop, sched.Void{})
	}
	out := sched.NewPromise[sched.Void](ts.loop)
	p.Then(func(_ sched.Void, err error) {
		if err != nil {
			err = asStreamError(errors.KindSinkFailed, err)
			ts.controller.Error(err)
			out.Reject(err)
			return
		}
		out.Resolve(sched.Void{})
	})
	return out
}

func (ts *TransformStream) sinkClose() *sched.Promise[sched.Void] {
	var flush *sched.Promise[sched.Void]
	if ts.transformer.Flush != nil {
		flush = ts.transformer.Flush(ts.controller)
	}
	if flush == nil {
		flush = sched.Resolved(ts.loop, sched.Void{})
	}

	out := sched.NewPromise[sched.Void](ts.loop)
	flush.Then(func(_ sched.Void, err error) {
		if err != nil {
			err = asStreamError(errors.KindSinkFailed, err)
			ts.controller.Error(err)
			out.Reject(err)
			return
		}
		if ts.readable.state == stateActive && !ts.readable.closeRequested {
			_ = ts.readable.controller.Close()
		}
		out.Resolve(sched.Void{})
	})
	return out
}

// TransformController is handed to transformer hooks.
type TransformController struct {
	ts *TransformStream
}

// DesiredSize mirrors the readable side's desired size.
func (c *TransformController) DesiredSize() float64 {
	return c.ts.readable.controller.DesiredSize()
}

// Enqueue pushes a chunk onto the readable side and refreshes the
// backpressure coupling.
func (c *TransformController) Enqueue(chunk any) error {
	ts := c.ts
	if err := ts.readable.controller.Enqueue(chunk); err != nil {
		return err
	}
	ts.setBackpressure(ts.readable.controller.DesiredSize() <= 0)
	return nil
}

// Error moves both sides to the terminal errored state.
func (c *TransformController) Error(reason error) {
	if reason == nil {
		reason = errors.Stream(errors.KindSinkFailed, "transform errored", nil)
	}
	c.ts.readable.errorStream(reason)
	c.ts.writable.errorStream(reason)
	c.ts.setBackpressure(false)
}

// Terminate closes the readable side and errors the writable side, ending
// the transform early.
func (c *TransformController) Terminate() {
	ts := c.ts
	if ts.readable.state == stateActive && !ts.readable.closeRequested {
		_ = ts.readable.controller.Close()
	}
	ts.writable.errorStream(errors.Stream(errors.KindCancelled, "transform terminated", nil))
	ts.setBackpressure(false)
}

func reasonOrCancelled(reason error) error {
	if reason != nil {
		return reason
	}
	return errors.Stream(errors.KindCancelled, "readable side cancelled", nil)
}
