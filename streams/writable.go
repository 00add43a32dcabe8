package streams

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// Sink consumes chunks written to a WritableStream. All hooks are optional.
//
// Write sees chunks strictly in submission order with at most one call in
// flight; the next write is not issued until the returned promise settles
// (nil means the write completed synchronously). Close runs after the queue
// drains; Abort runs on abort with the abort reason.
type Sink struct {
	Start func(c *WritableController) error
	Write func(chunk any, c *WritableController) *sched.Promise[sched.Void]
	Close func() *sched.Promise[sched.Void]
	Abort func(reason error) *sched.Promise[sched.Void]
}

type pendingWrite struct {
	chunk any
	size  float64
	p     *sched.Promise[sched.Void]
}

// WritableStream is a push-based sink with backpressure accounting and
// exactly one active writer at a time.
type WritableStream struct {
	loop          *sched.Loop
	sink          Sink
	controller    *WritableController
	writer        *Writer
	storedErr     error
	queue         []pendingWrite
	queuedSize    float64
	sizeFn        SizeFunc
	highWaterMark float64
	state         streamState

	readyPromise  *sched.Promise[sched.Void]
	closedPromise *sched.Promise[sched.Void]

	started        bool
	inFlight       bool
	closeRequested bool
	closeStarted   bool
}

// NewWritableStream creates a stream backed by sink. Must be called on the
// loop. The default strategy is a count strategy with a high-water mark of 1.
func NewWritableStream(loop *sched.Loop, sink Sink, strategy *QueuingStrategy) *WritableStream {
	s := &WritableStream{loop: loop, sink: sink}
	s.highWaterMark, s.sizeFn = normalizeStrategy(strategy, 1)
	s.controller = &WritableController{stream: s}
	s.readyPromise = sched.NewPromise[sched.Void](loop)
	s.closedPromise = sched.NewPromise[sched.Void](loop)

	if sink.Start != nil {
		if err := sink.Start(s.controller); err != nil {
			s.errorStream(asStreamError(errors.KindSinkFailed, err))
			return s
		}
	}
	s.started = true
	s.updateReady()
	s.advance()
	return s
}

// Loop returns the scheduler loop this stream is confined to.
func (s *WritableStream) Loop() *sched.Loop {
	return s.loop
}

// Locked reports whether a writer is attached.
func (s *WritableStream) Locked() bool {
	return s.writer != nil
}

// GetWriter locks the stream to a new writer; fails if already locked.
func (s *WritableStream) GetWriter() (*Writer, error) {
	if s.writer != nil {
		return nil, errors.Usage(errors.KindLocked, "writable stream is already locked to a writer")
	}
	w := &Writer{stream: s, loop: s.loop}
	s.writer = w
	return w, nil
}

// Abort aborts the stream. Fails on a locked stream; use the writer's Abort.
func (s *WritableStream) Abort(reason error) *sched.Promise[sched.Void] {
	if s.Locked() {
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindLocked, "cannot abort a locked writable stream"))
	}
	return s.abort(reason)
}

func (s *WritableStream) desiredSize() float64 {
	if s.state != stateActive {
		return 0
	}
	return s.highWaterMark - s.queuedSize
}

// abort discards the queue and transitions to errored immediately; the
// returned promise tracks the sink's abort hook.
func (s *WritableStream) abort(reason error) *sched.Promise[sched.Void] {
	if s.state != stateActive {
		return sched.Resolved(s.loop, sched.Void{})
	}
	if reason == nil {
		reason = errors.Abort(nil)
	}
	s.errorStream(reason)

	if s.sink.Abort != nil {
		if p := s.sink.Abort(reason); p != nil {
			return p
		}
	}
	return sched.Resolved(s.loop, sched.Void{})
}

// errorStream fails all pending and future writes. Idempotent.
func (s *WritableStream) errorStream(reason error) {
	if s.state != stateActive {
		return
	}
	s.state = stateErrored
	s.storedErr = reason

	queue := s.queue
	s.queue = nil
	s.queuedSize = 0
	for _, w := range queue {
		w.p.Reject(reason)
	}
	s.closedPromise.Reject(reason)
	s.readyPromise.Reject(reason)
}

// updateReady keeps the writer's ready signal in sync with desiredSize.
func (s *WritableStream) updateReady() {
	if s.state != stateActive {
		return
	}
	if s.desiredSize() > 0 {
		s.readyPromise.Resolve(sched.Void{})
		return
	}
	if s.readyPromise.Settled() {
		s.readyPromise = sched.NewPromise[sched.Void](s.loop)
	}
}

// advance drives the sink: at most one write (or the final close) in flight.
func (s *WritableStream) advance() {
	if !s.started || s.inFlight || s.state != stateActive {
		return
	}
	if len(s.queue) == 0 {
		if s.closeRequested && !s.closeStarted {
			s.finishClose()
		}
		return
	}

	w := s.queue[0]
	s.inFlight = true
	var p *sched.Promise[sched.Void]
	if s.sink.Write != nil {
		p = s.sink.Write(w.chunk, s.controller)
	}
	if p == nil {
		p = sched.Resolved(s.loop, sched.Void{})
	}
	p.Then(func(_ sched.Void, err error) {
		s.inFlight = false
		if err != nil {
			err = asStreamError(errors.KindSinkFailed, err)
			w.p.Reject(err)
			s.errorStream(err)
			return
		}
		if s.state != stateActive {
			return
		}
		// Dequeue only after the sink confirmed this write.
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.queuedSize -= w.size
		if len(s.queue) == 0 {
			s.queuedSize = 0
		}
		w.p.Resolve(sched.Void{})
		s.updateReady()
		s.advance()
	})
}

func (s *WritableStream) finishClose() {
	s.closeStarted = true
	s.inFlight = true
	var p *sched.Promise[sched.Void]
	if s.sink.Close != nil {
		p = s.sink.Close()
	}
	if p == nil {
		p = sched.Resolved(s.loop, sched.Void{})
	}
	p.Then(func(_ sched.Void, err error) {
		s.inFlight = false
		if err != nil {
			s.errorStream(asStreamError(errors.KindSinkFailed, err))
			return
		}
		if s.state != stateActive {
			return
		}
		s.state = stateClosed
		s.closedPromise.Resolve(sched.Void{})
	})
}

// WritableController is handed to sink hooks.
type WritableController struct {
	stream *WritableStream
}

// Error moves the stream to the terminal errored state.
func (c *WritableController) Error(reason error) {
	if reason == nil {
		reason = errors.Stream(errors.KindSinkFailed, "stream errored", nil)
	}
	c.stream.errorStream(reason)
}

// Writer is the single producer handle of a locked WritableStream.
type Writer struct {
	stream *WritableStream
	loop   *sched.Loop
}

// Write submits a chunk. The returned promise resolves when the sink has
// finished consuming this specific chunk. Writes issued without awaiting
// Ready are not rejected; Ready only signals pressure.
func (w *Writer) Write(chunk any) *sched.Promise[sched.Void] {
	s := w.stream
	if s == nil {
		return sched.Rejected[sched.Void](w.loop,
			errors.Usage(errors.KindReleased, "write on a released writer"))
	}
	switch s.state {
	case stateErrored:
		return sched.Rejected[sched.Void](s.loop, s.storedErr)
	case stateClosed:
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindInvalidState, "write on a closed stream"))
	}
	if s.closeRequested {
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindInvalidState, "write after close was requested"))
	}

	size := s.sizeFn(chunk)
	p := sched.NewPromise[sched.Void](s.loop)
	s.queue = append(s.queue, pendingWrite{chunk: chunk, size: size, p: p})
	s.queuedSize += size
	s.updateReady()
	s.advance()
	return p
}

// Ready resolves whenever desiredSize > 0. This is the backpressure signal
// producers await before the next write.
func (w *Writer) Ready() *sched.Promise[sched.Void] {
	if w.stream == nil {
		return sched.Rejected[sched.Void](w.loop,
			errors.Usage(errors.KindReleased, "ready on a released writer"))
	}
	return w.stream.readyPromise
}

// Closed resolves when the stream finishes closing and rejects if it errors.
func (w *Writer) Closed() *sched.Promise[sched.Void] {
	if w.stream == nil {
		return sched.Rejected[sched.Void](w.loop,
			errors.Usage(errors.KindReleased, "closed on a released writer"))
	}
	return w.stream.closedPromise
}

// DesiredSize is highWaterMark minus the queued size, or 0 once the stream
// is closed or errored.
func (w *Writer) DesiredSize() float64 {
	if w.stream == nil {
		return 0
	}
	return w.stream.desiredSize()
}

// Close drains the queue, invokes the sink's close hook, then transitions
// the stream to closed.
func (w *Writer) Close() *sched.Promise[sched.Void] {
	s := w.stream
	if s == nil {
		return sched.Rejected[sched.Void](w.loop,
			errors.Usage(errors.KindReleased, "close on a released writer"))
	}
	switch s.state {
	case stateErrored:
		return sched.Rejected[sched.Void](s.loop, s.storedErr)
	case stateClosed:
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindInvalidState, "close on an already closed stream"))
	}
	if s.closeRequested {
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindInvalidState, "close already requested"))
	}
	s.closeRequested = true
	s.advance()
	return s.closedPromise
}

// Abort discards queued writes and transitions to errored immediately.
func (w *Writer) Abort(reason error) *sched.Promise[sched.Void] {
	if w.stream == nil {
		return sched.Rejected[sched.Void](w.loop,
			errors.Usage(errors.KindReleased, "abort on a released writer"))
	}
	return w.stream.abort(reason)
}

// ReleaseLock detaches the writer. Outstanding write promises stay valid.
func (w *Writer) ReleaseLock() {
	if w.stream == nil {
		return
	}
	w.stream.writer = nil
	w.stream = nil
}
