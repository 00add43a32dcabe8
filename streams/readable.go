package streams

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

type streamState uint8

const (
	stateActive streamState = iota
	stateClosed
	stateErrored
)

// ReadResult is the outcome of a single read: a chunk, or Done after the
// stream closed.
type ReadResult struct {
	Value any
	Done  bool
}

// Source supplies a ReadableStream with data. All hooks are optional.
//
// Pull is invoked when the stream wants more data; at most one pull is
// outstanding at a time, and the next pull is not issued until the returned
// promise settles (nil means the pull completed synchronously). Cancel is
// invoked when the consumer loses interest; its promise becomes the result
// of the cancel operation.
type Source struct {
	Start  func(c *ReadableController) error
	Pull   func(c *ReadableController) *sched.Promise[sched.Void]
	Cancel func(reason error) *sched.Promise[sched.Void]
}

// ReadableStream is a pull-based source of chunks with exactly one active
// reader at a time.
type ReadableStream struct {
	loop          *sched.Loop
	source        Source
	controller    *ReadableController
	reader        *Reader
	storedErr     error
	queue         chunkQueue
	sizeFn        SizeFunc
	highWaterMark float64
	state         streamState

	started        bool
	pulling        bool
	pullAgain      bool
	closeRequested bool
	disturbed      bool
}

// NewReadableStream creates a stream driven by source. Must be called on the
// loop. The default strategy is a count strategy with a high-water mark of 1.
func NewReadableStream(loop *sched.Loop, source Source, strategy *QueuingStrategy) *ReadableStream {
	s := &ReadableStream{loop: loop, source: source}
	s.highWaterMark, s.sizeFn = normalizeStrategy(strategy, 1)
	s.controller = &ReadableController{stream: s}

	if source.Start != nil {
		if err := source.Start(s.controller); err != nil {
			s.controller.Error(asStreamError(errors.KindSourceFailed, err))
			return s
		}
	}
	s.started = true
	s.pullIfNeeded()
	return s
}

// Loop returns the scheduler loop this stream is confined to.
func (s *ReadableStream) Loop() *sched.Loop {
	return s.loop
}

// Locked reports whether a reader is attached.
func (s *ReadableStream) Locked() bool {
	return s.reader != nil
}

// Disturbed reports whether the stream has ever been read from or cancelled.
func (s *ReadableStream) Disturbed() bool {
	return s.disturbed
}

// GetReader locks the stream to a new reader. A second concurrent reader
// request fails immediately with a usage error.
func (s *ReadableStream) GetReader() (*Reader, error) {
	if s.reader != nil {
		return nil, errors.Usage(errors.KindLocked, "readable stream is already locked to a reader")
	}
	r := &Reader{stream: s, loop: s.loop}
	s.reader = r
	return r, nil
}

// Cancel signals loss of interest in the stream. Fails on a locked stream;
// use the reader's Cancel instead.
func (s *ReadableStream) Cancel(reason error) *sched.Promise[sched.Void] {
	if s.Locked() {
		return sched.Rejected[sched.Void](s.loop,
			errors.Usage(errors.KindLocked, "cannot cancel a locked readable stream"))
	}
	return s.cancel(reason)
}

func (s *ReadableStream) cancel(reason error) *sched.Promise[sched.Void] {
	s.disturbed = true
	switch s.state {
	case stateClosed:
		return sched.Resolved(s.loop, sched.Void{})
	case stateErrored:
		return sched.Rejected[sched.Void](s.loop, s.storedErr)
	}

	s.queue.clear()
	s.finishClose()

	if s.source.Cancel != nil {
		if p := s.source.Cancel(reason); p != nil {
			return p
		}
	}
	return sched.Resolved(s.loop, sched.Void{})
}

// finishClose transitions to closed and resolves every pending read with
// done: true.
func (s *ReadableStream) finishClose() {
	if s.state != stateActive {
		return
	}
	s.state = stateClosed
	if s.reader != nil {
		requests := s.reader.requests
		s.reader.requests = nil
		for _, req := range requests {
			req.Resolve(ReadResult{Done: true})
		}
	}
}

func (s *ReadableStream) errorStream(reason error) {
	if s.state != stateActive {
		return
	}
	s.state = stateErrored
	s.storedErr = reason
	s.queue.clear()
	if s.reader != nil {
		requests := s.reader.requests
		s.reader.requests = nil
		for _, req := range requests {
			req.Reject(reason)
		}
	}
}

func (s *ReadableStream) shouldPull() bool {
	if s.state != stateActive || s.closeRequested || !s.started {
		return false
	}
	if s.source.Pull == nil {
		return false
	}
	if s.reader != nil && len(s.reader.requests) > 0 {
		return true
	}
	return s.controller.DesiredSize() > 0
}

func (s *ReadableStream) pullIfNeeded() {
	for {
		if !s.shouldPull() {
			return
		}
		if s.pulling {
			s.pullAgain = true
			return
		}
		s.pulling = true
		p := s.source.Pull(s.controller)
		if p != nil {
			p.Then(func(_ sched.Void, err error) {
				s.pulling = false
				if err != nil {
					s.controller.Error(asStreamError(errors.KindSourceFailed, err))
					return
				}
				if s.pullAgain {
					s.pullAgain = false
					s.pullIfNeeded()
				}
			})
			return
		}
		s.pulling = false
		if !s.pullAgain {
			return
		}
		s.pullAgain = false
	}
}

// ReadableController is handed to source hooks to feed the stream.
type ReadableController struct {
	stream *ReadableStream
}

// DesiredSize is highWaterMark minus the queued size, or 0 once the stream
// is closed or errored.
func (c *ReadableController) DesiredSize() float64 {
	s := c.stream
	if s.state != stateActive {
		return 0
	}
	return s.highWaterMark - s.queue.totalSize
}

// Enqueue appends a chunk, or hands it directly to the oldest pending read.
func (c *ReadableController) Enqueue(chunk any) error {
	s := c.stream
	if s.closeRequested {
		return errors.Usage(errors.KindInvalidState, "enqueue after close was requested")
	}
	if s.state != stateActive {
		return errors.Usage(errors.KindInvalidState, "enqueue on a closed or errored stream")
	}

	if s.reader != nil && len(s.reader.requests) > 0 {
		req := s.reader.requests[0]
		copy(s.reader.requests, s.reader.requests[1:])
		s.reader.requests = s.reader.requests[:len(s.reader.requests)-1]
		req.Resolve(ReadResult{Value: chunk})
	} else {
		s.queue.enqueue(chunk, s.sizeFn(chunk))
	}
	s.pullIfNeeded()
	return nil
}

// Close marks the source exhausted. Queued chunks remain readable; the
// stream reports done once the queue drains.
func (c *ReadableController) Close() error {
	s := c.stream
	if s.closeRequested || s.state != stateActive {
		return errors.Usage(errors.KindInvalidState, "close on an already closing stream")
	}
	s.closeRequested = true
	if s.queue.len() == 0 {
		s.finishClose()
	}
	return nil
}

// Error moves the stream to the terminal errored state, rejecting all
// pending and future reads with reason.
func (c *ReadableController) Error(reason error) {
	if reason == nil {
		reason = errors.Stream(errors.KindSourceFailed, "stream errored", nil)
	}
	c.stream.errorStream(reason)
}

// Reader is the single consumer handle of a locked ReadableStream. It holds
// a FIFO of pending read requests resolved as chunks arrive.
type Reader struct {
	stream   *ReadableStream
	loop     *sched.Loop
	requests []*sched.Promise[ReadResult]
}

// Read returns a promise for the next chunk, or Done when the stream closes.
func (r *Reader) Read() *sched.Promise[ReadResult] {
	s := r.stream
	if s == nil {
		return sched.Rejected[ReadResult](r.loop,
			errors.Usage(errors.KindReleased, "read on a released reader"))
	}
	s.disturbed = true

	switch s.state {
	case stateErrored:
		return sched.Rejected[ReadResult](s.loop, s.storedErr)
	case stateClosed:
		return sched.Resolved(s.loop, ReadResult{Done: true})
	}

	if s.queue.len() > 0 {
		v := s.queue.dequeue()
		if s.closeRequested && s.queue.len() == 0 {
			s.finishClose()
		} else {
			s.pullIfNeeded()
		}
		return sched.Resolved(s.loop, ReadResult{Value: v})
	}

	p := sched.NewPromise[ReadResult](s.loop)
	r.requests = append(r.requests, p)
	s.pullIfNeeded()
	return p
}

// Cancel cancels the underlying stream.
func (r *Reader) Cancel(reason error) *sched.Promise[sched.Void] {
	if r.stream == nil {
		return sched.Rejected[sched.Void](r.loop,
			errors.Usage(errors.KindReleased, "cancel on a released reader"))
	}
	return r.stream.cancel(reason)
}

// ReleaseLock detaches the reader. Fails if reads are still pending.
func (r *Reader) ReleaseLock() error {
	if r.stream == nil {
		return nil
	}
	if len(r.requests) > 0 {
		return errors.Usage(errors.KindInvalidState, "cannot release a reader with pending reads")
	}
	r.stream.reader = nil
	r.stream = nil
	return nil
}

// asStreamError wraps raw callback errors so they travel as stream errors;
// structured errors pass through untouched.
func asStreamError(kind errors.Kind, err error) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.Stream(kind, err.Error(), err)
}
