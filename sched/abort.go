package sched

import (
	"sync"
	"time"

	"github.com/wippyai/stream-runtime/errors"
)

// AbortController owns an AbortSignal and can fire it exactly once.
type AbortController struct {
	signal *AbortSignal
}

// NewAbortController creates a controller with a fresh signal bound to l.
func NewAbortController(l *Loop) *AbortController {
	return &AbortController{signal: newAbortSignal(l)}
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort fires the signal with an abort error carrying reason. Firing is
// idempotent; the second and later calls have no effect.
func (c *AbortController) Abort(reason any) {
	c.signal.fire(errors.Abort(reason))
}

// AbortSignal is the cancellation token shared between the script side and
// native transports. Callbacks run on the loop; native threads observe the
// fire through Fired without touching loop state.
type AbortSignal struct {
	loop      *Loop
	mu        sync.Mutex
	reason    *errors.Error
	callbacks map[int]func(*errors.Error)
	nextID    int
	fired     chan struct{}
	aborted   bool
}

func newAbortSignal(l *Loop) *AbortSignal {
	return &AbortSignal{
		loop:      l,
		callbacks: make(map[int]func(*errors.Error)),
		fired:     make(chan struct{}),
	}
}

// NewTimeoutSignal returns a signal that fires with a timeout-kind error
// after d elapses. A timeout is a deferred cancellation fire and is
// otherwise identical to an abort.
func NewTimeoutSignal(l *Loop, d time.Duration) *AbortSignal {
	s := newAbortSignal(l)
	time.AfterFunc(d, func() {
		s.fire(errors.Transport(errors.KindTimeout, "signal timeout elapsed", nil))
	})
	return s
}

// Aborted reports whether the signal has fired.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the error the signal fired with, or nil if not fired.
func (s *AbortSignal) Reason() *errors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Fired is closed when the signal fires. Safe to select on from any thread.
func (s *AbortSignal) Fired() <-chan struct{} {
	return s.fired
}

// OnAbort registers fn to run on the loop when the signal fires. If the
// signal already fired, fn is scheduled immediately. The returned function
// unregisters the callback.
func (s *AbortSignal) OnAbort(fn func(*errors.Error)) func() {
	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		s.loop.Post(func() { fn(reason) })
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.callbacks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

func (s *AbortSignal) fire(reason *errors.Error) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	cbs := make([]func(*errors.Error), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		cbs = append(cbs, fn)
	}
	s.callbacks = nil
	close(s.fired)
	s.mu.Unlock()

	for _, fn := range cbs {
		fn := fn
		s.loop.Post(func() { fn(reason) })
	}
}
