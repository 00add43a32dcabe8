package sched

import (
	"context"
	"sync"

	"github.com/wippyai/stream-runtime/errors"
)

// Loop is a single-threaded cooperative run queue.
//
// Tasks are executed strictly in post order by the goroutine running Run.
// Post is safe to call from any goroutine, including loop tasks themselves.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewLoop creates a loop. It does nothing until Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is cancelled. It must be called from
// exactly one goroutine; that goroutine becomes the script thread.
// Tasks still queued at cancellation are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.tasks = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		l.mu.Lock()
		var task func()
		if len(l.tasks) > 0 {
			task = l.tasks[0]
			// Shift rather than reslice so the backing array gets reused.
			copy(l.tasks, l.tasks[1:])
			l.tasks = l.tasks[:len(l.tasks)-1]
		}
		l.mu.Unlock()

		if task != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			task()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Post schedules fn to run on the loop goroutine. Posts after the loop has
// stopped are silently dropped; by then every promise observer has already
// been released through Done.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Call posts fn onto the loop and blocks until it has run, returning its
// result. It must not be called from the loop goroutine.
func Call[T any](ctx context.Context, l *Loop, fn func() T) (T, error) {
	var zero T
	ch := make(chan T, 1)
	l.Post(func() { ch <- fn() })
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, errors.Abort(ctx.Err())
	case <-l.done:
		return zero, errors.Usage(errors.KindInvalidState, "scheduler loop stopped")
	}
}
