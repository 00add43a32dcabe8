package sched

import (
	"context"
	"sync"

	"github.com/wippyai/stream-runtime/errors"
)

// Void is the value type for promises that only signal completion.
type Void struct{}

type promiseState uint8

const (
	statePending promiseState = iota
	stateFulfilled
	stateRejected
)

// Promise is a settle-once future bound to a Loop.
//
// It may be resolved or rejected from any goroutine; the first settle wins
// and later settles are ignored. Callbacks registered with Then always run
// as tasks on the owning loop, in registration order.
type Promise[T any] struct {
	loop      *Loop
	mu        sync.Mutex
	value     T
	err       error
	callbacks []func(T, error)
	done      chan struct{}
	state     promiseState
}

// NewPromise creates a pending promise owned by l.
func NewPromise[T any](l *Loop) *Promise[T] {
	return &Promise[T]{loop: l, done: make(chan struct{})}
}

// Resolved creates an already-fulfilled promise.
func Resolved[T any](l *Loop, v T) *Promise[T] {
	p := NewPromise[T](l)
	p.Resolve(v)
	return p
}

// Rejected creates an already-rejected promise.
func Rejected[T any](l *Loop, err error) *Promise[T] {
	p := NewPromise[T](l)
	p.Reject(err)
	return p
}

// Resolve fulfills the promise. No-op if already settled.
func (p *Promise[T]) Resolve(v T) {
	p.settle(v, nil, stateFulfilled)
}

// Reject rejects the promise. No-op if already settled.
func (p *Promise[T]) Reject(err error) {
	var zero T
	p.settle(zero, err, stateRejected)
}

func (p *Promise[T]) settle(v T, err error, s promiseState) {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.value = v
	p.err = err
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range cbs {
		cb := cb
		p.loop.Post(func() { cb(v, err) })
	}
}

// Then registers fn to run on the loop once the promise settles. On
// fulfillment err is nil; on rejection the value is the zero value.
func (p *Promise[T]) Then(fn func(T, error)) {
	p.mu.Lock()
	if p.state == statePending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	p.loop.Post(func() { fn(v, err) })
}

// Catch registers fn to run on the loop only if the promise rejects.
func (p *Promise[T]) Catch(fn func(error)) {
	p.Then(func(_ T, err error) {
		if err != nil {
			fn(err)
		}
	})
}

// Finally registers fn to run on the loop once the promise settles either way.
func (p *Promise[T]) Finally(fn func()) {
	p.Then(func(T, error) { fn() })
}

// Settled reports whether the promise has been resolved or rejected.
func (p *Promise[T]) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

// Loop returns the owning loop.
func (p *Promise[T]) Loop() *Loop {
	return p.loop
}

// Done is closed when the promise settles. Intended for select loops on
// native threads.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the promise settles or ctx is cancelled, then returns
// the settled value or error. It must not be called from the loop goroutine.
func (p *Promise[T]) Result(ctx context.Context) (T, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		var zero T
		return zero, errors.Abort(ctx.Err())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}
