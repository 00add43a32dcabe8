package streams

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// PipeOptions tune the shutdown behavior of PipeTo and PipeThrough.
type PipeOptions struct {
	// PreventClose keeps the destination open after the source completes.
	PreventClose bool
	// PreventAbort keeps the destination alive after a source error.
	PreventAbort bool
	// PreventCancel keeps the source alive after a destination error.
	PreventCancel bool
	// Signal aborts the pipe when fired.
	Signal *sched.AbortSignal
}

// PipeTo reads every chunk from s and writes it to dst, awaiting the
// writer's ready signal before each write. Exactly one of natural
// completion, source error, destination error, or external abort determines
// the terminal outcome; the first to occur wins.
func (s *ReadableStream) PipeTo(dst *WritableStream, opts *PipeOptions) *sched.Promise[sched.Void] {
	if opts == nil {
		opts = &PipeOptions{}
	}

	reader, err := s.GetReader()
	if err != nil {
		return sched.Rejected[sched.Void](s.loop, err)
	}
	writer, err := dst.GetWriter()
	if err != nil {
		_ = reader.ReleaseLock()
		return sched.Rejected[sched.Void](s.loop, err)
	}

	pr := &pipeRun{
		loop:   s.loop,
		reader: reader,
		writer: writer,
		opts:   opts,
		result: sched.NewPromise[sched.Void](s.loop),
	}
	pr.start()
	return pr.result
}

// PipeThrough pipes s into ts.Writable in the background and returns
// ts.Readable immediately so it can be chained further.
func (s *ReadableStream) PipeThrough(ts *TransformStream, opts *PipeOptions) (*ReadableStream, error) {
	if s.Locked() {
		return nil, errors.Usage(errors.KindLocked, "pipeThrough on a locked readable stream")
	}
	if ts.Writable().Locked() {
		return nil, errors.Usage(errors.KindLocked, "pipeThrough into a locked transform stream")
	}
	// The pipe result surfaces through the transform's readable side.
	_ = s.PipeTo(ts.Writable(), opts)
	return ts.Readable(), nil
}

// pipeOutcome identifies the single winning terminal transition.
type pipeOutcome uint8

const (
	outcomeComplete pipeOutcome = iota
	outcomeSourceError
	outcomeDestError
	outcomeAbort
)

// pipeRun is the explicit state machine behind PipeTo. The settled flag
// guards the one-winner transition; every completion path checks it first
// and later signals are ignored.
type pipeRun struct {
	loop        *sched.Loop
	reader      *Reader
	writer      *Writer
	opts        *PipeOptions
	result      *sched.Promise[sched.Void]
	removeAbort func()
	settled     bool
}

func (pr *pipeRun) start() {
	if sig := pr.opts.Signal; sig != nil {
		pr.removeAbort = sig.OnAbort(func(reason *errors.Error) {
			pr.finish(outcomeAbort, reason)
		})
	}
	// Destination failures must interrupt the pipe even while a read is
	// pending, so watch the writer's closed signal.
	pr.writer.Closed().Then(func(_ sched.Void, err error) {
		if err != nil {
			pr.finish(outcomeDestError, err)
		}
	})
	pr.next()
}

func (pr *pipeRun) next() {
	if pr.settled {
		return
	}
	pr.writer.Ready().Then(func(_ sched.Void, err error) {
		if pr.settled {
			return
		}
		if err != nil {
			pr.finish(outcomeDestError, err)
			return
		}
		pr.reader.Read().Then(func(res ReadResult, err error) {
			if pr.settled {
				return
			}
			if err != nil {
				pr.finish(outcomeSourceError, err)
				return
			}
			if res.Done {
				pr.finish(outcomeComplete, nil)
				return
			}
			wp := pr.writer.Write(res.Value)
			wp.Then(func(_ sched.Void, err error) {
				if err != nil && !pr.settled {
					pr.finish(outcomeDestError, err)
				}
			})
			pr.next()
		})
	})
}

func (pr *pipeRun) finish(outcome pipeOutcome, cause error) {
	if pr.settled {
		return
	}
	pr.settled = true
	if pr.removeAbort != nil {
		pr.removeAbort()
	}

	switch outcome {
	case outcomeComplete:
		if pr.opts.PreventClose {
			pr.releaseLocks()
			pr.result.Resolve(sched.Void{})
			return
		}
		pr.writer.Close().Then(func(_ sched.Void, err error) {
			pr.releaseLocks()
			if err != nil {
				pr.result.Reject(err)
				return
			}
			pr.result.Resolve(sched.Void{})
		})

	case outcomeSourceError:
		if pr.opts.PreventAbort {
			pr.releaseLocks()
			pr.result.Reject(cause)
			return
		}
		pr.writer.Abort(cause).Then(func(_ sched.Void, _ error) {
			pr.releaseLocks()
			pr.result.Reject(cause)
		})

	case outcomeDestError:
		if pr.opts.PreventCancel {
			pr.releaseLocks()
			pr.result.Reject(cause)
			return
		}
		pr.reader.Cancel(cause).Then(func(_ sched.Void, _ error) {
			pr.releaseLocks()
			pr.result.Reject(cause)
		})

	case outcomeAbort:
		pending := 0
		done := func() {
			pending--
			if pending == 0 {
				pr.releaseLocks()
				pr.result.Reject(cause)
			}
		}
		if !pr.opts.PreventCancel {
			pending++
		}
		if !pr.opts.PreventAbort {
			pending++
		}
		if pending == 0 {
			pr.releaseLocks()
			pr.result.Reject(cause)
			return
		}
		if !pr.opts.PreventCancel {
			pr.reader.Cancel(cause).Then(func(_ sched.Void, _ error) { done() })
		}
		if !pr.opts.PreventAbort {
			pr.writer.Abort(cause).Then(func(_ sched.Void, _ error) { done() })
		}
	}
}

func (pr *pipeRun) releaseLocks() {
	// A cancel already resolved any pending read, but a release can still
	// race a not-yet-delivered request; treat failure as already-detached.
	_ = pr.reader.ReleaseLock()
	pr.writer.ReleaseLock()
}
