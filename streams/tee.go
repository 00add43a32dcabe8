package streams

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// Tee splits the stream into two independently consumable branches fed by a
// single internal reader. Each branch has its own queue. Cancelling one
// branch stops feeding it but keeps the other alive; only when both are
// cancelled is the original source's cancel invoked, exactly once.
func (s *ReadableStream) Tee() (*ReadableStream, *ReadableStream, error) {
	reader, err := s.GetReader()
	if err != nil {
		return nil, nil, err
	}

	loop := s.loop
	var (
		reading     bool
		controllers [2]*ReadableController
		cancelled   [2]bool
		reasons     [2]error
	)
	// Settles once the underlying cancel completes; both branch cancels
	// return it.
	cancelDone := sched.NewPromise[sched.Void](loop)

	pull := func(*ReadableController) *sched.Promise[sched.Void] {
		if reading {
			return nil
		}
		reading = true
		done := sched.NewPromise[sched.Void](loop)
		reader.Read().Then(func(res ReadResult, err error) {
			reading = false
			switch {
			case err != nil:
				for i := range controllers {
					if !cancelled[i] {
						controllers[i].Error(err)
					}
				}
			case res.Done:
				for i := range controllers {
					if !cancelled[i] {
						_ = controllers[i].Close()
					}
				}
			default:
				for i := range controllers {
					if !cancelled[i] {
						_ = controllers[i].Enqueue(res.Value)
					}
				}
			}
			done.Resolve(sched.Void{})
		})
		return done
	}

	cancelBranch := func(i int) func(error) *sched.Promise[sched.Void] {
		return func(reason error) *sched.Promise[sched.Void] {
			if cancelled[i] {
				return cancelDone
			}
			cancelled[i] = true
			reasons[i] = reason
			if cancelled[0] && cancelled[1] {
				composite := &errors.Error{
					Class:  errors.ClassStream,
					Kind:   errors.KindCancelled,
					Detail: "both tee branches cancelled",
					Reason: [2]error{reasons[0], reasons[1]},
				}
				reader.Cancel(composite).Then(func(_ sched.Void, err error) {
					if err != nil {
						cancelDone.Reject(err)
						return
					}
					cancelDone.Resolve(sched.Void{})
				})
			}
			return cancelDone
		}
	}

	branch := func(i int) *ReadableStream {
		return NewReadableStream(loop, Source{
			Start: func(c *ReadableController) error {
				controllers[i] = c
				return nil
			},
			Pull:   pull,
			Cancel: cancelBranch(i),
		}, CountStrategy(1))
	}

	return branch(0), branch(1), nil
}
