package bridge

import (
	"context"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
	"github.com/wippyai/stream-runtime/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result is what a completed exchange hand-off yields: the response head and
// a loop-confined stream of the response body.
type Result struct {
	Head *transport.ResponseHead
	Body *streams.ReadableStream
}

// Options tune one Run.
type Options struct {
	// Signal cancels the exchange when fired.
	Signal *sched.AbortSignal
	// ReadHighWaterMark overrides DefaultReadHighWaterMark for the body stream.
	ReadHighWaterMark float64
	Log               *zap.Logger
}

// Run drives one exchange end to end: the upload pump (when body is not nil)
// and the response wait run as a group. The returned promise resolves on the
// loop with the response head and body stream, or rejects with the
// classified failure. An upload cut short by the transport does not fail the
// exchange on its own — a server may legitimately respond before draining
// the request body — but a fault in the body itself does.
//
// Run may be called from any goroutine, including the loop goroutine; all
// blocking happens on its own goroutines.
func Run(ctx context.Context, loop *sched.Loop, ex transport.Exchange, body *streams.ReadableStream, opts *Options) *sched.Promise[*Result] {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	result := sched.NewPromise[*Result](loop)

	var removeAbort func()
	if sig := opts.Signal; sig != nil {
		if reason := sig.Reason(); reason != nil {
			ex.Cancel(reason)
			result.Reject(reason)
			return result
		}
		removeAbort = sig.OnAbort(func(reason *errors.Error) {
			ex.Cancel(reason)
		})
	}

	go func() {
		g, gctx := errgroup.WithContext(ctx)

		if body != nil {
			g.Go(func() error {
				err := Upload(gctx, loop, body, ex)
				if err != nil && !bodyFault(err) {
					// The transport refused more request bytes. A response
					// may still be on its way: a server that answers before
					// draining the upload closes the request side first, so
					// the Response call decides the outcome.
					log.Debug("upload cut short", zap.Error(err))
					return nil
				}
				return err
			})
		}

		var head *transport.ResponseHead
		g.Go(func() error {
			h, err := ex.Response(gctx)
			if err != nil {
				return err
			}
			head = h
			return nil
		})

		err := g.Wait()
		if err != nil {
			if removeAbort != nil {
				removeAbort()
			}
			ex.Cancel(err)
			// If the failure was an abort-signal fire, report the signal's
			// reason rather than the secondary transport error.
			if sig := opts.Signal; sig != nil && sig.Aborted() {
				err = sig.Reason()
			}
			log.Debug("exchange failed", zap.Error(err))
			result.Reject(transport.Classify(err))
			return
		}

		// The signal stays wired through the download so a late abort still
		// cancels the exchange; the stream unhooks it at its end state.
		log.Debug("exchange established", zap.Int("status", head.Status))
		result.Resolve(&Result{
			Head: head,
			Body: responseStream(loop, ex, opts.ReadHighWaterMark, removeAbort),
		})
	}()

	return result
}

// bodyFault reports whether an upload failure originated in the request body
// itself (source error, bad chunk type) rather than the transport refusing
// more bytes. Body faults fail the exchange; transport-side refusals do not.
func bodyFault(err error) bool {
	e, ok := err.(*errors.Error)
	return ok && (e.Class == errors.ClassUsage || e.Class == errors.ClassStream)
}
