package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
	"github.com/wippyai/stream-runtime/transport"
)

// Upload pumps every chunk of body into the exchange's request side, then
// finishes the body. It blocks the calling goroutine and must NOT run on the
// loop goroutine.
//
// Chunks must be []byte or string. The pump reads the next chunk only after
// the previous WriteChunk returned, so transport backpressure propagates to
// the stream's pull schedule.
//
// On failure the body stream is cancelled with the cause; the caller owns
// cancelling the exchange.
func Upload(ctx context.Context, loop *sched.Loop, body *streams.ReadableStream, ex transport.Exchange) error {
	type acquired struct {
		reader *streams.Reader
		err    error
	}
	acq, err := sched.Call(ctx, loop, func() acquired {
		r, err := body.GetReader()
		return acquired{reader: r, err: err}
	})
	if err != nil {
		return err
	}
	if acq.err != nil {
		return acq.err
	}
	reader := acq.reader

	fail := func(cause error) error {
		loop.Post(func() { reader.Cancel(cause) })
		return cause
	}

	for {
		rp, err := sched.Call(ctx, loop, func() *sched.Promise[streams.ReadResult] {
			return reader.Read()
		})
		if err != nil {
			return fail(err)
		}
		res, err := rp.Result(ctx)
		if err != nil {
			// The source failed on its own; nothing left to cancel.
			return err
		}
		if res.Done {
			if err := ex.FinishBody(ctx); err != nil {
				return err
			}
			return nil
		}

		chunk, err := byteChunk(res.Value)
		if err != nil {
			return fail(err)
		}
		if err := ex.WriteChunk(ctx, chunk); err != nil {
			return fail(err)
		}
	}
}

func byteChunk(v any) ([]byte, error) {
	switch c := v.(type) {
	case []byte:
		return c, nil
	case string:
		return []byte(c), nil
	default:
		return nil, errors.Usage(errors.KindInvalidState,
			fmt.Sprintf("body chunk must be bytes or string, got %T", v))
	}
}
