package bridge

import (
	"context"
	"io"

	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
	"github.com/wippyai/stream-runtime/transport"
)

// DefaultReadHighWaterMark is the byte budget buffered ahead of the reader.
const DefaultReadHighWaterMark = 32 * 1024

// ResponseStream wraps the download side of an exchange as a loop-confined
// ReadableStream of []byte chunks.
//
// Each pull runs one ReadChunk on its own goroutine and posts the outcome
// back to the loop. Cancelling the stream cancels the exchange.
func ResponseStream(loop *sched.Loop, ex transport.Exchange, highWaterMark float64) *streams.ReadableStream {
	return responseStream(loop, ex, highWaterMark, nil)
}

// responseStream additionally runs onTerminal once when the stream reaches
// its end state (closed, errored, or cancelled). Run uses it to unhook the
// abort signal once the exchange can no longer be cancelled meaningfully.
func responseStream(loop *sched.Loop, ex transport.Exchange, highWaterMark float64, onTerminal func()) *streams.ReadableStream {
	if highWaterMark <= 0 {
		highWaterMark = DefaultReadHighWaterMark
	}
	terminal := func() {
		if onTerminal != nil {
			onTerminal()
			onTerminal = nil
		}
	}

	src := streams.Source{
		Pull: func(c *streams.ReadableController) *sched.Promise[sched.Void] {
			p := sched.NewPromise[sched.Void](loop)
			go func() {
				chunk, err := ex.ReadChunk(context.Background())
				loop.Post(func() {
					switch {
					case err == io.EOF:
						_ = c.Close()
						terminal()
					case err != nil:
						c.Error(transport.Classify(err))
						terminal()
					default:
						_ = c.Enqueue(chunk)
					}
					p.Resolve(sched.Void{})
				})
			}()
			return p
		},
		Cancel: func(reason error) *sched.Promise[sched.Void] {
			ex.Cancel(reason)
			terminal()
			return nil
		},
	}

	return streams.NewReadableStream(loop, src, streams.ByteLengthStrategy(highWaterMark))
}
