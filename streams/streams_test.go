package streams

import (
	"context"
	"testing"

	"github.com/wippyai/stream-runtime/sched"
)

func startLoop(t *testing.T) (*sched.Loop, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := sched.NewLoop()
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, ctx
}

// runOn executes fn on the loop and fails the test if the loop is stopped.
func runOn[T any](t *testing.T, ctx context.Context, l *sched.Loop, fn func() T) T {
	t.Helper()
	v, err := sched.Call(ctx, l, fn)
	if err != nil {
		t.Fatalf("loop call failed: %v", err)
	}
	return v
}

// readAll drains a stream through a fresh reader, returning chunks in order.
func readAll(t *testing.T, ctx context.Context, s *ReadableStream) []any {
	t.Helper()
	l := s.Loop()
	reader := runOn(t, ctx, l, func() *Reader {
		r, err := s.GetReader()
		if err != nil {
			t.Errorf("GetReader: %v", err)
		}
		return r
	})
	var out []any
	for {
		p := runOn(t, ctx, l, func() *sched.Promise[ReadResult] { return reader.Read() })
		res, err := p.Result(ctx)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if res.Done {
			return out
		}
		out = append(out, res.Value)
	}
}
