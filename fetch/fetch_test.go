package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

func startLoop(t *testing.T) (*sched.Loop, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	l := sched.NewLoop()
	go l.Run(ctx)
	return l, ctx
}

func runOn[T any](t *testing.T, ctx context.Context, l *sched.Loop, fn func() T) T {
	t.Helper()
	v, err := sched.Call(ctx, l, fn)
	if err != nil {
		t.Fatalf("loop call: %v", err)
	}
	return v
}

// drain reads a []byte/string stream fully into one buffer.
func drain(t *testing.T, ctx context.Context, l *sched.Loop, s *streams.ReadableStream) []byte {
	t.Helper()
	reader := runOn(t, ctx, l, func() *streams.Reader {
		r, err := s.GetReader()
		if err != nil {
			t.Errorf("GetReader: %v", err)
		}
		return r
	})
	var out []byte
	for {
		p := runOn(t, ctx, l, func() *sched.Promise[streams.ReadResult] { return reader.Read() })
		res, err := p.Result(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if res.Done {
			return out
		}
		switch chunk := res.Value.(type) {
		case []byte:
			out = append(out, chunk...)
		case string:
			out = append(out, chunk...)
		default:
			t.Fatalf("unexpected chunk type %T", res.Value)
		}
	}
}
