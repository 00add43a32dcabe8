package streams

import (
	"strings"
	"testing"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

func TestTransform_IdentityPassThrough(t *testing.T) {
	l, ctx := startLoop(t)

	ts := runOn(t, ctx, l, func() *TransformStream {
		return NewTransformStream(l, Transformer{}, nil, nil)
	})

	w := runOn(t, ctx, l, func() *Writer { wr, _ := ts.Writable().GetWriter(); return wr })
	runOn(t, ctx, l, func() any {
		w.Write("one")
		w.Write("two")
		w.Close()
		return nil
	})

	got := readAll(t, ctx, ts.Readable())
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("identity transform output = %v", got)
	}
}

func TestTransform_TransformAndFlush(t *testing.T) {
	l, ctx := startLoop(t)

	ts := runOn(t, ctx, l, func() *TransformStream {
		return NewTransformStream(l, Transformer{
			Transform: func(chunk any, c *TransformController) *sched.Promise[sched.Void] {
				_ = c.Enqueue(strings.ToUpper(chunk.(string)))
				return nil
			},
			Flush: func(c *TransformController) *sched.Promise[sched.Void] {
				_ = c.Enqueue("EOF")
				return nil
			},
		}, nil, nil)
	})

	w := runOn(t, ctx, l, func() *Writer { wr, _ := ts.Writable().GetWriter(); return wr })
	runOn(t, ctx, l, func() any {
		w.Write("hello")
		w.Write("world")
		w.Close()
		return nil
	})

	got := readAll(t, ctx, ts.Readable())
	want := []string{"HELLO", "WORLD", "EOF"}
	if len(got) != len(want) {
		t.Fatalf("output = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTransform_FanOutEnqueues(t *testing.T) {
	l, ctx := startLoop(t)

	ts := runOn(t, ctx, l, func() *TransformStream {
		return NewTransformStream(l, Transformer{
			Transform: func(chunk any, c *TransformController) *sched.Promise[sched.Void] {
				// Zero or more enqueues per input chunk.
				for _, part := range strings.Split(chunk.(string), ",") {
					if part != "" {
						_ = c.Enqueue(part)
					}
				}
				return nil
			},
		}, nil, nil)
	})

	w := runOn(t, ctx, l, func() *Writer { wr, _ := ts.Writable().GetWriter(); return wr })
	runOn(t, ctx, l, func() any {
		w.Write("a,b")
		w.Write("")
		w.Write("c")
		w.Close()
		return nil
	})

	got := readAll(t, ctx, ts.Readable())
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("output = %v, want %v", got, want)
	}
}

func TestTransform_BackpressureCouplesSides(t *testing.T) {
	l, ctx := startLoop(t)

	ts := runOn(t, ctx, l, func() *TransformStream {
		return NewTransformStream(l, Transformer{}, CountStrategy(1), CountStrategy(0))
	})

	w := runOn(t, ctx, l, func() *Writer { wr, _ := ts.Writable().GetWriter(); return wr })

	// No demand downstream yet: the write must stay pending.
	wp := runOn(t, ctx, l, func() *sched.Promise[sched.Void] { return w.Write("x") })
	if got := runOn(t, ctx, l, func() bool { return wp.Settled() }); got {
		t.Fatal("write completed with a stalled downstream reader")
	}

	reader := runOn(t, ctx, l, func() *Reader { r, _ := ts.Readable().GetReader(); return r })
	rp := runOn(t, ctx, l, func() *sched.Promise[ReadResult] { return reader.Read() })

	res, err := rp.Result(ctx)
	if err != nil || res.Value != "x" {
		t.Fatalf("read = (%+v, %v)", res, err)
	}
	if _, err := wp.Result(ctx); err != nil {
		t.Fatalf("write should complete once downstream read: %v", err)
	}
}

func TestTransform_ErrorPropagatesBothSides(t *testing.T) {
	l, ctx := startLoop(t)

	boom := errors.Stream(errors.KindSinkFailed, "bad chunk", nil)
	ts := runOn(t, ctx, l, func() *TransformStream {
		return NewTransformStream(l, Transformer{
			Transform: func(any, *TransformController) *sched.Promise[sched.Void] {
				return sched.Rejected[sched.Void](l, boom)
			},
		}, nil, nil)
	})

	reader := runOn(t, ctx, l, func() *Reader { r, _ := ts.Readable().GetReader(); return r })
	rp := runOn(t, ctx, l, func() *sched.Promise[ReadResult] { return reader.Read() })

	w := runOn(t, ctx, l, func() *Writer { wr, _ := ts.Writable().GetWriter(); return wr })
	wp := runOn(t, ctx, l, func() *sched.Promise[sched.Void] { return w.Write("x") })

	if _, err := wp.Result(ctx); err != boom {
		t.Fatalf("write error = %v, want %v", err, boom)
	}
	if _, err := rp.Result(ctx); err != boom {
		t.Fatalf("read error = %v, want %v", err, boom)
	}
}
