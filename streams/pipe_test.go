package streams

import (
	"fmt"
	"testing"
	"time"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// collectSink accumulates successfully written chunks.
type collectSink struct {
	chunks []any
	closed bool
}

func (cs *collectSink) sink() Sink {
	return Sink{
		Write: func(chunk any, _ *WritableController) *sched.Promise[sched.Void] {
			cs.chunks = append(cs.chunks, chunk)
			return nil
		},
		Close: func() *sched.Promise[sched.Void] {
			cs.closed = true
			return nil
		},
	}
}

func TestPipeTo_CompleteClosesDestination(t *testing.T) {
	l, ctx := startLoop(t)

	cs := &collectSink{}
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, sourceOf("a", "b", "c"), CountStrategy(3))
		dst := NewWritableStream(l, cs.sink(), nil)
		return src.PipeTo(dst, nil)
	})

	if _, err := p.Result(ctx); err != nil {
		t.Fatal(err)
	}
	got := runOn(t, ctx, l, func() []any { return append([]any(nil), cs.chunks...) })
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("piped chunks = %v", got)
	}
	if !runOn(t, ctx, l, func() bool { return cs.closed }) {
		t.Fatal("destination not closed after source completed")
	}
}

func TestPipeTo_PreventClose(t *testing.T) {
	l, ctx := startLoop(t)

	cs := &collectSink{}
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, sourceOf(1), nil)
		dst := NewWritableStream(l, cs.sink(), nil)
		return src.PipeTo(dst, &PipeOptions{PreventClose: true})
	})

	if _, err := p.Result(ctx); err != nil {
		t.Fatal(err)
	}
	if runOn(t, ctx, l, func() bool { return cs.closed }) {
		t.Fatal("destination closed despite PreventClose")
	}
}

func TestPipeTo_SourceErrorAbortsDestination(t *testing.T) {
	l, ctx := startLoop(t)

	boom := errors.Stream(errors.KindSourceFailed, "source died", nil)
	var aborted error
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, Source{
			Start: func(c *ReadableController) error {
				_ = c.Enqueue("only")
				return nil
			},
			Pull: func(c *ReadableController) *sched.Promise[sched.Void] {
				c.Error(boom)
				return nil
			},
		}, CountStrategy(0))
		dst := NewWritableStream(l, Sink{
			Abort: func(reason error) *sched.Promise[sched.Void] {
				aborted = reason
				return nil
			},
		}, nil)
		return src.PipeTo(dst, nil)
	})

	if _, err := p.Result(ctx); err != boom {
		t.Fatalf("pipe error = %v, want %v", err, boom)
	}
	if got := runOn(t, ctx, l, func() error { return aborted }); got != boom {
		t.Fatalf("destination abort reason = %v, want %v", got, boom)
	}
}

func TestPipeTo_DestinationErrorCancelsSource(t *testing.T) {
	l, ctx := startLoop(t)

	boom := errors.Stream(errors.KindSinkFailed, "sink died", nil)
	var cancelled error
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, Source{
			Start: func(c *ReadableController) error {
				_ = c.Enqueue("x")
				_ = c.Enqueue("y")
				return nil
			},
			Cancel: func(reason error) *sched.Promise[sched.Void] {
				cancelled = reason
				return nil
			},
		}, CountStrategy(2))
		dst := NewWritableStream(l, Sink{
			Write: func(any, *WritableController) *sched.Promise[sched.Void] {
				return sched.Rejected[sched.Void](l, boom)
			},
		}, nil)
		return src.PipeTo(dst, nil)
	})

	if _, err := p.Result(ctx); err != boom {
		t.Fatalf("pipe error = %v, want %v", err, boom)
	}
	if got := runOn(t, ctx, l, func() error { return cancelled }); got != boom {
		t.Fatalf("source cancel reason = %v, want %v", got, boom)
	}
}

func TestPipeTo_AbortSignalWins(t *testing.T) {
	l, ctx := startLoop(t)

	var (
		cancelled error
		aborted   error
		ctrl      *ReadableController
	)
	ac := sched.NewAbortController(l)
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, Source{
			Start:  func(c *ReadableController) error { ctrl = c; return nil },
			Cancel: func(reason error) *sched.Promise[sched.Void] { cancelled = reason; return nil },
		}, CountStrategy(0))
		dst := NewWritableStream(l, Sink{
			Abort: func(reason error) *sched.Promise[sched.Void] { aborted = reason; return nil },
		}, nil)
		return src.PipeTo(dst, &PipeOptions{Signal: ac.Signal()})
	})

	// Feed one chunk, then abort mid-stream.
	runOn(t, ctx, l, func() any { _ = ctrl.Enqueue("chunk"); return nil })
	ac.Abort("user stop")

	_, err := p.Result(ctx)
	if !errors.IsAbort(err) {
		t.Fatalf("pipe error = %v, want abort", err)
	}
	deadline := time.After(time.Second)
	for {
		done := runOn(t, ctx, l, func() bool { return cancelled != nil && aborted != nil })
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("shutdown incomplete: cancelled=%v aborted=%v", cancelled, aborted)
		case <-time.After(time.Millisecond):
		}
	}
	if !errors.IsAbort(runOn(t, ctx, l, func() error { return cancelled })) {
		t.Fatal("source not cancelled with abort reason")
	}
}

func TestPipeTo_LocksBothEnds(t *testing.T) {
	l, ctx := startLoop(t)

	type locks struct{ src, dst bool }
	got := runOn(t, ctx, l, func() locks {
		src := NewReadableStream(l, Source{}, nil)
		dst := NewWritableStream(l, Sink{}, nil)
		src.PipeTo(dst, nil)
		return locks{src.Locked(), dst.Locked()}
	})
	if !got.src || !got.dst {
		t.Fatalf("pipe should lock both ends, got %+v", got)
	}
}

func TestPipeThrough_Chains(t *testing.T) {
	l, ctx := startLoop(t)

	out := runOn(t, ctx, l, func() *ReadableStream {
		src := NewReadableStream(l, sourceOf("a", "b"), CountStrategy(2))
		ts := NewTransformStream(l, Transformer{
			Transform: func(chunk any, c *TransformController) *sched.Promise[sched.Void] {
				_ = c.Enqueue(chunk.(string) + "!")
				return nil
			},
		}, nil, nil)
		r, err := src.PipeThrough(ts, nil)
		if err != nil {
			t.Errorf("PipeThrough: %v", err)
		}
		return r
	})

	got := readAll(t, ctx, out)
	if len(got) != 2 || got[0] != "a!" || got[1] != "b!" {
		t.Fatalf("pipeThrough output = %v", got)
	}
}

func TestPipeThrough_RejectsLockedInputs(t *testing.T) {
	l, ctx := startLoop(t)

	err := runOn(t, ctx, l, func() error {
		src := NewReadableStream(l, Source{}, nil)
		src.GetReader()
		ts := NewTransformStream(l, Transformer{}, nil, nil)
		_, err := src.PipeThrough(ts, nil)
		return err
	})
	if errors.KindOf(err) != errors.KindLocked {
		t.Fatalf("PipeThrough on locked stream = %v, want locked", err)
	}
}

func TestPipeTo_SourceErrorPreventAbort(t *testing.T) {
	l, ctx := startLoop(t)

	boom := fmt.Errorf("raw failure")
	var aborted bool
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		src := NewReadableStream(l, Source{
			Pull: func(c *ReadableController) *sched.Promise[sched.Void] {
				c.Error(boom)
				return nil
			},
		}, CountStrategy(0))
		dst := NewWritableStream(l, Sink{
			Abort: func(error) *sched.Promise[sched.Void] { aborted = true; return nil },
		}, nil)
		return src.PipeTo(dst, &PipeOptions{PreventAbort: true})
	})

	if _, err := p.Result(ctx); err == nil {
		t.Fatal("pipe should reject on source error")
	}
	if runOn(t, ctx, l, func() bool { return aborted }) {
		t.Fatal("destination aborted despite PreventAbort")
	}
}
