package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
	"github.com/wippyai/stream-runtime/transport"
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

// readAllBytes drains a []byte stream into one buffer.
func readAllBytes(t *testing.T, ctx context.Context, l *sched.Loop, s *streams.ReadableStream) []byte {
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
		out = append(out, res.Value.([]byte)...)
	}
}

func bodyOf(l *sched.Loop, chunks ...[]byte) *streams.ReadableStream {
	return streams.NewReadableStream(l, streams.Source{
		Start: func(c *streams.ReadableController) error {
			for _, ch := range chunks {
				if err := c.Enqueue(ch); err != nil {
					return err
				}
			}
			return c.Close()
		},
	}, streams.CountStrategy(float64(len(chunks))))
}

func TestResponseStream_DeliversChunksInOrder(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{
		Chunks: [][]byte{[]byte("alpha "), []byte("beta "), []byte("gamma")},
	})
	ex, err := script.Open(ctx, &transport.Head{Method: "GET", URL: "script://dl"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}

	s := runOn(t, ctx, l, func() *streams.ReadableStream {
		return ResponseStream(l, ex, 0)
	})
	if got := string(readAllBytes(t, ctx, l, s)); got != "alpha beta gamma" {
		t.Fatalf("downloaded = %q", got)
	}
}

func TestResponseStream_CancelReachesExchange(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{Hang: true})
	ex, err := script.Open(ctx, &transport.Head{Method: "GET", URL: "script://hang"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}

	reason := errors.Abort("viewer left")
	p := runOn(t, ctx, l, func() *sched.Promise[sched.Void] {
		s := ResponseStream(l, ex, 0)
		return s.Cancel(reason)
	})
	if _, err := p.Result(ctx); err != nil {
		t.Fatal(err)
	}
	if got := script.Calls()[0].CancelReason(); got != reason {
		t.Fatalf("exchange cancel reason = %v, want %v", got, reason)
	}
}

func TestResponseStream_TransportErrorErrorsStream(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{
		Chunks:  [][]byte{[]byte("head")},
		ReadErr: errors.Transport(errors.KindNetwork, "reset by peer", nil),
	})
	ex, _ := script.Open(ctx, &transport.Head{Method: "GET", URL: "script://broken"})
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}

	reader := runOn(t, ctx, l, func() *streams.Reader {
		s := ResponseStream(l, ex, 0)
		r, _ := s.GetReader()
		return r
	})

	p := runOn(t, ctx, l, func() *sched.Promise[streams.ReadResult] { return reader.Read() })
	if res, err := p.Result(ctx); err != nil || string(res.Value.([]byte)) != "head" {
		t.Fatalf("first read = (%v, %v)", res, err)
	}
	p = runOn(t, ctx, l, func() *sched.Promise[streams.ReadResult] { return reader.Read() })
	if _, err := p.Result(ctx); errors.KindOf(err) != errors.KindNetwork {
		t.Fatalf("second read = %v, want network error", err)
	}
}

func TestUpload_PumpsAllChunksThenFinishes(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{})
	ex, err := script.Open(ctx, &transport.Head{Method: "PUT", URL: "script://up", HasBody: true})
	if err != nil {
		t.Fatal(err)
	}

	body := runOn(t, ctx, l, func() *streams.ReadableStream {
		return bodyOf(l, []byte("one"), []byte("two"), []byte("three"))
	})
	if err := Upload(ctx, l, body, ex); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	call := script.Calls()[0]
	written := call.Written()
	want := []string{"one", "two", "three"}
	if len(written) != len(want) {
		t.Fatalf("wrote %d chunks, want %d", len(written), len(want))
	}
	for i := range want {
		if string(written[i]) != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, written[i], want[i])
		}
	}
	if !call.Finished() {
		t.Fatal("FinishBody never reached the exchange")
	}
}

func TestUpload_NonByteChunkIsUsageError(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{})
	ex, _ := script.Open(ctx, &transport.Head{Method: "PUT", URL: "script://up", HasBody: true})

	body := runOn(t, ctx, l, func() *streams.ReadableStream {
		return streams.NewReadableStream(l, streams.Source{
			Start: func(c *streams.ReadableController) error {
				_ = c.Enqueue(42)
				return c.Close()
			},
		}, nil)
	})
	err := Upload(ctx, l, body, ex)
	if errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("Upload with int chunk = %v, want invalid_state usage error", err)
	}
}

func TestRun_FullRoundTrip(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{
		Status: 200,
		Header: map[string][]string{"Content-Type": {"text/plain"}},
		Chunks: [][]byte{[]byte("pong")},
	})
	ex, err := script.Open(ctx, &transport.Head{Method: "POST", URL: "script://rt", HasBody: true})
	if err != nil {
		t.Fatal(err)
	}

	body := runOn(t, ctx, l, func() *streams.ReadableStream {
		return bodyOf(l, []byte("ping"))
	})
	res, err := Run(ctx, l, ex, body, nil).Result(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Head.Status != 200 {
		t.Fatalf("status = %d", res.Head.Status)
	}
	if got := string(readAllBytes(t, ctx, l, res.Body)); got != "pong" {
		t.Fatalf("response body = %q", got)
	}

	call := script.Calls()[0]
	if w := call.Written(); len(w) != 1 || string(w[0]) != "ping" {
		t.Fatalf("uploaded = %v", w)
	}
	if !call.Finished() {
		t.Fatal("upload never finished")
	}
}

func TestRun_EarlyResponseWinsOverRefusedUpload(t *testing.T) {
	l, ctx := startLoop(t)

	// The server answers with a redirect before draining the request body;
	// the refused upload must not reject the exchange.
	script := transport.NewScript(&transport.Reply{
		Status:   302,
		Header:   map[string][]string{"Location": {"/moved"}},
		WriteErr: errors.Transport(errors.KindNetwork, "request side closed", nil),
	})
	ex, err := script.Open(ctx, &transport.Head{Method: "POST", URL: "script://early", HasBody: true})
	if err != nil {
		t.Fatal(err)
	}

	body := runOn(t, ctx, l, func() *streams.ReadableStream {
		return bodyOf(l, []byte("large upload"))
	})
	res, err := Run(ctx, l, ex, body, nil).Result(ctx)
	if err != nil {
		t.Fatalf("Run rejected an early response: %v", err)
	}
	if res.Head.Status != 302 {
		t.Fatalf("status = %d, want 302", res.Head.Status)
	}
}

func TestRun_BodyFaultRejectsDespiteResponse(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{Status: 200})
	ex, err := script.Open(ctx, &transport.Head{Method: "POST", URL: "script://bad-body", HasBody: true})
	if err != nil {
		t.Fatal(err)
	}

	body := runOn(t, ctx, l, func() *streams.ReadableStream {
		return streams.NewReadableStream(l, streams.Source{
			Start: func(c *streams.ReadableController) error {
				_ = c.Enqueue(42) // not a byte chunk
				return c.Close()
			},
		}, nil)
	})
	_, err = Run(ctx, l, ex, body, nil).Result(ctx)
	if errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("Run with a bad body chunk = %v, want invalid_state", err)
	}
	if script.Calls()[0].CancelReason() == nil {
		t.Fatal("faulty upload did not cancel the exchange")
	}
}

func TestRun_AbortSignalCancelsExchange(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{
		RespErr: errors.Transport(errors.KindNetwork, "torn down", nil),
	})
	ex, _ := script.Open(ctx, &transport.Head{Method: "GET", URL: "script://abort"})

	ac := runOn(t, ctx, l, func() *sched.AbortController { return sched.NewAbortController(l) })
	ac.Abort("stop now")

	_, err := Run(ctx, l, ex, nil, &Options{Signal: ac.Signal()}).Result(ctx)
	if !errors.IsAbort(err) {
		t.Fatalf("Run after abort = %v, want abort error", err)
	}
	if script.Calls()[0].CancelReason() == nil {
		t.Fatal("exchange not cancelled by fired signal")
	}
}

func TestRun_ResponseErrorRejects(t *testing.T) {
	l, ctx := startLoop(t)

	script := transport.NewScript(&transport.Reply{
		RespErr: errors.Transport(errors.KindTimeout, "no response", nil),
	})
	ex, _ := script.Open(ctx, &transport.Head{Method: "GET", URL: "script://late"})

	_, err := Run(ctx, l, ex, nil, nil).Result(ctx)
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("Run = %v, want timeout", err)
	}
}
