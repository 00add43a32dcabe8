package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/wippyai/stream-runtime/errors"
)

func TestScript_RecordsUploadAndServesReply(t *testing.T) {
	ctx := context.Background()
	script := NewScript(&Reply{
		Status: 201,
		Header: map[string][]string{"X-Id": {"42"}},
		Chunks: [][]byte{[]byte("ab"), []byte("cd")},
	})

	ex, err := script.Open(ctx, &Head{Method: "PUT", URL: "script://upload", HasBody: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.WriteChunk(ctx, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := ex.FinishBody(ctx); err != nil {
		t.Fatal(err)
	}

	head, err := ex.Response(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head.Status != 201 || head.Header["X-Id"][0] != "42" {
		t.Fatalf("head = %+v", head)
	}
	if got := string(readBody(t, ctx, ex)); got != "abcd" {
		t.Fatalf("body = %q", got)
	}

	calls := script.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Head.Method != "PUT" {
		t.Fatalf("recorded method = %q", calls[0].Head.Method)
	}
	written := calls[0].Written()
	if len(written) != 1 || string(written[0]) != "payload" {
		t.Fatalf("recorded writes = %v", written)
	}
	if !calls[0].Finished() {
		t.Fatal("FinishBody not recorded")
	}
}

func TestScript_ServesRepliesInOrderAndExhausts(t *testing.T) {
	ctx := context.Background()
	script := NewScript(
		&Reply{Status: 302, Header: map[string][]string{"Location": {"/next"}}},
		&Reply{Status: 200, Chunks: [][]byte{[]byte("final")}},
	)

	ex1, err := script.Open(ctx, &Head{Method: "GET", URL: "script://a"})
	if err != nil {
		t.Fatal(err)
	}
	h1, _ := ex1.Response(ctx)
	if h1.Status != 302 {
		t.Fatalf("first status = %d", h1.Status)
	}

	ex2, err := script.Open(ctx, &Head{Method: "GET", URL: "script://b"})
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ex2.Response(ctx)
	if h2.Status != 200 {
		t.Fatalf("second status = %d", h2.Status)
	}

	if _, err := script.Open(ctx, &Head{Method: "GET", URL: "script://c"}); err == nil {
		t.Fatal("opening past the script end should fail")
	}
}

func TestScript_CancelUnblocksHangingRead(t *testing.T) {
	ctx := context.Background()
	script := NewScript(&Reply{Chunks: [][]byte{[]byte("x")}, Hang: true})

	ex, err := script.Open(ctx, &Head{Method: "GET", URL: "script://hang"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}
	if chunk, err := ex.ReadChunk(ctx); err != nil || string(chunk) != "x" {
		t.Fatalf("first chunk = (%q, %v)", chunk, err)
	}

	reason := errors.Abort("enough")
	go func() {
		time.Sleep(5 * time.Millisecond)
		ex.Cancel(reason)
	}()

	_, err = ex.ReadChunk(ctx)
	if !errors.IsAbort(err) {
		t.Fatalf("hanging read = %v, want abort", err)
	}
	if got := script.Calls()[0].CancelReason(); got != reason {
		t.Fatalf("recorded cancel reason = %v", got)
	}
}

func TestScript_ReadErrAfterChunks(t *testing.T) {
	ctx := context.Background()
	script := NewScript(&Reply{
		Chunks:  [][]byte{[]byte("partial")},
		ReadErr: errors.Transport(errors.KindNetwork, "connection reset", nil),
	})

	ex, _ := script.Open(ctx, &Head{Method: "GET", URL: "script://broken"})
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}
	if chunk, err := ex.ReadChunk(ctx); err != nil || string(chunk) != "partial" {
		t.Fatalf("chunk = (%q, %v)", chunk, err)
	}
	if _, err := ex.ReadChunk(ctx); errors.KindOf(err) != errors.KindNetwork {
		t.Fatalf("tail error = %v, want network", err)
	}
}

func TestScript_EOFAfterChunks(t *testing.T) {
	ctx := context.Background()
	script := NewScript(&Reply{})

	ex, _ := script.Open(ctx, &Head{Method: "HEAD", URL: "script://empty"})
	if _, err := ex.Response(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.ReadChunk(ctx); err != io.EOF {
		t.Fatalf("empty body read = %v, want io.EOF", err)
	}
}
