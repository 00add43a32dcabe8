package fetch

import (
	"testing"

	"github.com/wippyai/stream-runtime/errors"
)

func TestHeaders_CaseInsensitiveAndOrdered(t *testing.T) {
	h := NewHeaders()
	if err := h.Append("content-type", "text/plain"); err != nil {
		t.Fatal(err)
	}
	if err := h.Append("X-Trace", "a"); err != nil {
		t.Fatal(err)
	}
	if err := h.Append("x-trace", "b"); err != nil {
		t.Fatal(err)
	}

	if got := h.Get("CONTENT-TYPE"); got != "text/plain" {
		t.Fatalf("Get = %q", got)
	}
	if got := h.Get("x-trace"); got != "a, b" {
		t.Fatalf("multi-value Get = %q", got)
	}
	if got := h.Values("X-TRACE"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Values = %v", got)
	}

	keys := h.Keys()
	if len(keys) != 2 || keys[0] != "Content-Type" || keys[1] != "X-Trace" {
		t.Fatalf("Keys = %v, want insertion order with canonical names", keys)
	}
}

func TestHeaders_SetReplacesAndDeleteRemoves(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("Accept", "text/html")
	_ = h.Append("Accept", "application/json")
	if err := h.Set("accept", "*/*"); err != nil {
		t.Fatal(err)
	}
	if got := h.Values("Accept"); len(got) != 1 || got[0] != "*/*" {
		t.Fatalf("after Set: %v", got)
	}

	h.Delete("ACCEPT")
	if h.Has("Accept") || len(h.Keys()) != 0 {
		t.Fatal("Delete left the header behind")
	}
}

func TestHeaders_RejectsInvalidNamesAndValues(t *testing.T) {
	h := NewHeaders()
	if err := h.Append("bad name", "v"); errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("invalid name = %v, want usage error", err)
	}
	if err := h.Append("X-Ok", "line1\r\nline2"); errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("invalid value = %v, want usage error", err)
	}
	if len(h.Keys()) != 0 {
		t.Fatal("rejected headers must not be stored")
	}
}

func TestHeaders_CloneIsIndependent(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("X-A", "1")
	c := h.Clone()
	_ = c.Set("X-A", "2")
	if h.Get("X-A") != "1" {
		t.Fatal("clone mutation leaked into the original")
	}
}
