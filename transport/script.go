package transport

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/wippyai/stream-runtime/errors"
)

// Reply scripts the behavior of one exchange served by a Script transport.
type Reply struct {
	Status int // defaults to 200
	Header map[string][]string
	Chunks [][]byte

	// OpenErr fails Open itself; RespErr fails the Response call; WriteErr
	// fails every WriteChunk, simulating a server that stopped reading the
	// request body.
	OpenErr  error
	RespErr  error
	WriteErr error

	// ReadErr, when set, replaces the final io.EOF after Chunks drain.
	ReadErr error

	// Hang makes ReadChunk block after Chunks drain until the exchange is
	// cancelled or the read context expires. Used to exercise aborts.
	Hang bool
}

// Call records what a caller did with one scripted exchange.
type Call struct {
	Head *Head

	mu       sync.Mutex
	written  [][]byte
	finished bool
	cancel   error
	cancelCh chan struct{}
}

// Written returns the request body chunks received so far.
func (c *Call) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// Finished reports whether FinishBody was called.
func (c *Call) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// CancelReason returns the reason passed to Cancel, or nil.
func (c *Call) CancelReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel
}

// Script is an in-memory Transport for tests. Each Open consumes the next
// scripted Reply in order and records the caller's actions in a Call.
type Script struct {
	mu      sync.Mutex
	replies []*Reply
	calls   []*Call
}

// NewScript builds a Script that serves replies in order.
func NewScript(replies ...*Reply) *Script {
	return &Script{replies: append([]*Reply(nil), replies...)}
}

// Push appends another scripted reply.
func (s *Script) Push(r *Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
}

// Calls returns the recorded exchanges in open order.
func (s *Script) Calls() []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Call(nil), s.calls...)
}

// Open consumes the next reply. Opening past the script's end is a test bug
// and fails with a usage error.
func (s *Script) Open(_ context.Context, head *Head) (Exchange, error) {
	s.mu.Lock()
	if len(s.replies) == 0 {
		s.mu.Unlock()
		return nil, errors.Usage(errors.KindInvalidState, "script exhausted: unexpected exchange")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]

	call := &Call{Head: head, cancelCh: make(chan struct{})}
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if reply.OpenErr != nil {
		return nil, Classify(reply.OpenErr)
	}
	return &scriptExchange{reply: reply, call: call}, nil
}

type scriptExchange struct {
	reply *Reply
	call  *Call
	next  int
}

func (ex *scriptExchange) WriteChunk(ctx context.Context, p []byte) error {
	if err := ex.failed(ctx); err != nil {
		return err
	}
	if ex.reply.WriteErr != nil {
		return Classify(ex.reply.WriteErr)
	}
	c := ex.call
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return errors.Usage(errors.KindInvalidState, "write after FinishBody")
	}
	c.written = append(c.written, append([]byte(nil), p...))
	return nil
}

func (ex *scriptExchange) FinishBody(ctx context.Context) error {
	if err := ex.failed(ctx); err != nil {
		return err
	}
	c := ex.call
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return nil
}

func (ex *scriptExchange) Response(ctx context.Context) (*ResponseHead, error) {
	if err := ex.failed(ctx); err != nil {
		return nil, err
	}
	if ex.reply.RespErr != nil {
		return nil, Classify(ex.reply.RespErr)
	}
	status := ex.reply.Status
	if status == 0 {
		status = 200
	}
	header := make(map[string][]string, len(ex.reply.Header))
	for k, vs := range ex.reply.Header {
		header[k] = append([]string(nil), vs...)
	}
	length := int64(0)
	for _, c := range ex.reply.Chunks {
		length += int64(len(c))
	}
	return &ResponseHead{
		Status:        status,
		StatusText:    http.StatusText(status),
		Header:        header,
		ContentLength: length,
	}, nil
}

func (ex *scriptExchange) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ex.failed(ctx); err != nil {
		return nil, err
	}
	if ex.next < len(ex.reply.Chunks) {
		chunk := ex.reply.Chunks[ex.next]
		ex.next++
		return append([]byte(nil), chunk...), nil
	}
	if ex.reply.ReadErr != nil {
		return nil, Classify(ex.reply.ReadErr)
	}
	if ex.reply.Hang {
		select {
		case <-ex.call.cancelCh:
			return nil, Classify(ex.call.CancelReason())
		case <-ctx.Done():
			return nil, Classify(ctx.Err())
		}
	}
	return nil, io.EOF
}

func (ex *scriptExchange) Cancel(reason error) {
	c := ex.call
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	if reason == nil {
		reason = errors.Abort(nil)
	}
	c.cancel = reason
	close(c.cancelCh)
}

func (ex *scriptExchange) failed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	if reason := ex.call.CancelReason(); reason != nil {
		return Classify(reason)
	}
	return nil
}
