package transport

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/valyala/bytebufferpool"
	"github.com/wippyai/stream-runtime/errors"
	"go.uber.org/zap"
)

// readChunkSize bounds how much body a single ReadChunk returns.
const readChunkSize = 32 * 1024

// NetHTTP is a Transport backed by net/http. Redirect following is disabled
// unconditionally: the exchange layer above owns the redirect state machine
// and must see each 3xx response itself.
type NetHTTP struct {
	client *http.Client
	log    *zap.Logger
}

// NewNetHTTP wraps client as a Transport. A nil client gets a default one;
// a nil log disables logging. The client's redirect policy is overridden.
func NewNetHTTP(client *http.Client, log *zap.Logger) *NetHTTP {
	if client == nil {
		client = &http.Client{}
	} else {
		c := *client
		client = &c
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NetHTTP{client: client, log: log}
}

type netResult struct {
	resp *http.Response
	err  error
}

type netExchange struct {
	pw        *io.PipeWriter // nil when the request has no body
	respCh    chan netResult
	reqCancel context.CancelFunc
	log       *zap.Logger

	mu        sync.Mutex
	body      io.ReadCloser
	cancelled error
	released  bool
}

// Open builds the request and starts the round trip on its own goroutine.
func (t *NetHTTP) Open(ctx context.Context, head *Head) (Exchange, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	var body io.Reader
	var pw *io.PipeWriter
	if head.HasBody {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		body = pr
	}

	req, err := http.NewRequestWithContext(reqCtx, head.Method, head.URL, body)
	if err != nil {
		cancel()
		return nil, errors.Transport(errors.KindNetwork, "malformed request", err)
	}
	if head.HasBody {
		req.ContentLength = head.ContentLength
	}
	for k, vs := range head.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	ex := &netExchange{
		pw:        pw,
		respCh:    make(chan netResult, 1),
		reqCancel: cancel,
		log:       t.log,
	}

	t.log.Debug("opening exchange",
		zap.String("method", head.Method),
		zap.String("url", head.URL),
		zap.Bool("has_body", head.HasBody))

	go func() {
		resp, err := t.client.Do(req)
		ex.respCh <- netResult{resp: resp, err: err}
	}()

	return ex, nil
}

func (ex *netExchange) WriteChunk(ctx context.Context, p []byte) error {
	if ex.pw == nil {
		return errors.Usage(errors.KindInvalidState, "exchange has no request body")
	}
	if err := ex.failed(ctx); err != nil {
		return err
	}
	// Pipe writes block until the transport consumes them; Cancel unblocks
	// them by closing the pipe with the cancel reason.
	if _, err := ex.pw.Write(p); err != nil {
		return Classify(err)
	}
	return nil
}

func (ex *netExchange) FinishBody(ctx context.Context) error {
	if ex.pw == nil {
		return errors.Usage(errors.KindInvalidState, "exchange has no request body")
	}
	if err := ex.failed(ctx); err != nil {
		return err
	}
	return ex.pw.Close()
}

func (ex *netExchange) Response(ctx context.Context) (*ResponseHead, error) {
	select {
	case res := <-ex.respCh:
		if res.err != nil {
			if reason := ex.cancelReason(); reason != nil {
				return nil, Classify(reason)
			}
			return nil, Classify(res.err)
		}
		ex.setBody(res.resp.Body)
		return &ResponseHead{
			Status:        res.resp.StatusCode,
			StatusText:    http.StatusText(res.resp.StatusCode),
			Header:        res.resp.Header,
			ContentLength: res.resp.ContentLength,
		}, nil
	case <-ctx.Done():
		ex.Cancel(ctx.Err())
		return nil, Classify(ctx.Err())
	}
}

func (ex *netExchange) ReadChunk(ctx context.Context) ([]byte, error) {
	body := ex.responseBody()
	if body == nil {
		return nil, errors.Usage(errors.KindInvalidState, "response head not received")
	}
	if err := ex.failed(ctx); err != nil {
		return nil, err
	}

	// The scratch buffer is scoped to this call: the chunk is copied out
	// before the buffer returns to the pool, so a Cancel on another
	// goroutine can never hand a buffer with a read still parked on it to
	// the next exchange.
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if cap(buf.B) < readChunkSize {
		buf.B = make([]byte, readChunkSize)
	}
	scratch := buf.B[:readChunkSize]

	for {
		n, err := body.Read(scratch)
		if n > 0 {
			out := make([]byte, n)
			copy(out, scratch)
			return out, nil
		}
		if err == io.EOF {
			ex.release()
			return nil, io.EOF
		}
		if err != nil {
			if reason := ex.cancelReason(); reason != nil {
				err = reason
			}
			ex.release()
			return nil, Classify(err)
		}
	}
}

func (ex *netExchange) Cancel(reason error) {
	ex.mu.Lock()
	if ex.cancelled != nil {
		ex.mu.Unlock()
		return
	}
	if reason == nil {
		reason = errors.Abort(nil)
	}
	ex.cancelled = reason
	ex.mu.Unlock()

	ex.log.Debug("exchange cancelled", zap.Error(reason))
	if ex.pw != nil {
		_ = ex.pw.CloseWithError(reason)
	}
	ex.reqCancel()
	ex.release()
}

// failed reports the first of: context expiry, prior cancellation.
func (ex *netExchange) failed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	if reason := ex.cancelReason(); reason != nil {
		return Classify(reason)
	}
	return nil
}

func (ex *netExchange) cancelReason() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.cancelled
}

// setBody publishes the response body. If the exchange was already released
// by a racing Cancel, the body is closed instead of leaked.
func (ex *netExchange) setBody(rc io.ReadCloser) {
	ex.mu.Lock()
	if ex.released {
		ex.mu.Unlock()
		_ = rc.Close()
		return
	}
	ex.body = rc
	ex.mu.Unlock()
}

func (ex *netExchange) responseBody() io.ReadCloser {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.body
}

// release closes the body, unblocking any read parked on it. Safe to call
// more than once and from any goroutine.
func (ex *netExchange) release() {
	ex.mu.Lock()
	if ex.released {
		ex.mu.Unlock()
		return
	}
	ex.released = true
	body := ex.body
	ex.mu.Unlock()

	if body != nil {
		_ = body.Close()
	}
}
