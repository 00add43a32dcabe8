package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/wippyai/stream-runtime/errors"
	"go.uber.org/zap"
)

// FastHTTP is a Transport backed by valyala/fasthttp with streaming response
// bodies. fasthttp never follows redirects on Do, so each 3xx surfaces to
// the exchange layer as-is.
type FastHTTP struct {
	client *fasthttp.Client
	log    *zap.Logger
}

// NewFastHTTP wraps client as a Transport. A nil client gets a default with
// streaming response bodies enabled; a provided client must set
// StreamResponseBody itself.
func NewFastHTTP(client *fasthttp.Client, log *zap.Logger) *FastHTTP {
	if client == nil {
		client = &fasthttp.Client{
			StreamResponseBody:  true,
			MaxIdleConnDuration: time.Minute,
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FastHTTP{client: client, log: log}
}

type fastExchange struct {
	req    *fasthttp.Request
	resp   *fasthttp.Response
	pw     *io.PipeWriter // nil when the request has no body
	respCh chan error
	log    *zap.Logger

	body io.Reader
	buf  []byte

	mu        sync.Mutex
	cancelled error
	released  bool
}

// Open builds the request and starts the round trip on its own goroutine.
func (t *FastHTTP) Open(ctx context.Context, head *Head) (Exchange, error) {
	req := fasthttp.AcquireRequest()
	req.Header.SetMethod(head.Method)
	req.SetRequestURI(head.URL)
	for k, vs := range head.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	var pw *io.PipeWriter
	if head.HasBody {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		req.SetBodyStream(pr, int(head.ContentLength))
	}

	ex := &fastExchange{
		req:    req,
		resp:   fasthttp.AcquireResponse(),
		pw:     pw,
		respCh: make(chan error, 1),
		log:    t.log,
	}

	t.log.Debug("opening exchange",
		zap.String("method", head.Method),
		zap.String("url", head.URL),
		zap.Bool("has_body", head.HasBody))

	go func() {
		var err error
		if deadline, ok := ctx.Deadline(); ok {
			err = t.client.DoDeadline(ex.req, ex.resp, deadline)
		} else {
			err = t.client.Do(ex.req, ex.resp)
		}
		ex.respCh <- err
	}()

	return ex, nil
}

func (ex *fastExchange) WriteChunk(ctx context.Context, p []byte) error {
	if ex.pw == nil {
		return errors.Usage(errors.KindInvalidState, "exchange has no request body")
	}
	if err := ex.failed(ctx); err != nil {
		return err
	}
	if _, err := ex.pw.Write(p); err != nil {
		return Classify(err)
	}
	return nil
}

func (ex *fastExchange) FinishBody(ctx context.Context) error {
	if ex.pw == nil {
		return errors.Usage(errors.KindInvalidState, "exchange has no request body")
	}
	if err := ex.failed(ctx); err != nil {
		return err
	}
	return ex.pw.Close()
}

func (ex *fastExchange) Response(ctx context.Context) (*ResponseHead, error) {
	select {
	case err := <-ex.respCh:
		if err != nil {
			if reason := ex.cancelReason(); reason != nil {
				return nil, Classify(reason)
			}
			ex.release()
			return nil, Classify(err)
		}
		ex.body = ex.resp.BodyStream()
		head := &ResponseHead{
			Status:        ex.resp.StatusCode(),
			StatusText:    http.StatusText(ex.resp.StatusCode()),
			Header:        make(map[string][]string),
			ContentLength: int64(ex.resp.Header.ContentLength()),
		}
		ex.resp.Header.VisitAll(func(k, v []byte) {
			key := string(k)
			head.Header[key] = append(head.Header[key], string(v))
		})
		return head, nil
	case <-ctx.Done():
		ex.Cancel(ctx.Err())
		return nil, Classify(ctx.Err())
	}
}

func (ex *fastExchange) ReadChunk(ctx context.Context) ([]byte, error) {
	if ex.body == nil {
		return nil, errors.Usage(errors.KindInvalidState, "response head not received")
	}
	if err := ex.failed(ctx); err != nil {
		return nil, err
	}
	if ex.buf == nil {
		ex.buf = make([]byte, readChunkSize)
	}

	for {
		n, err := ex.body.Read(ex.buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, ex.buf)
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

func (ex *fastExchange) Cancel(reason error) {
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
	// Unblock a pending body read. The pooled objects are NOT returned here:
	// the Do goroutine or a blocked reader may still touch them, so cancelled
	// exchanges leave req/resp to the garbage collector instead.
	if ex.body != nil {
		_ = ex.resp.CloseBodyStream()
	}
}

func (ex *fastExchange) failed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	if reason := ex.cancelReason(); reason != nil {
		return Classify(reason)
	}
	return nil
}

func (ex *fastExchange) cancelReason() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.cancelled
}

// release returns the pooled request/response objects after a finished
// round trip. Only called from paths where no other goroutine can still be
// using them; cancelled exchanges skip pooling entirely.
func (ex *fastExchange) release() {
	ex.mu.Lock()
	if ex.released || ex.cancelled != nil {
		ex.mu.Unlock()
		return
	}
	ex.released = true
	ex.mu.Unlock()

	_ = ex.resp.CloseBodyStream()
	fasthttp.ReleaseResponse(ex.resp)
	fasthttp.ReleaseRequest(ex.req)
}
