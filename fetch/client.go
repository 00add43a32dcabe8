package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/wippyai/stream-runtime/bridge"
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
	"github.com/wippyai/stream-runtime/transport"
	"go.uber.org/zap"
)

// DefaultMaxRedirects is the hop ceiling under the follow policy, matching
// browser fetch.
const DefaultMaxRedirects = 20

// Client issues exchanges over a Transport and drives the redirect state
// machine on the script loop.
type Client struct {
	loop         *sched.Loop
	transport    transport.Transport
	log          *zap.Logger
	maxRedirects int
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the default net/http transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger attaches a logger; the default is a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMaxRedirects overrides the redirect hop ceiling.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// NewClient builds a client bound to the script loop.
func NewClient(loop *sched.Loop, opts ...Option) *Client {
	c := &Client{
		loop:         loop,
		transport:    transport.NewNetHTTP(nil, nil),
		log:          zap.NewNop(),
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch runs one exchange, following redirects per the request's mode. The
// promise resolves on the loop with the final Response or rejects with a
// classified error. Call it from the loop goroutine.
func (c *Client) Fetch(ctx context.Context, req *Request) *sched.Promise[*Response] {
	result := sched.NewPromise[*Response](c.loop)

	if sig := req.Signal; sig != nil && sig.Aborted() {
		result.Reject(sig.Reason())
		return result
	}
	if req.bodyUsed {
		result.Reject(errors.Usage(errors.KindBodyUsed, "request body already consumed"))
		return result
	}

	st := &exchange{
		client:  c,
		ctx:     ctx,
		req:     req,
		method:  req.Method,
		url:     req.URL,
		headers: req.Headers.Clone(),
		body:    req.Body,
		result:  result,
	}
	st.step()
	return result
}

// exchange is the per-fetch redirect state machine. All fields mutate on
// the loop only.
type exchange struct {
	client  *Client
	ctx     context.Context
	req     *Request
	method  string
	url     string
	headers *Headers
	body    *Body
	hops    int
	result  *sched.Promise[*Response]
}

// step issues one hop and decides, on its completion, whether to follow.
func (st *exchange) step() {
	c := st.client

	head := &transport.Head{
		Method: st.method,
		URL:    st.url,
		Header: st.headers.wire(),
	}

	var bodyStream *streams.ReadableStream
	if st.body != nil {
		s, err := st.body.Stream(c.loop)
		if err != nil {
			st.result.Reject(err)
			return
		}
		head.HasBody = true
		head.ContentLength = st.body.Length()
		if ct := st.body.ContentType(); ct != "" && !st.headers.Has("Content-Type") {
			head.Header["Content-Type"] = []string{ct}
		}
		bodyStream = s
	}

	ex, err := c.transport.Open(st.ctx, head)
	if err != nil {
		st.result.Reject(transport.Classify(err))
		return
	}

	c.log.Debug("fetch hop",
		zap.String("method", st.method),
		zap.String("url", st.url),
		zap.Int("hop", st.hops))

	opts := &bridge.Options{Signal: st.req.Signal, Log: c.log}
	bridge.Run(st.ctx, c.loop, ex, bodyStream, opts).Then(func(res *bridge.Result, err error) {
		if err != nil {
			st.result.Reject(err)
			return
		}
		st.finishHop(res)
	})
}

// finishHop inspects one hop's response and either resolves the fetch or
// re-issues toward the Location target.
func (st *exchange) finishHop(res *bridge.Result) {
	location := headerGet(res.Head.Header, "Location")
	if !isRedirectStatus(res.Head.Status) || location == "" {
		st.resolve(res)
		return
	}

	switch st.req.Redirect {
	case RedirectManual:
		st.resolve(res)
		return

	case RedirectError:
		_ = res.Body.Cancel(nil)
		st.result.Reject(errors.Redirect(errors.KindNotAllowed,
			"redirect to "+location+" refused by redirect mode"))
		return
	}

	// Follow.
	if st.hops+1 > st.client.maxRedirects {
		_ = res.Body.Cancel(nil)
		st.result.Reject(errors.Redirect(errors.KindLoop,
			"redirect ceiling exceeded"))
		return
	}

	next, err := resolveLocation(st.url, location)
	if err != nil {
		_ = res.Body.Cancel(nil)
		st.result.Reject(errors.Redirect(errors.KindNotAllowed,
			"unresolvable Location header "+location))
		return
	}

	dropBody := false
	switch res.Head.Status {
	case 301, 302:
		if st.method == "POST" {
			st.method = "GET"
			dropBody = true
		}
	case 303:
		if st.method != "GET" && st.method != "HEAD" {
			st.method = "GET"
		}
		dropBody = true
	case 307, 308:
		if st.body != nil && !st.body.Replayable() {
			_ = res.Body.Cancel(nil)
			st.result.Reject(errors.Usage(errors.KindNotReplay,
				"cannot replay a one-shot stream body across a redirect"))
			return
		}
	}
	if dropBody {
		st.body = nil
		st.headers.Delete("Content-Type")
		st.headers.Delete("Content-Length")
	}

	if crossOrigin(st.url, next) {
		st.headers.Delete("Authorization")
		st.headers.Delete("Cookie")
		st.headers.Delete("Proxy-Authorization")
	}

	_ = res.Body.Cancel(nil)
	st.url = next
	st.hops++
	st.step()
}

func (st *exchange) resolve(res *bridge.Result) {
	headers := headersFromWire(res.Head.Header)
	resp := NewResponse(st.client.loop, res.Body, res.Head.Status, res.Head.StatusText, headers)
	resp.URL = st.url
	resp.Redirected = st.hops > 0
	st.result.Resolve(resp)
}

func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// headerGet is a case-insensitive single-value lookup on a wire header map.
func headerGet(m map[string][]string, name string) string {
	if vs, ok := m[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	for k, vs := range m {
		if len(vs) > 0 && strings.EqualFold(k, name) {
			return vs[0]
		}
	}
	return ""
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// crossOrigin reports whether two absolute URLs differ in scheme or host.
func crossOrigin(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return true
	}
	return ua.Scheme != ub.Scheme || ua.Host != ub.Host
}
