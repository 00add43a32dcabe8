package fetch

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
)

// RedirectMode selects how Client.Fetch treats 3xx responses.
type RedirectMode string

const (
	RedirectFollow RedirectMode = "follow"
	RedirectError  RedirectMode = "error"
	RedirectManual RedirectMode = "manual"
)

// RequestInit carries the optional pieces of a request, mirroring the
// fetch init dictionary.
type RequestInit struct {
	Method   string
	Headers  *Headers
	Body     *Body
	Redirect RedirectMode
	Signal   *sched.AbortSignal
}

// Request describes one outgoing exchange.
type Request struct {
	Method   string
	URL      string
	Headers  *Headers
	Body     *Body
	Redirect RedirectMode
	Signal   *sched.AbortSignal

	bodyUsed bool
}

// NewRequest validates rawURL and the init fields into a Request. Method
// defaults to GET, redirect mode to follow. GET and HEAD must not carry a
// body.
func NewRequest(rawURL string, init *RequestInit) (*Request, error) {
	if init == nil {
		init = &RequestInit{}
	}

	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, errors.Usage(errors.KindInvalidState, "request URL must be absolute: "+rawURL)
	}

	method := strings.ToUpper(init.Method)
	if method == "" {
		method = "GET"
	}
	if (method == "GET" || method == "HEAD") && init.Body != nil {
		return nil, errors.Usage(errors.KindInvalidState, method+" request cannot have a body")
	}

	redirect := init.Redirect
	switch redirect {
	case "":
		redirect = RedirectFollow
	case RedirectFollow, RedirectError, RedirectManual:
	default:
		return nil, errors.Usage(errors.KindInvalidState, "unknown redirect mode "+string(redirect))
	}

	headers := init.Headers
	if headers == nil {
		headers = NewHeaders()
	}

	return &Request{
		Method:   method,
		URL:      u.String(),
		Headers:  headers,
		Body:     init.Body,
		Redirect: redirect,
		Signal:   init.Signal,
	}, nil
}

// Clone copies the request. Requests with one-shot stream bodies cannot be
// cloned, and neither can a request whose body was already consumed.
func (r *Request) Clone() (*Request, error) {
	if r.bodyUsed {
		return nil, errors.Usage(errors.KindBodyUsed, "clone after request body was consumed")
	}
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Body != nil {
		body, err := r.Body.Clone()
		if err != nil {
			return nil, err
		}
		c.Body = body
	}
	return &c, nil
}

// BodyUsed reports whether a convenience reader has consumed the body.
func (r *Request) BodyUsed() bool {
	return r.bodyUsed
}

// Bytes drains the request body into one buffer. A request is not bound to
// a loop until it is fetched, so the convenience readers take the loop
// explicitly; call them from that loop's goroutine.
func (r *Request) Bytes(loop *sched.Loop) *sched.Promise[[]byte] {
	return r.consume(loop)
}

// Text drains the body and interprets it as UTF-8 text.
func (r *Request) Text(loop *sched.Loop) *sched.Promise[string] {
	p := sched.NewPromise[string](loop)
	r.consume(loop).Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(string(data))
	})
	return p
}

// JSON drains the body and decodes it as JSON.
func (r *Request) JSON(loop *sched.Loop) *sched.Promise[any] {
	p := sched.NewPromise[any](loop)
	r.consume(loop).Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			p.Reject(errors.Stream(errors.KindSourceFailed, "request body is not valid JSON", err))
			return
		}
		p.Resolve(v)
	})
	return p
}

// Blob drains the body into a Blob typed by the request's Content-Type
// header, falling back to the body's own content type.
func (r *Request) Blob(loop *sched.Loop) *sched.Promise[*Blob] {
	p := sched.NewPromise[*Blob](loop)
	contentType := r.Headers.Get("Content-Type")
	if contentType == "" && r.Body != nil {
		contentType = r.Body.ContentType()
	}
	r.consume(loop).Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(NewBlob(data, contentType))
	})
	return p
}

// consume marks the body used and drains it.
func (r *Request) consume(loop *sched.Loop) *sched.Promise[[]byte] {
	if r.bodyUsed {
		return sched.Rejected[[]byte](loop,
			errors.Usage(errors.KindBodyUsed, "request body already consumed"))
	}
	r.bodyUsed = true
	if r.Body == nil {
		return sched.Resolved(loop, []byte(nil))
	}
	s, err := r.Body.Stream(loop)
	if err != nil {
		return sched.Rejected[[]byte](loop, err)
	}
	return drainStream(loop, s)
}
