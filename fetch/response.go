package fetch

import (
	"encoding/json"
	"fmt"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

// Response is the script-visible result of one exchange. Its body is a
// loop-confined ReadableStream under the usual single-reader lock.
type Response struct {
	Status     int
	StatusText string
	Headers    *Headers
	URL        string
	Redirected bool

	loop     *sched.Loop
	body     *streams.ReadableStream
	bodyUsed bool
}

// NewResponse assembles a response around an existing body stream. Mostly
// useful to embedders and tests; Client.Fetch builds responses itself.
func NewResponse(loop *sched.Loop, body *streams.ReadableStream, status int, statusText string, headers *Headers) *Response {
	if headers == nil {
		headers = NewHeaders()
	}
	return &Response{
		Status:     status,
		StatusText: statusText,
		Headers:    headers,
		loop:       loop,
		body:       body,
	}
}

// Ok reports whether the status is in the 2xx range.
func (r *Response) Ok() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Body returns the body stream, or nil when there is none.
func (r *Response) Body() *streams.ReadableStream {
	return r.body
}

// BodyUsed reports whether a convenience reader has consumed the body.
func (r *Response) BodyUsed() bool {
	return r.bodyUsed
}

// Clone splits the body with tee: the original keeps one branch, the clone
// gets the other. Fails once the body is used or locked.
func (r *Response) Clone() (*Response, error) {
	if r.bodyUsed {
		return nil, errors.Usage(errors.KindBodyUsed, "clone after body was consumed")
	}
	c := *r
	c.Headers = r.Headers.Clone()
	if r.body != nil {
		a, b, err := r.body.Tee()
		if err != nil {
			return nil, err
		}
		r.body = a
		c.body = b
	}
	return &c, nil
}

// Bytes drains the body into one buffer.
func (r *Response) Bytes() *sched.Promise[[]byte] {
	return r.consume()
}

// Text drains the body and interprets it as UTF-8 text.
func (r *Response) Text() *sched.Promise[string] {
	p := sched.NewPromise[string](r.loop)
	r.consume().Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(string(data))
	})
	return p
}

// JSON drains the body and decodes it as JSON.
func (r *Response) JSON() *sched.Promise[any] {
	p := sched.NewPromise[any](r.loop)
	r.consume().Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			p.Reject(errors.Stream(errors.KindSourceFailed, "response is not valid JSON", err))
			return
		}
		p.Resolve(v)
	})
	return p
}

// Blob drains the body into a Blob typed by the Content-Type header.
func (r *Response) Blob() *sched.Promise[*Blob] {
	p := sched.NewPromise[*Blob](r.loop)
	contentType := r.Headers.Get("Content-Type")
	r.consume().Then(func(data []byte, err error) {
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(NewBlob(data, contentType))
	})
	return p
}

// consume marks the body used and drains it.
func (r *Response) consume() *sched.Promise[[]byte] {
	if r.bodyUsed {
		return sched.Rejected[[]byte](r.loop,
			errors.Usage(errors.KindBodyUsed, "response body already consumed"))
	}
	r.bodyUsed = true
	if r.body == nil {
		return sched.Resolved(r.loop, []byte(nil))
	}
	return drainStream(r.loop, r.body)
}

// drainStream locks s and chains reads until done or error, concatenating
// the chunks. Shared by the Request and Response convenience readers.
func drainStream(loop *sched.Loop, s *streams.ReadableStream) *sched.Promise[[]byte] {
	p := sched.NewPromise[[]byte](loop)
	reader, err := s.GetReader()
	if err != nil {
		p.Reject(err)
		return p
	}

	var buf []byte
	var step func()
	step = func() {
		reader.Read().Then(func(res streams.ReadResult, err error) {
			if err != nil {
				p.Reject(err)
				return
			}
			if res.Done {
				p.Resolve(buf)
				return
			}
			switch chunk := res.Value.(type) {
			case []byte:
				buf = append(buf, chunk...)
			case string:
				buf = append(buf, chunk...)
			default:
				_ = reader.Cancel(nil)
				p.Reject(errors.Usage(errors.KindInvalidState,
					fmt.Sprintf("body chunk must be bytes or string, got %T", res.Value)))
				return
			}
			step()
		})
	}
	step()
	return p
}
