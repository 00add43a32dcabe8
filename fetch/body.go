package fetch

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

type bodyKind uint8

const (
	bodyText bodyKind = iota
	bodyBytes
	bodyBlob
	bodyParams
	bodyForm
	bodyStream
)

// Body is a tagged request body variant. Every variant normalizes to a
// byte-producing ReadableStream plus an implied content type; all variants
// except the raw stream can be replayed across redirect hops.
type Body struct {
	kind     bodyKind
	text     string
	raw      []byte
	blob     *Blob
	params   *URLSearchParams
	form     *FormData
	stream   *streams.ReadableStream
	boundary string
	used     bool
}

// TextBody carries UTF-8 text.
func TextBody(s string) *Body {
	return &Body{kind: bodyText, text: s}
}

// BytesBody carries a raw byte payload. The slice is copied.
func BytesBody(b []byte) *Body {
	return &Body{kind: bodyBytes, raw: append([]byte(nil), b...)}
}

// BlobBody carries a blob and its declared type.
func BlobBody(b *Blob) *Body {
	return &Body{kind: bodyBlob, blob: b}
}

// ParamsBody carries URL-encoded parameters.
func ParamsBody(p *URLSearchParams) *Body {
	return &Body{kind: bodyParams, params: p}
}

// FormBody carries a multipart form. The boundary is fixed at construction
// so ContentType and the encoded stream always agree.
func FormBody(f *FormData) *Body {
	return &Body{kind: bodyForm, form: f, boundary: multipartBoundary()}
}

// StreamBody passes an existing ReadableStream through unchanged. It is the
// only one-shot variant.
func StreamBody(s *streams.ReadableStream) *Body {
	return &Body{kind: bodyStream, stream: s}
}

// ContentType returns the implied content type, or "" for raw streams.
func (b *Body) ContentType() string {
	switch b.kind {
	case bodyText:
		return "text/plain;charset=UTF-8"
	case bodyBytes:
		return "application/octet-stream"
	case bodyBlob:
		return b.blob.Type()
	case bodyParams:
		return "application/x-www-form-urlencoded"
	case bodyForm:
		return "multipart/form-data; boundary=" + b.boundary
	default:
		return ""
	}
}

// Replayable reports whether the body can produce its stream more than once.
func (b *Body) Replayable() bool {
	return b.kind != bodyStream
}

// Length returns the body size in bytes, or -1 when unknown.
func (b *Body) Length() int64 {
	switch b.kind {
	case bodyText:
		return int64(len(b.text))
	case bodyBytes:
		return int64(len(b.raw))
	case bodyBlob:
		return b.blob.Size()
	case bodyParams:
		return int64(len(b.params.Encode()))
	case bodyForm:
		return multipartLength(multipartSegments(b.form, b.boundary))
	default:
		return -1
	}
}

// Stream normalizes the body into a byte-producing ReadableStream. For a
// raw stream variant the second and later calls fail with a body_used error;
// every other variant yields a fresh stream per call.
func (b *Body) Stream(loop *sched.Loop) (*streams.ReadableStream, error) {
	switch b.kind {
	case bodyText:
		return bytesStream(loop, []byte(b.text)), nil
	case bodyBytes:
		return bytesStream(loop, b.raw), nil
	case bodyBlob:
		return b.blob.Stream(loop), nil
	case bodyParams:
		return bytesStream(loop, []byte(b.params.Encode())), nil
	case bodyForm:
		return multipartStream(loop, multipartSegments(b.form, b.boundary)), nil
	default:
		if b.used {
			return nil, errors.Usage(errors.KindBodyUsed, "stream body already consumed")
		}
		b.used = true
		return b.stream, nil
	}
}

// Clone copies the body. One-shot stream bodies cannot be cloned.
func (b *Body) Clone() (*Body, error) {
	if b.kind == bodyStream {
		return nil, errors.Usage(errors.KindNotReplay, "cannot clone a stream body")
	}
	c := *b
	c.used = false
	if b.params != nil {
		c.params = b.params.Clone()
	}
	if b.form != nil {
		c.form = b.form.Clone()
	}
	return &c, nil
}

// bytesStream exposes one in-memory payload as a stream in a single chunk.
func bytesStream(loop *sched.Loop, data []byte) *streams.ReadableStream {
	return streams.NewReadableStream(loop, streams.Source{
		Start: func(c *streams.ReadableController) error {
			if len(data) > 0 {
				if err := c.Enqueue(data); err != nil {
					return err
				}
			}
			return c.Close()
		},
	}, streams.ByteLengthStrategy(float64(len(data))+1))
}
