package fetch

import (
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

// multipartBoundary returns a fresh boundary unique to one encoding.
func multipartBoundary() string {
	return "----stream-runtime-" + uuid.NewString()
}

// escapeQuotes escapes a field or file name for a Content-Disposition value.
func escapeQuotes(s string) string {
	r := strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
	return r.Replace(s)
}

// multipartSegments flattens a form into the byte segments of its multipart
// encoding. Part headers are rendered through a pooled buffer; blob payloads
// are referenced in place and later chunked by the stream, never copied.
func multipartSegments(form *FormData, boundary string) [][]byte {
	var segments [][]byte

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		segments = append(segments, append([]byte(nil), buf.B...))
		buf.Reset()
	}

	for _, e := range form.entries {
		buf.WriteString("--")
		buf.WriteString(boundary)
		buf.WriteString("\r\n")
		if e.blob == nil {
			buf.WriteString(`Content-Disposition: form-data; name="`)
			buf.WriteString(escapeQuotes(e.name))
			buf.WriteString("\"\r\n\r\n")
			buf.WriteString(e.value)
			buf.WriteString("\r\n")
			continue
		}

		buf.WriteString(`Content-Disposition: form-data; name="`)
		buf.WriteString(escapeQuotes(e.name))
		buf.WriteString(`"; filename="`)
		buf.WriteString(escapeQuotes(e.filename))
		buf.WriteString("\"\r\n")
		contentType := e.blob.typ
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		buf.WriteString("Content-Type: ")
		buf.WriteString(contentType)
		buf.WriteString("\r\n\r\n")
		flush()

		// The blob's payload is streamed as its own segments.
		segments = append(segments, e.blob.data)
		buf.WriteString("\r\n")
	}

	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString("--\r\n")
	flush()

	return segments
}

// multipartLength sums the encoded size without rendering it.
func multipartLength(segments [][]byte) int64 {
	var n int64
	for _, s := range segments {
		n += int64(len(s))
	}
	return n
}

// multipartStream serializes the segments as a ReadableStream, splitting
// large payloads at blobChunkSize so a huge file never sits in the queue
// as one chunk.
func multipartStream(loop *sched.Loop, segments [][]byte) *streams.ReadableStream {
	seg, off := 0, 0
	return streams.NewReadableStream(loop, streams.Source{
		Pull: func(c *streams.ReadableController) *sched.Promise[sched.Void] {
			if seg >= len(segments) {
				_ = c.Close()
				return nil
			}
			cur := segments[seg]
			end := off + blobChunkSize
			if end > len(cur) {
				end = len(cur)
			}
			_ = c.Enqueue(cur[off:end])
			off = end
			if off >= len(cur) {
				seg++
				off = 0
			}
			if seg >= len(segments) {
				_ = c.Close()
			}
			return nil
		},
	}, streams.ByteLengthStrategy(blobChunkSize))
}
