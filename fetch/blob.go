package fetch

import (
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

// blobChunkSize bounds how much of a blob one stream pull yields.
const blobChunkSize = 32 * 1024

// Blob is an immutable byte payload with a declared media type.
type Blob struct {
	data []byte
	typ  string
}

// NewBlob copies data into a blob of the given media type.
func NewBlob(data []byte, mediaType string) *Blob {
	return &Blob{data: append([]byte(nil), data...), typ: mediaType}
}

// Size returns the payload length in bytes.
func (b *Blob) Size() int64 { return int64(len(b.data)) }

// Type returns the declared media type, possibly "".
func (b *Blob) Type() string { return b.typ }

// Bytes returns a copy of the payload.
func (b *Blob) Bytes() []byte { return append([]byte(nil), b.data...) }

// Slice returns a sub-blob over [start, end), clamped to the payload.
func (b *Blob) Slice(start, end int64, mediaType string) *Blob {
	n := int64(len(b.data))
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return NewBlob(b.data[start:end], mediaType)
}

// Stream returns a fresh ReadableStream over the payload. Each call yields
// an independent stream; the blob itself is never consumed.
func (b *Blob) Stream(loop *sched.Loop) *streams.ReadableStream {
	offset := 0
	return streams.NewReadableStream(loop, streams.Source{
		Pull: func(c *streams.ReadableController) *sched.Promise[sched.Void] {
			if offset >= len(b.data) {
				_ = c.Close()
				return nil
			}
			end := offset + blobChunkSize
			if end > len(b.data) {
				end = len(b.data)
			}
			_ = c.Enqueue(b.data[offset:end])
			offset = end
			if offset >= len(b.data) {
				_ = c.Close()
			}
			return nil
		},
	}, streams.ByteLengthStrategy(blobChunkSize))
}
