package streams

// SizeFunc computes the queued size of a chunk. The size is computed once,
// at enqueue time.
type SizeFunc func(chunk any) float64

// DefaultSize returns the byte length for binary chunks and 1 for anything
// else.
func DefaultSize(chunk any) float64 {
	switch v := chunk.(type) {
	case []byte:
		return float64(len(v))
	case string:
		return float64(len(v))
	default:
		return 1
	}
}

// QueuingStrategy pairs a high-water mark with a chunk sizing function.
type QueuingStrategy struct {
	Size          SizeFunc
	HighWaterMark float64
}

// CountStrategy sizes every chunk as 1.
func CountStrategy(highWaterMark float64) *QueuingStrategy {
	return &QueuingStrategy{
		HighWaterMark: highWaterMark,
		Size:          func(any) float64 { return 1 },
	}
}

// ByteLengthStrategy sizes chunks by byte length.
func ByteLengthStrategy(highWaterMark float64) *QueuingStrategy {
	return &QueuingStrategy{
		HighWaterMark: highWaterMark,
		Size:          DefaultSize,
	}
}

func normalizeStrategy(s *QueuingStrategy, defaultHWM float64) (float64, SizeFunc) {
	if s == nil {
		return defaultHWM, DefaultSize
	}
	size := s.Size
	if size == nil {
		size = DefaultSize
	}
	return s.HighWaterMark, size
}

type queueEntry struct {
	value any
	size  float64
}

// chunkQueue is a strict-FIFO buffer whose total size is always the sum of
// per-entry sizes.
type chunkQueue struct {
	entries   []queueEntry
	totalSize float64
}

func (q *chunkQueue) enqueue(value any, size float64) {
	q.entries = append(q.entries, queueEntry{value: value, size: size})
	q.totalSize += size
}

func (q *chunkQueue) dequeue() any {
	e := q.entries[0]
	copy(q.entries, q.entries[1:])
	q.entries = q.entries[:len(q.entries)-1]
	q.totalSize -= e.size
	if len(q.entries) == 0 {
		q.totalSize = 0 // clamp float drift at empty
	}
	return e.value
}

func (q *chunkQueue) len() int {
	return len(q.entries)
}

func (q *chunkQueue) clear() {
	q.entries = nil
	q.totalSize = 0
}
