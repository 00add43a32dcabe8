package host

import (
	"github.com/wippyai/stream-runtime/resource"
)

// Resource kinds stored in the shared handle table.
const (
	KindReadable resource.Kind = iota + 1
	KindWritable
	KindTransform
	KindReader
	KindWriter
	KindAbortController
	KindResponse
)

// Completer delivers asynchronous completions back into the script engine.
// Complete is always invoked on the scheduler loop; the engine correlates
// calls by the token it passed to the originating host function.
type Completer interface {
	Complete(token uint64, value any, err error)
}
