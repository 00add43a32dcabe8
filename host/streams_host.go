package host

import (
	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/resource"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

// StreamsNamespace is the namespace the streams host registers under.
const StreamsNamespace = "runtime:streams@1"

// StreamsHost exposes stream construction, readers, writers, tee and pipe
// to the embedding engine. All host functions must be called on the
// scheduler loop.
type StreamsHost struct {
	loop      *sched.Loop
	resources *resource.Table
	complete  Completer
}

// NewStreamsHost creates a streams host over a shared resource table.
func NewStreamsHost(loop *sched.Loop, res *resource.Table, c Completer) *StreamsHost {
	return &StreamsHost{loop: loop, resources: res, complete: c}
}

// Namespace returns the registration namespace.
func (h *StreamsHost) Namespace() string {
	return StreamsNamespace
}

// Register returns the host function table.
func (h *StreamsHost) Register() map[string]any {
	return map[string]any{
		// Construction
		"[constructor]transform-stream": h.ConstructorTransformStream,
		// Readable stream methods
		"[method]readable-stream.get-reader": h.MethodReadableGetReader,
		"[method]readable-stream.locked":     h.MethodReadableLocked,
		"[method]readable-stream.cancel":     h.MethodReadableCancel,
		"[method]readable-stream.tee":        h.MethodReadableTee,
		"[method]readable-stream.pipe-to":    h.MethodReadablePipeTo,
		"[resource-drop]readable-stream":     h.ResourceDropReadable,
		// Reader methods
		"[method]reader.read":    h.MethodReaderRead,
		"[method]reader.cancel":  h.MethodReaderCancel,
		"[method]reader.release": h.MethodReaderRelease,
		"[resource-drop]reader":  h.ResourceDropReader,
		// Writable stream methods
		"[method]writable-stream.get-writer": h.MethodWritableGetWriter,
		"[method]writable-stream.locked":     h.MethodWritableLocked,
		"[method]writable-stream.abort":      h.MethodWritableAbort,
		"[resource-drop]writable-stream":     h.ResourceDropWritable,
		// Writer methods
		"[method]writer.write":        h.MethodWriterWrite,
		"[method]writer.close":        h.MethodWriterClose,
		"[method]writer.abort":        h.MethodWriterAbort,
		"[method]writer.ready":        h.MethodWriterReady,
		"[method]writer.desired-size": h.MethodWriterDesiredSize,
		"[method]writer.release":      h.MethodWriterRelease,
		"[resource-drop]writer":       h.ResourceDropWriter,
		// Transform stream methods
		"[resource-drop]transform-stream": h.ResourceDropTransform,
	}
}

// AddReadable registers an existing readable stream and returns its handle.
// Native producers (fetch response bodies, file readers) use this to hand a
// stream to the script.
func (h *StreamsHost) AddReadable(s *streams.ReadableStream) (resource.Handle, error) {
	return h.resources.Insert(KindReadable, s)
}

// AddWritable registers an existing writable stream and returns its handle.
func (h *StreamsHost) AddWritable(s *streams.WritableStream) (resource.Handle, error) {
	return h.resources.Insert(KindWritable, s)
}

// ConstructorTransformStream creates an identity transform stream and
// returns the transform, writable and readable handles. The high-water
// marks use a count strategy; writableHWM <= 0 defaults to 1.
func (h *StreamsHost) ConstructorTransformStream(writableHWM, readableHWM float64) (resource.Handle, resource.Handle, resource.Handle, error) {
	if writableHWM <= 0 {
		writableHWM = 1
	}
	ts := streams.NewTransformStream(h.loop, streams.Transformer{},
		streams.CountStrategy(writableHWM), streams.CountStrategy(readableHWM))

	th, err := h.resources.Insert(KindTransform, ts)
	if err != nil {
		return 0, 0, 0, err
	}
	wh, err := h.resources.Insert(KindWritable, ts.Writable())
	if err != nil {
		h.resources.Remove(th)
		return 0, 0, 0, err
	}
	rh, err := h.resources.Insert(KindReadable, ts.Readable())
	if err != nil {
		h.resources.Remove(th)
		h.resources.Remove(wh)
		return 0, 0, 0, err
	}
	return th, wh, rh, nil
}

func (h *StreamsHost) MethodReadableGetReader(stream resource.Handle) (resource.Handle, error) {
	s, err := h.readable(stream)
	if err != nil {
		return 0, err
	}
	r, err := s.GetReader()
	if err != nil {
		return 0, err
	}
	rh, err := h.resources.Insert(KindReader, r)
	if err != nil {
		_ = r.ReleaseLock()
		return 0, err
	}
	return rh, nil
}

func (h *StreamsHost) MethodReadableLocked(stream resource.Handle) (bool, error) {
	s, err := h.readable(stream)
	if err != nil {
		return false, err
	}
	return s.Locked(), nil
}

func (h *StreamsHost) MethodReadableCancel(stream resource.Handle, reason string, token uint64) error {
	s, err := h.readable(stream)
	if err != nil {
		return err
	}
	h.settle(token, s.Cancel(errors.Stream(errors.KindCancelled, reason, nil)))
	return nil
}

func (h *StreamsHost) MethodReadableTee(stream resource.Handle) (resource.Handle, resource.Handle, error) {
	s, err := h.readable(stream)
	if err != nil {
		return 0, 0, err
	}
	a, b, err := s.Tee()
	if err != nil {
		return 0, 0, err
	}
	ah, err := h.resources.Insert(KindReadable, a)
	if err != nil {
		return 0, 0, err
	}
	bh, err := h.resources.Insert(KindReadable, b)
	if err != nil {
		h.resources.Remove(ah)
		return 0, 0, err
	}
	return ah, bh, nil
}

// MethodReadablePipeTo pipes src into dst. signal may be 0 for none; the
// pipe outcome arrives through the completer under token.
func (h *StreamsHost) MethodReadablePipeTo(src, dst resource.Handle, preventClose, preventAbort, preventCancel bool, signal resource.Handle, token uint64) error {
	s, err := h.readable(src)
	if err != nil {
		return err
	}
	d, err := h.writable(dst)
	if err != nil {
		return err
	}
	opts := &streams.PipeOptions{
		PreventClose:  preventClose,
		PreventAbort:  preventAbort,
		PreventCancel: preventCancel,
	}
	if signal != 0 {
		ac, err := h.controller(signal)
		if err != nil {
			return err
		}
		opts.Signal = ac.Signal()
	}
	h.settle(token, s.PipeTo(d, opts))
	return nil
}

func (h *StreamsHost) ResourceDropReadable(stream resource.Handle) {
	h.resources.Remove(stream)
}

// MethodReaderRead requests the next chunk. The completion value is a
// streams.ReadResult; Done reports end of stream.
func (h *StreamsHost) MethodReaderRead(reader resource.Handle, token uint64) error {
	r, err := h.reader(reader)
	if err != nil {
		return err
	}
	r.Read().Then(func(res streams.ReadResult, err error) {
		h.complete.Complete(token, res, err)
	})
	return nil
}

func (h *StreamsHost) MethodReaderCancel(reader resource.Handle, reason string, token uint64) error {
	r, err := h.reader(reader)
	if err != nil {
		return err
	}
	h.settle(token, r.Cancel(errors.Stream(errors.KindCancelled, reason, nil)))
	return nil
}

func (h *StreamsHost) MethodReaderRelease(reader resource.Handle) error {
	r, err := h.reader(reader)
	if err != nil {
		return err
	}
	h.resources.Remove(reader)
	return r.ReleaseLock()
}

func (h *StreamsHost) ResourceDropReader(reader resource.Handle) {
	if r, ok := h.resources.Remove(reader); ok {
		_ = r.(*streams.Reader).ReleaseLock()
	}
}

func (h *StreamsHost) MethodWritableGetWriter(stream resource.Handle) (resource.Handle, error) {
	s, err := h.writable(stream)
	if err != nil {
		return 0, err
	}
	w, err := s.GetWriter()
	if err != nil {
		return 0, err
	}
	wh, err := h.resources.Insert(KindWriter, w)
	if err != nil {
		w.ReleaseLock()
		return 0, err
	}
	return wh, nil
}

func (h *StreamsHost) MethodWritableLocked(stream resource.Handle) (bool, error) {
	s, err := h.writable(stream)
	if err != nil {
		return false, err
	}
	return s.Locked(), nil
}

func (h *StreamsHost) MethodWritableAbort(stream resource.Handle, reason string, token uint64) error {
	s, err := h.writable(stream)
	if err != nil {
		return err
	}
	h.settle(token, s.Abort(errors.Stream(errors.KindCancelled, reason, nil)))
	return nil
}

func (h *StreamsHost) ResourceDropWritable(stream resource.Handle) {
	h.resources.Remove(stream)
}

func (h *StreamsHost) MethodWriterWrite(writer resource.Handle, chunk []byte, token uint64) error {
	w, err := h.writer(writer)
	if err != nil {
		return err
	}
	h.settle(token, w.Write(chunk))
	return nil
}

func (h *StreamsHost) MethodWriterClose(writer resource.Handle, token uint64) error {
	w, err := h.writer(writer)
	if err != nil {
		return err
	}
	h.settle(token, w.Close())
	return nil
}

func (h *StreamsHost) MethodWriterAbort(writer resource.Handle, reason string, token uint64) error {
	w, err := h.writer(writer)
	if err != nil {
		return err
	}
	h.settle(token, w.Abort(errors.Stream(errors.KindCancelled, reason, nil)))
	return nil
}

func (h *StreamsHost) MethodWriterReady(writer resource.Handle, token uint64) error {
	w, err := h.writer(writer)
	if err != nil {
		return err
	}
	h.settle(token, w.Ready())
	return nil
}

func (h *StreamsHost) MethodWriterDesiredSize(writer resource.Handle) (float64, error) {
	w, err := h.writer(writer)
	if err != nil {
		return 0, err
	}
	return w.DesiredSize(), nil
}

func (h *StreamsHost) MethodWriterRelease(writer resource.Handle) error {
	w, err := h.writer(writer)
	if err != nil {
		return err
	}
	h.resources.Remove(writer)
	w.ReleaseLock()
	return nil
}

func (h *StreamsHost) ResourceDropWriter(writer resource.Handle) {
	if w, ok := h.resources.Remove(writer); ok {
		w.(*streams.Writer).ReleaseLock()
	}
}

func (h *StreamsHost) ResourceDropTransform(transform resource.Handle) {
	h.resources.Remove(transform)
}

// settle forwards a void promise's outcome to the completer.
func (h *StreamsHost) settle(token uint64, p *sched.Promise[sched.Void]) {
	p.Then(func(_ sched.Void, err error) {
		h.complete.Complete(token, nil, err)
	})
}

func (h *StreamsHost) readable(handle resource.Handle) (*streams.ReadableStream, error) {
	v, ok := h.resources.GetKinded(handle, KindReadable)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not a readable stream handle")
	}
	return v.(*streams.ReadableStream), nil
}

func (h *StreamsHost) writable(handle resource.Handle) (*streams.WritableStream, error) {
	v, ok := h.resources.GetKinded(handle, KindWritable)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not a writable stream handle")
	}
	return v.(*streams.WritableStream), nil
}

func (h *StreamsHost) reader(handle resource.Handle) (*streams.Reader, error) {
	v, ok := h.resources.GetKinded(handle, KindReader)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not a reader handle")
	}
	return v.(*streams.Reader), nil
}

func (h *StreamsHost) writer(handle resource.Handle) (*streams.Writer, error) {
	v, ok := h.resources.GetKinded(handle, KindWriter)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not a writer handle")
	}
	return v.(*streams.Writer), nil
}

func (h *StreamsHost) controller(handle resource.Handle) (*sched.AbortController, error) {
	v, ok := h.resources.GetKinded(handle, KindAbortController)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not an abort controller handle")
	}
	return v.(*sched.AbortController), nil
}
