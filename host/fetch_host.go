package host

import (
	"context"

	"github.com/wippyai/stream-runtime/errors"
	"github.com/wippyai/stream-runtime/fetch"
	"github.com/wippyai/stream-runtime/resource"
	"github.com/wippyai/stream-runtime/sched"
	"github.com/wippyai/stream-runtime/streams"
)

// FetchNamespace is the namespace the fetch host registers under.
const FetchNamespace = "runtime:fetch@1"

// FetchHost exposes abort controllers, fetch itself and response accessors
// to the embedding engine. All host functions must be called on the
// scheduler loop.
type FetchHost struct {
	loop      *sched.Loop
	resources *resource.Table
	client    *fetch.Client
	complete  Completer
}

// NewFetchHost creates a fetch host. A nil client gets the default net/http
// backed client.
func NewFetchHost(loop *sched.Loop, res *resource.Table, client *fetch.Client, c Completer) *FetchHost {
	if client == nil {
		client = fetch.NewClient(loop)
	}
	return &FetchHost{loop: loop, resources: res, client: client, complete: c}
}

// Namespace returns the registration namespace.
func (h *FetchHost) Namespace() string {
	return FetchNamespace
}

// Register returns the host function table.
func (h *FetchHost) Register() map[string]any {
	return map[string]any{
		"fetch": h.Fetch,
		// Abort controller methods
		"[constructor]abort-controller":             h.ConstructorAbortController,
		"[method]abort-controller.abort":            h.MethodAbortControllerAbort,
		"[method]abort-controller.signal-aborted":   h.MethodAbortControllerSignalAborted,
		"[resource-drop]abort-controller":           h.ResourceDropAbortController,
		// Response methods
		"[method]response.status":      h.MethodResponseStatus,
		"[method]response.status-text": h.MethodResponseStatusText,
		"[method]response.ok":          h.MethodResponseOk,
		"[method]response.url":         h.MethodResponseURL,
		"[method]response.redirected":  h.MethodResponseRedirected,
		"[method]response.headers":     h.MethodResponseHeaders,
		"[method]response.body":        h.MethodResponseBody,
		"[method]response.body-used":   h.MethodResponseBodyUsed,
		"[method]response.bytes":       h.MethodResponseBytes,
		"[method]response.text":        h.MethodResponseText,
		"[method]response.json":        h.MethodResponseJSON,
		"[resource-drop]response":      h.ResourceDropResponse,
	}
}

// FetchSpec carries the flattened request arguments across the host
// boundary. Exactly one of Body and BodyStream may be set; BodyStream is a
// readable stream handle and 0 means none. Controller is an abort
// controller handle, 0 for none.
type FetchSpec struct {
	Method     string
	URL        string
	Headers    map[string][]string
	Body       []byte
	BodyStream resource.Handle
	Redirect   string
	Controller resource.Handle
}

// Fetch starts a request. The completion value is a response handle.
func (h *FetchHost) Fetch(spec FetchSpec, token uint64) error {
	init := &fetch.RequestInit{
		Method:   spec.Method,
		Redirect: fetch.RedirectMode(spec.Redirect),
	}

	if spec.Headers != nil {
		headers, err := fetch.HeadersFrom(spec.Headers)
		if err != nil {
			return err
		}
		init.Headers = headers
	}

	switch {
	case spec.Body != nil && spec.BodyStream != 0:
		return errors.Usage(errors.KindInvalidState, "request cannot carry both a byte body and a stream body")
	case spec.Body != nil:
		init.Body = fetch.BytesBody(spec.Body)
	case spec.BodyStream != 0:
		v, ok := h.resources.GetKinded(spec.BodyStream, KindReadable)
		if !ok {
			return errors.Usage(errors.KindInvalidState, "not a readable stream handle")
		}
		init.Body = fetch.StreamBody(v.(*streams.ReadableStream))
	}

	if spec.Controller != 0 {
		ac, err := h.abortController(spec.Controller)
		if err != nil {
			return err
		}
		init.Signal = ac.Signal()
	}

	req, err := fetch.NewRequest(spec.URL, init)
	if err != nil {
		return err
	}

	h.client.Fetch(context.Background(), req).Then(func(res *fetch.Response, err error) {
		if err != nil {
			h.complete.Complete(token, nil, err)
			return
		}
		handle, err := h.resources.Insert(KindResponse, res)
		if err != nil {
			h.complete.Complete(token, nil, err)
			return
		}
		h.complete.Complete(token, handle, nil)
	})
	return nil
}

func (h *FetchHost) ConstructorAbortController() (resource.Handle, error) {
	return h.resources.Insert(KindAbortController, sched.NewAbortController(h.loop))
}

func (h *FetchHost) MethodAbortControllerAbort(controller resource.Handle, reason string) error {
	ac, err := h.abortController(controller)
	if err != nil {
		return err
	}
	ac.Abort(reason)
	return nil
}

func (h *FetchHost) MethodAbortControllerSignalAborted(controller resource.Handle) (bool, error) {
	ac, err := h.abortController(controller)
	if err != nil {
		return false, err
	}
	return ac.Signal().Aborted(), nil
}

func (h *FetchHost) ResourceDropAbortController(controller resource.Handle) {
	h.resources.Remove(controller)
}

func (h *FetchHost) MethodResponseStatus(response resource.Handle) (int, error) {
	res, err := h.response(response)
	if err != nil {
		return 0, err
	}
	return res.Status, nil
}

func (h *FetchHost) MethodResponseStatusText(response resource.Handle) (string, error) {
	res, err := h.response(response)
	if err != nil {
		return "", err
	}
	return res.StatusText, nil
}

func (h *FetchHost) MethodResponseOk(response resource.Handle) (bool, error) {
	res, err := h.response(response)
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}

func (h *FetchHost) MethodResponseURL(response resource.Handle) (string, error) {
	res, err := h.response(response)
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

func (h *FetchHost) MethodResponseRedirected(response resource.Handle) (bool, error) {
	res, err := h.response(response)
	if err != nil {
		return false, err
	}
	return res.Redirected, nil
}

func (h *FetchHost) MethodResponseHeaders(response resource.Handle) (map[string][]string, error) {
	res, err := h.response(response)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, name := range res.Headers.Keys() {
		out[name] = res.Headers.Values(name)
	}
	return out, nil
}

// MethodResponseBody registers the response body stream and returns its
// handle. The body is shared state: locking it through one handle locks it
// for all.
func (h *FetchHost) MethodResponseBody(response resource.Handle) (resource.Handle, error) {
	res, err := h.response(response)
	if err != nil {
		return 0, err
	}
	return h.resources.Insert(KindReadable, res.Body())
}

func (h *FetchHost) MethodResponseBodyUsed(response resource.Handle) (bool, error) {
	res, err := h.response(response)
	if err != nil {
		return false, err
	}
	return res.BodyUsed(), nil
}

func (h *FetchHost) MethodResponseBytes(response resource.Handle, token uint64) error {
	res, err := h.response(response)
	if err != nil {
		return err
	}
	res.Bytes().Then(func(b []byte, err error) {
		h.complete.Complete(token, b, err)
	})
	return nil
}

func (h *FetchHost) MethodResponseText(response resource.Handle, token uint64) error {
	res, err := h.response(response)
	if err != nil {
		return err
	}
	res.Text().Then(func(s string, err error) {
		h.complete.Complete(token, s, err)
	})
	return nil
}

func (h *FetchHost) MethodResponseJSON(response resource.Handle, token uint64) error {
	res, err := h.response(response)
	if err != nil {
		return err
	}
	res.JSON().Then(func(v any, err error) {
		h.complete.Complete(token, v, err)
	})
	return nil
}

func (h *FetchHost) ResourceDropResponse(response resource.Handle) {
	h.resources.Remove(response)
}

func (h *FetchHost) response(handle resource.Handle) (*fetch.Response, error) {
	v, ok := h.resources.GetKinded(handle, KindResponse)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not a response handle")
	}
	return v.(*fetch.Response), nil
}

func (h *FetchHost) abortController(handle resource.Handle) (*sched.AbortController, error) {
	v, ok := h.resources.GetKinded(handle, KindAbortController)
	if !ok {
		return nil, errors.Usage(errors.KindInvalidState, "not an abort controller handle")
	}
	return v.(*sched.AbortController), nil
}
