package fetch

import (
	"net/http"
	"strings"

	"github.com/wippyai/stream-runtime/errors"
	"golang.org/x/net/http/httpguts"
)

// Headers is an ordered, case-insensitive header multimap. Names are
// canonicalized on every operation; iteration follows first-insertion order.
type Headers struct {
	order []string
	m     map[string][]string
}

// NewHeaders builds an empty header set.
func NewHeaders() *Headers {
	return &Headers{m: make(map[string][]string)}
}

// HeadersFrom builds a header set from name/value pairs, failing on the
// first invalid one.
func HeadersFrom(pairs map[string][]string) (*Headers, error) {
	h := NewHeaders()
	for name, values := range pairs {
		for _, v := range values {
			if err := h.Append(name, v); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

func validate(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.Usage(errors.KindInvalidState, "invalid header name "+name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.Usage(errors.KindInvalidState, "invalid value for header "+name)
	}
	return nil
}

// Append adds a value without touching existing ones.
func (h *Headers) Append(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.m[key]; !ok {
		h.order = append(h.order, key)
	}
	h.m[key] = append(h.m[key], value)
	return nil
}

// Set replaces all values for name with value.
func (h *Headers) Set(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.m[key]; !ok {
		h.order = append(h.order, key)
	}
	h.m[key] = []string{value}
	return nil
}

// Get returns the comma-joined values for name, or "" when absent.
func (h *Headers) Get(name string) string {
	return strings.Join(h.m[http.CanonicalHeaderKey(name)], ", ")
}

// Values returns all values for name in insertion order.
func (h *Headers) Values(name string) []string {
	vs := h.m[http.CanonicalHeaderKey(name)]
	return append([]string(nil), vs...)
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.m[http.CanonicalHeaderKey(name)]
	return ok
}

// Delete removes every value for name.
func (h *Headers) Delete(name string) {
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.m[key]; !ok {
		return
	}
	delete(h.m, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Keys returns the canonical names in first-insertion order.
func (h *Headers) Keys() []string {
	return append([]string(nil), h.order...)
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	c := NewHeaders()
	c.order = append([]string(nil), h.order...)
	for k, vs := range h.m {
		c.m[k] = append([]string(nil), vs...)
	}
	return c
}

// headersFromWire wraps a transport-provided header map without validation;
// the values were already parsed off the wire.
func headersFromWire(m map[string][]string) *Headers {
	h := NewHeaders()
	for name, values := range m {
		key := http.CanonicalHeaderKey(name)
		if _, ok := h.m[key]; !ok {
			h.order = append(h.order, key)
		}
		h.m[key] = append(h.m[key], values...)
	}
	return h
}

// wire flattens the headers for the transport layer.
func (h *Headers) wire() map[string][]string {
	out := make(map[string][]string, len(h.m))
	for k, vs := range h.m {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
