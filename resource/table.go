package resource

import (
	"sync"

	"github.com/wippyai/stream-runtime/errors"
)

// Handle is an opaque reference to an object in a Table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind tags the runtime type stored behind a handle, so host bindings can
// reject a reader handle where a writer is expected.
type Kind uint32

// Dropper is optionally implemented by values that need cleanup when their
// handle is removed or the table closes.
type Dropper interface {
	Drop()
}

type slot struct {
	value any
	kind  Kind
	live  bool
}

// Table maps handles to runtime objects. Safe for concurrent use; the
// embedding engine may resolve handles from its own thread while native
// completions drop them from another.
type Table struct {
	mu     sync.RWMutex
	slots  []slot
	free   []Handle
	closed bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		slots: make([]slot, 0, 64),
		free:  make([]Handle, 0, 16),
	}
}

// Insert stores value under a fresh handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, errors.Usage(errors.KindInvalidState, "resource table closed")
	}

	s := slot{value: value, kind: kind, live: true}
	if n := len(t.free); n > 0 {
		h := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[h-1] = s
		return h, nil
	}
	t.slots = append(t.slots, s)
	return Handle(len(t.slots)), nil
}

// Get resolves a handle to its value.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.lookup(h)
	if !ok {
		return nil, false
	}
	return s.value, true
}

// GetKinded resolves a handle only when it stores the expected kind.
func (t *Table) GetKinded(h Handle, kind Kind) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.lookup(h)
	if !ok || s.kind != kind {
		return nil, false
	}
	return s.value, true
}

// Kind returns the kind stored under h.
func (t *Table) Kind(h Handle) (Kind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.lookup(h)
	if !ok {
		return 0, false
	}
	return s.kind, true
}

// Remove drops a handle, running the value's Drop hook if present, and
// returns the removed value.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	s, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	value := s.value
	s.value = nil
	s.live = false
	t.free = append(t.free, h)
	t.mu.Unlock()

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	return value, true
}

// Len counts live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for i := range t.slots {
		if t.slots[i].live {
			n++
		}
	}
	return n
}

// Each visits every live handle until fn returns false.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.slots {
		if !t.slots[i].live {
			continue
		}
		if !fn(Handle(i+1), t.slots[i].kind, t.slots[i].value) {
			return
		}
	}
}

// Close drops every live handle and rejects further inserts. Idempotent.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	var dropped []any
	for i := range t.slots {
		if t.slots[i].live {
			dropped = append(dropped, t.slots[i].value)
			t.slots[i].live = false
			t.slots[i].value = nil
		}
	}
	t.slots = nil
	t.free = nil
	t.mu.Unlock()

	for _, v := range dropped {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
}

// lookup is the common bounds/liveness check. Callers hold t.mu.
func (t *Table) lookup(h Handle) (*slot, bool) {
	if h == 0 || int(h) > len(t.slots) {
		return nil, false
	}
	s := &t.slots[h-1]
	if !s.live {
		return nil, false
	}
	return s, true
}
