package fetch

// formEntry is one field of a FormData. Exactly one of value/blob is used.
type formEntry struct {
	name     string
	value    string
	blob     *Blob
	filename string
}

// FormData is an ordered multipart form. String fields hold a plain value;
// file fields hold a Blob and a filename and are streamed, not buffered,
// when the form is encoded.
type FormData struct {
	entries []formEntry
}

// NewFormData builds an empty form.
func NewFormData() *FormData {
	return &FormData{}
}

// Append adds a text field.
func (f *FormData) Append(name, value string) {
	f.entries = append(f.entries, formEntry{name: name, value: value})
}

// AppendFile adds a file field backed by blob. An empty filename defaults
// to "blob", matching the web form-data behavior.
func (f *FormData) AppendFile(name string, blob *Blob, filename string) {
	if filename == "" {
		filename = "blob"
	}
	f.entries = append(f.entries, formEntry{name: name, blob: blob, filename: filename})
}

// Get returns the first text value for name, or "".
func (f *FormData) Get(name string) string {
	for _, e := range f.entries {
		if e.name == name && e.blob == nil {
			return e.value
		}
	}
	return ""
}

// GetFile returns the first file field for name, or nil.
func (f *FormData) GetFile(name string) *Blob {
	for _, e := range f.entries {
		if e.name == name && e.blob != nil {
			return e.blob
		}
	}
	return nil
}

// Has reports whether any field named name exists.
func (f *FormData) Has(name string) bool {
	for _, e := range f.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// Delete removes every field named name.
func (f *FormData) Delete(name string) {
	out := f.entries[:0]
	for _, e := range f.entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	f.entries = out
}

// Len returns the number of fields.
func (f *FormData) Len() int { return len(f.entries) }

// Clone returns an independent copy. Blobs are immutable and shared.
func (f *FormData) Clone() *FormData {
	return &FormData{entries: append([]formEntry(nil), f.entries...)}
}
