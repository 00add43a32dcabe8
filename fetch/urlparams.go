package fetch

import (
	"net/url"
	"strings"
)

type paramPair struct {
	name  string
	value string
}

// URLSearchParams is an ordered multimap of form parameters. Unlike
// net/url.Values it preserves append order, which the encoded body must
// reproduce exactly.
type URLSearchParams struct {
	pairs []paramPair
}

// NewURLSearchParams builds an empty parameter set.
func NewURLSearchParams() *URLSearchParams {
	return &URLSearchParams{}
}

// ParseURLSearchParams decodes an application/x-www-form-urlencoded string,
// preserving pair order. Malformed escapes fail the whole parse.
func ParseURLSearchParams(encoded string) (*URLSearchParams, error) {
	p := NewURLSearchParams()
	for _, field := range strings.Split(encoded, "&") {
		if field == "" {
			continue
		}
		name, value, _ := strings.Cut(field, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, err
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, err
		}
		p.Append(n, v)
	}
	return p, nil
}

// Append adds a pair at the end.
func (p *URLSearchParams) Append(name, value string) {
	p.pairs = append(p.pairs, paramPair{name: name, value: value})
}

// Set replaces the first pair named name and drops the rest; appends when
// absent.
func (p *URLSearchParams) Set(name, value string) {
	out := p.pairs[:0]
	replaced := false
	for _, pair := range p.pairs {
		if pair.name != name {
			out = append(out, pair)
			continue
		}
		if !replaced {
			out = append(out, paramPair{name: name, value: value})
			replaced = true
		}
	}
	p.pairs = out
	if !replaced {
		p.Append(name, value)
	}
}

// Get returns the first value for name, or "".
func (p *URLSearchParams) Get(name string) string {
	for _, pair := range p.pairs {
		if pair.name == name {
			return pair.value
		}
	}
	return ""
}

// GetAll returns every value for name in order.
func (p *URLSearchParams) GetAll(name string) []string {
	var out []string
	for _, pair := range p.pairs {
		if pair.name == name {
			out = append(out, pair.value)
		}
	}
	return out
}

// Has reports whether name is present.
func (p *URLSearchParams) Has(name string) bool {
	for _, pair := range p.pairs {
		if pair.name == name {
			return true
		}
	}
	return false
}

// Delete removes every pair named name.
func (p *URLSearchParams) Delete(name string) {
	out := p.pairs[:0]
	for _, pair := range p.pairs {
		if pair.name != name {
			out = append(out, pair)
		}
	}
	p.pairs = out
}

// Len returns the number of pairs.
func (p *URLSearchParams) Len() int { return len(p.pairs) }

// Encode renders the pairs as application/x-www-form-urlencoded in append
// order.
func (p *URLSearchParams) Encode() string {
	var b strings.Builder
	for i, pair := range p.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.value))
	}
	return b.String()
}

// Clone returns an independent copy.
func (p *URLSearchParams) Clone() *URLSearchParams {
	return &URLSearchParams{pairs: append([]paramPair(nil), p.pairs...)}
}
