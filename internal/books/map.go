package books

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Map is an insertion-ordered mapping from book identifier to BookDetail.
// Iteration order is the order books were added (or decoded), which decides
// the order odds-group peers are opened in. A nil *Map behaves as empty.
type Map struct {
	keys  []string
	items map[string]BookDetail
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{items: make(map[string]BookDetail)}
}

// Set adds or replaces a book. Replacing keeps the book's position.
func (m *Map) Set(book string, bd BookDetail) {
	if m.items == nil {
		m.items = make(map[string]BookDetail)
	}
	if _, ok := m.items[book]; !ok {
		m.keys = append(m.keys, book)
	}
	m.items[book] = bd
}

// Get returns the detail for book.
func (m *Map) Get(book string) (BookDetail, bool) {
	if m == nil {
		return BookDetail{}, false
	}
	bd, ok := m.items[book]
	return bd, ok
}

// Delete removes book if present.
func (m *Map) Delete(book string) {
	if m == nil {
		return
	}
	if _, ok := m.items[book]; !ok {
		return
	}
	delete(m.items, book)
	for i, k := range m.keys {
		if k == book {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of books.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the book identifiers in order.
func (m *Map) Keys() []string {
	if m == nil {
		return []string{}
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Each calls fn for every entry in order.
func (m *Map) Each(fn func(book string, bd BookDetail)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.items[k])
	}
}

// Entries returns the entries in order.
func (m *Map) Entries() []Named {
	out := make([]Named, 0, m.Len())
	m.Each(func(book string, bd BookDetail) {
		out = append(out, Named{Book: book, Detail: bd})
	})
	return out
}

// Clone returns an independent copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Each(out.Set)
	return out
}

// Equal reports whether both maps hold the same entries in the same order.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	a, b := m.Entries(), other.Entries()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.items[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the input.
// A duplicated key keeps its first position and its last value.
func (m *Map) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.items = make(map[string]BookDetail)

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("book details: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		book, ok := tok.(string)
		if !ok {
			return fmt.Errorf("book details: expected key, got %v", tok)
		}
		var bd BookDetail
		if err := dec.Decode(&bd); err != nil {
			return fmt.Errorf("book details: %q: %w", book, err)
		}
		m.Set(book, bd)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
