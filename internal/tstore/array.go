package tstore

import "fmt"

// TSArray is a column of TS values. A nil entry is a missing value.
type TSArray struct {
	items []*TS
}

// NewArray wraps items as a TSArray. The slice is copied.
func NewArray(items []*TS) *TSArray {
	a := &TSArray{items: make([]*TS, len(items))}
	copy(a.items, items)
	return a
}

// Len returns the number of entries, missing ones included.
func (a *TSArray) Len() int { return len(a.items) }

// At returns entry i, which is nil when missing.
func (a *TSArray) At(i int) *TS { return a.items[i] }

// IsMissing reports whether entry i is missing.
func (a *TSArray) IsMissing(i int) bool { return a.items[i] == nil }

// Valid returns the number of non-missing entries.
func (a *TSArray) Valid() int {
	n := 0
	for _, ts := range a.items {
		if ts != nil {
			n++
		}
	}
	return n
}

// Append adds an entry. Pass nil for a missing value.
func (a *TSArray) Append(ts *TS) { a.items = append(a.items, ts) }

// Series is an ordered mapping from station id to TS, backed by a TSArray
// aligned with Keys.
type Series struct {
	name  string
	keys  []string
	pos   map[string]int
	array *TSArray
}

// NewSeries builds a Series. keys must be unique and aligned with array.
func NewSeries(name string, keys []string, array *TSArray) (*Series, error) {
	if len(keys) != array.Len() {
		return nil, fmt.Errorf("series %q: %d keys for %d values", name, len(keys), array.Len())
	}
	s := &Series{
		name:  name,
		keys:  make([]string, len(keys)),
		pos:   make(map[string]int, len(keys)),
		array: array,
	}
	copy(s.keys, keys)
	for i, k := range keys {
		if _, dup := s.pos[k]; dup {
			return nil, fmt.Errorf("series %q: duplicate key %q", name, k)
		}
		s.pos[k] = i
	}
	return s, nil
}

// Name returns the series name (the variable, for per-variable series).
func (s *Series) Name() string { return s.name }

// Len returns the number of entries.
func (s *Series) Len() int { return len(s.keys) }

// Keys returns the station ids in order.
func (s *Series) Keys() []string { return s.keys }

// Array returns the backing TSArray.
func (s *Series) Array() *TSArray { return s.array }

// Get returns the container for key.
func (s *Series) Get(key string) (*TS, bool) {
	i, ok := s.pos[key]
	if !ok {
		return nil, false
	}
	return s.array.At(i), true
}
