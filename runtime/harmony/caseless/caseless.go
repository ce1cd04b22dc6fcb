// Package caseless provides a small generic map with case-insensitive string
// keys. The engine keys vars, artifacts, metadata, recipient sets, and
// idempotency indexes case-insensitively while preserving the caller's
// original key casing for display and persistence.
package caseless

import (
	"sort"
	"strings"
)

// Map is a string-keyed map whose lookups fold case. The original casing of
// the first writer for a given folded key is preserved until the entry is
// deleted. The zero value is not usable; construct via New or FromMap.
type Map[V any] struct {
	names  map[string]string // folded key -> original casing
	values map[string]V      // folded key -> value
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{
		names:  make(map[string]string),
		values: make(map[string]V),
	}
}

// FromMap returns a Map seeded with the entries of src. Later duplicate keys
// differing only by case overwrite earlier ones.
func FromMap[V any](src map[string]V) *Map[V] {
	m := New[V]()
	for k, v := range src {
		m.Set(k, v)
	}
	return m
}

func fold(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

// Set stores value under key. An existing entry whose key differs only by
// case is overwritten; its original casing is retained.
func (m *Map[V]) Set(key string, value V) {
	f := fold(key)
	if _, ok := m.names[f]; !ok {
		m.names[f] = key
	}
	m.values[f] = value
}

// Get returns the value stored under key, folding case.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.values[fold(key)]
	return v, ok
}

// Has reports whether key is present, folding case.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.values[fold(key)]
	return ok
}

// Delete removes the entry stored under key, folding case.
func (m *Map[V]) Delete(key string) {
	f := fold(key)
	delete(m.names, f)
	delete(m.values, f)
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return len(m.values) }

// Keys returns the original-cased keys in sorted (folded) order.
func (m *Map[V]) Keys() []string {
	folded := make([]string, 0, len(m.names))
	for f := range m.names {
		folded = append(folded, f)
	}
	sort.Strings(folded)
	keys := make([]string, len(folded))
	for i, f := range folded {
		keys[i] = m.names[f]
	}
	return keys
}

// Snapshot returns a plain map keyed by the original casings. Mutating the
// returned map does not affect the receiver.
func (m *Map[V]) Snapshot() map[string]V {
	out := make(map[string]V, len(m.values))
	for f, v := range m.values {
		out[m.names[f]] = v
	}
	return out
}

// Merge sets every entry of src on the receiver, folding case.
func (m *Map[V]) Merge(src map[string]V) {
	for k, v := range src {
		m.Set(k, v)
	}
}

// Clone returns a shallow copy of the receiver. Values are copied by
// assignment; callers holding reference values share them across clones.
func (m *Map[V]) Clone() *Map[V] {
	out := New[V]()
	for f, v := range m.values {
		out.names[f] = m.names[f]
		out.values[f] = v
	}
	return out
}
