package typeparam

import (
	"encoding/json"
	"sort"
)

// Map holds one parameter value of type T per particle type name. Entries
// are only ever added or replaced, never removed.
// Iteration via Types is deterministic (lexicographic), so sweeps that walk
// the map visit types in a stable order regardless of insertion order.
//
// The zero value is ready to use. Map is not safe for concurrent mutation.
type Map[T any] struct {
	values map[string]T
}

// New creates an empty per-type parameter map.
func New[T any]() *Map[T] {
	return &Map[T]{values: make(map[string]T)}
}

// Set stores the value for the given particle type, replacing any previous one.
func (m *Map[T]) Set(typeName string, value T) {
	if m.values == nil {
		m.values = make(map[string]T)
	}
	m.values[typeName] = value
}

// Get returns the value for the given particle type and whether it is present.
func (m *Map[T]) Get(typeName string) (T, bool) {
	v, ok := m.values[typeName]
	return v, ok
}

// Has reports whether a value is present for the given particle type.
func (m *Map[T]) Has(typeName string) bool {
	_, ok := m.values[typeName]
	return ok
}

// Len returns the number of particle types with a value.
func (m *Map[T]) Len() int {
	return len(m.values)
}

// Types returns all particle type names in lexicographic order.
func (m *Map[T]) Types() []string {
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a plain map copy of the current contents.
// Values are copied shallowly.
func (m *Map[T]) Snapshot() map[string]T {
	out := make(map[string]T, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the map as a flat JSON object keyed by type name.
func (m *Map[T]) MarshalJSON() ([]byte, error) {
	if m.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.values)
}

// UnmarshalJSON decodes a flat JSON object keyed by type name.
func (m *Map[T]) UnmarshalJSON(data []byte) error {
	values := make(map[string]T)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	m.values = values
	return nil
}
