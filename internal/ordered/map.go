// Package ordered provides a string-keyed map that marshals to a JSON object
// in insertion order.
package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Map is a string-keyed map that remembers insertion order
type Map[V any] struct {
	keys   []string
	values map[string]V
}

// NewMap creates an empty map
func NewMap[V any]() *Map[V] {
	return &Map[V]{values: make(map[string]V)}
}

// Set stores a value. A new key is appended; an existing key keeps its position.
func (m *Map[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (m *Map[V]) Keys() []string {
	return m.keys
}

// Len returns the number of entries
func (m *Map[V]) Len() int {
	return len(m.keys)
}

// MarshalJSON encodes the map as an object in insertion order.
func (m *Map[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping the key order of the input.
func (m *Map[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object")
	}

	m.keys = nil
	m.values = make(map[string]V)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		m.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
