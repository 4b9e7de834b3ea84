package object

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Map is the heap body of a string-keyed map of values. Iteration order is
// not significant; Keys returns the keys sorted for stable output.
//
// Maps owned by a heap should be mutated through the heap's container
// functions, which check stored references and charge growth up front.
type Map struct {
	items map[string]Value
}

func (m *Map) Type() Type {
	return MAP
}

func (m *Map) Size() int {
	size := 0
	for k := range m.items {
		size += EntrySize(k)
	}
	return size
}

// EntrySize returns the bytes charged for one map entry with the given key.
func EntrySize(key string) int {
	return len(key) + ValueSize
}

func (m *Map) Trace(v Visitor) {
	for _, item := range m.items {
		v.VisitValue(item)
	}
}

func (m *Map) Len() int {
	return len(m.items)
}

func (m *Map) Get(key string) (Value, bool) {
	value, ok := m.items[key]
	return value, ok
}

func (m *Map) Set(key string, value Value) {
	m.items[key] = value
}

func (m *Map) Delete(key string) bool {
	if _, ok := m.items[key]; !ok {
		return false
	}
	delete(m.items, key)
	return true
}

// Keys returns the map keys sorted.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Inspect() string {
	var out bytes.Buffer
	pairs := make([]string, 0, len(m.items))
	for _, k := range m.Keys() {
		pairs = append(pairs, fmt.Sprintf("%q: %s", k, m.items[k].Inspect()))
	}
	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ", "))
	out.WriteString("}")
	return out.String()
}

func (m *Map) String() string {
	return m.Inspect()
}

func NewMapBody(items map[string]Value) *Map {
	m := &Map{items: make(map[string]Value, len(items))}
	for k, v := range items {
		m.items[k] = v
	}
	return m
}
