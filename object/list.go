package object

import (
	"bytes"
	"fmt"
	"strings"
)

// List is the heap body of an ordered sequence of values. The values may be
// of mixed types and may refer to other heap allocations.
//
// Lists owned by a heap should be mutated through the heap's container
// functions so that growth is charged against the heap's capacity.
type List struct {
	items []Value
}

func (ls *List) Type() Type {
	return LIST
}

func (ls *List) Size() int {
	return len(ls.items) * ValueSize
}

func (ls *List) Trace(v Visitor) {
	for _, item := range ls.items {
		v.VisitValue(item)
	}
}

// Values returns a copy of the list items.
func (ls *List) Values() []Value {
	return append([]Value(nil), ls.items...)
}

func (ls *List) Len() int {
	return len(ls.items)
}

// Get returns the item at index i.
func (ls *List) Get(i int) (Value, bool) {
	if i < 0 || i >= len(ls.items) {
		return Null, false
	}
	return ls.items[i], true
}

// Set replaces the item at index i.
func (ls *List) Set(i int, value Value) error {
	if i < 0 || i >= len(ls.items) {
		return fmt.Errorf("index out of range: %d (len %d)", i, len(ls.items))
	}
	ls.items[i] = value
	return nil
}

func (ls *List) Append(value Value) {
	ls.items = append(ls.items, value)
}

// Pop removes and returns the last item.
func (ls *List) Pop() (Value, bool) {
	n := len(ls.items)
	if n == 0 {
		return Null, false
	}
	item := ls.items[n-1]
	ls.items[n-1] = Null
	ls.items = ls.items[:n-1]
	return item, true
}

// Truncate shortens the list to n items.
func (ls *List) Truncate(n int) {
	if n < 0 || n >= len(ls.items) {
		return
	}
	for i := n; i < len(ls.items); i++ {
		ls.items[i] = Null
	}
	ls.items = ls.items[:n]
}

func (ls *List) Index(value Value) int {
	for i, item := range ls.items {
		if item.Equals(value) {
			return i
		}
	}
	return -1
}

func (ls *List) Inspect() string {
	var out bytes.Buffer
	items := make([]string, 0, len(ls.items))
	for _, e := range ls.items {
		items = append(items, e.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(items, ", "))
	out.WriteString("]")
	return out.String()
}

func (ls *List) String() string {
	return ls.Inspect()
}

func NewListBody(items []Value) *List {
	return &List{items: append([]Value(nil), items...)}
}
