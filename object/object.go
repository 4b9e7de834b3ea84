// Package object provides the value model stored in a vmgc heap.
//
// A Value is a small tagged union. Null, booleans and numbers are carried
// inline and copied by value. Strings, lists, maps and host objects live in
// the heap and a Value refers to them by allocation ID, so two such values
// are equal only when they name the same allocation.
//
// Object bodies stored in the heap implement Traceable. The collector calls
// Trace to discover every reference a body embeds:
//
//	func (f *Frame) Trace(v object.Visitor) {
//		v.VisitValue(f.result)
//		for _, arg := range f.args {
//			v.VisitValue(arg)
//		}
//	}
//
// A Trace implementation that omits a live reference lets the collector free
// the referent while it is still in use. This is not detected at runtime.
package object

import "fmt"

// Type is the runtime tag of a value or heap allocation.
type Type uint8

// Type constants
const (
	NULL Type = iota
	BOOL
	NUMBER
	STRING
	LIST
	MAP
	HOST
)

// String returns the lowercase name of the type.
func (t Type) String() string {
	switch t {
	case NULL:
		return "null"
	case BOOL:
		return "bool"
	case NUMBER:
		return "number"
	case STRING:
		return "string"
	case LIST:
		return "list"
	case MAP:
		return "map"
	case HOST:
		return "host"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// IsHeapKind reports whether values of this type refer to a heap allocation
// rather than carrying their payload inline.
func (t Type) IsHeapKind() bool {
	switch t {
	case STRING, LIST, MAP, HOST:
		return true
	default:
		return false
	}
}

// ID identifies one heap allocation. The zero ID never names an allocation.
type ID uint64

// NoID is the zero ID.
const NoID ID = 0

func (id ID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// ValueSize is the number of bytes charged for one Value slot stored inside
// a container.
const ValueSize = 16

// Visitor receives the references reported by a Trace call.
type Visitor interface {
	// VisitValue reports a stored value. Inline values are ignored.
	VisitValue(v Value)

	// VisitRef reports a reference to the allocation with the given ID.
	// NoID is ignored.
	VisitRef(id ID)
}

// Traceable is implemented by every object body stored in a heap.
type Traceable interface {
	// Size returns the payload size in bytes used for heap accounting. It
	// excludes the per-allocation header.
	Size() int

	// Trace reports every reference embedded in the body.
	Trace(v Visitor)
}

// Typed is implemented by the built-in bodies to report their runtime tag.
// Bodies that do not implement it are host objects.
type Typed interface {
	Type() Type
}

// Finalizer is implemented by bodies that own resources outside the heap.
// Finalize is called exactly once, when the collector frees the allocation
// or when the heap is closed.
type Finalizer interface {
	Finalize() error
}

// TypeOf returns the runtime tag a heap assigns to the given body.
func TypeOf(body Traceable) Type {
	if t, ok := body.(Typed); ok {
		return t.Type()
	}
	return HOST
}

// TraceValues reports each of the given values to the visitor.
func TraceValues(v Visitor, values ...Value) {
	for _, value := range values {
		v.VisitValue(value)
	}
}
