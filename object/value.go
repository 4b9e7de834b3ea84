package object

import (
	"math"
	"strconv"
)

// Value is a dynamically typed value. The zero Value is Null.
type Value struct {
	typ Type
	num float64
	ref ID
}

var (
	Null  = Value{typ: NULL}
	True  = Value{typ: BOOL, num: 1}
	False = Value{typ: BOOL}
)

// NewNumber returns a number value.
func NewNumber(f float64) Value {
	return Value{typ: NUMBER, num: f}
}

// NewBool returns a boolean value.
func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewRef returns a value referring to the heap allocation id of type t. It
// panics if t is not a heap kind.
func NewRef(t Type, id ID) Value {
	if !t.IsHeapKind() {
		panic("object: NewRef called with inline type " + t.String())
	}
	return Value{typ: t, ref: id}
}

// Type returns the runtime tag of the value.
func (v Value) Type() Type {
	return v.typ
}

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool {
	return v.typ == NULL
}

// IsRef reports whether the value refers to a heap allocation.
func (v Value) IsRef() bool {
	return v.typ.IsHeapKind() && v.ref != NoID
}

// ID returns the referenced allocation, or NoID for inline values.
func (v Value) ID() ID {
	if !v.typ.IsHeapKind() {
		return NoID
	}
	return v.ref
}

// AsNumber returns the number carried by the value.
func (v Value) AsNumber() (float64, bool) {
	if v.typ != NUMBER {
		return 0, false
	}
	return v.num, true
}

// AsBool returns the boolean carried by the value.
func (v Value) AsBool() (bool, bool) {
	if v.typ != BOOL {
		return false, false
	}
	return v.num != 0, true
}

// Equals compares inline values by content and heap values by identity.
func (v Value) Equals(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case NULL:
		return true
	case BOOL, NUMBER:
		return v.num == other.num
	default:
		return v.ref == other.ref
	}
}

// Hash returns a hash consistent with Equals.
func (v Value) Hash() uint64 {
	switch v.typ {
	case NULL:
		return 0
	case BOOL, NUMBER:
		f := v.num
		if f == 0 {
			// +0 and -0 are equal
			f = 0
		}
		return math.Float64bits(f) ^ uint64(v.typ)<<56
	default:
		return uint64(v.ref) ^ uint64(v.typ)<<56
	}
}

// Inspect returns a string representation of the value. Heap values print
// their type and allocation ID since their contents live in the heap.
func (v Value) Inspect() string {
	switch v.typ {
	case NULL:
		return "null"
	case BOOL:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case NUMBER:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	default:
		return "<" + v.typ.String() + v.ref.String() + ">"
	}
}

func (v Value) String() string {
	return v.Inspect()
}
