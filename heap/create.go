package heap

import (
	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
)

// Create allocates body in the heap and returns a handle rooted in s. The
// runtime tag comes from the body: built-in bodies report their own type and
// every other body is a host object.
//
// Create fails with errz.ErrOutOfMemory when the body does not fit even after
// a collection, and with errz.ErrScopeClosed when s is closing.
func Create[T object.Traceable](s *HandleScope, body T) (LocalHandle[T], error) {
	local, err := create(s, body)
	if err != nil {
		return LocalHandle[T]{}, err
	}
	return retype[T](local), nil
}

func create(s *HandleScope, body object.Traceable) (LocalHandle[object.Traceable], error) {
	if s.closing {
		return LocalHandle[object.Traceable]{}, errz.New(errz.ErrKindScopeClosed, "scope no longer accepts handles")
	}
	hdr, err := s.heap.allocate(body)
	if err != nil {
		return LocalHandle[object.Traceable]{}, err
	}
	return s.root(hdr.id, hdr.typ)
}

// NewNull allocates a null.
func NewNull(s *HandleScope) (LocalHandle[*object.NullType], error) {
	return Create(s, &object.NullType{})
}

// NewBool allocates a boolean.
func NewBool(s *HandleScope, value bool) (LocalHandle[*object.Bool], error) {
	return Create(s, object.NewBoolBody(value))
}

// NewNumber allocates a number.
func NewNumber(s *HandleScope, value float64) (LocalHandle[*object.Number], error) {
	return Create(s, object.NewNumberBody(value))
}

// NewString allocates a string holding a copy of value.
func NewString(s *HandleScope, value string) (LocalHandle[*object.String], error) {
	return Create(s, object.NewStringBody(value))
}

// NewList allocates a list holding the given items. Reference items must
// name live allocations of this heap.
func NewList(s *HandleScope, items ...object.Value) (LocalHandle[*object.List], error) {
	return Create(s, object.NewListBody(items))
}

// NewMap allocates a map holding the given entries. Reference values must
// name live allocations of this heap.
func NewMap(s *HandleScope, entries map[string]object.Value) (LocalHandle[*object.Map], error) {
	return Create(s, object.NewMapBody(entries))
}

// NewHostObject allocates a host-defined object. Its Trace method must
// report every reference it embeds; if it implements object.Finalizer, the
// finalizer runs when the object is freed.
func NewHostObject[T object.Traceable](s *HandleScope, value T) (LocalHandle[T], error) {
	return Create(s, value)
}

// IsOfType reports whether the referent of l has body type T. It reports
// false, without panicking, for a handle that can no longer reach a live
// allocation.
func IsOfType[T object.Traceable, S object.Traceable](l LocalHandle[S]) bool {
	s, err := l.checkedScope()
	if err != nil {
		return false
	}
	hdr, ok := s.heap.objects[l.id]
	if !ok {
		return false
	}
	_, ok = hdr.body.(T)
	return ok
}

// TryDowncast narrows l to body type T. On a mismatch it returns false and
// leaves l untouched. On success the result refers to the same allocation
// and shares l's root.
func TryDowncast[T object.Traceable, S object.Traceable](l LocalHandle[S]) (LocalHandle[T], bool) {
	if !IsOfType[T](l) {
		return LocalHandle[T]{}, false
	}
	return LocalHandle[T]{scope: l.scope, id: l.id, typ: l.typ}, true
}
