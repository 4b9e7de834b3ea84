package heap

import (
	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
)

// The functions below mutate heap-owned lists and maps. They validate
// every stored reference and keep the heap's byte accounting exact; growth
// follows the same collect-and-retry policy as allocation. Bodies mutated
// directly through Get skip the reference checks, and their size is charged
// at the next mutation made here.

// pending carries values that are about to be stored so they stay reachable
// if the mutation triggers a collection.
type pending []object.Value

func (p pending) Size() int {
	return len(p) * object.ValueSize
}

func (p pending) Trace(v object.Visitor) {
	object.TraceValues(v, p...)
}

func (h *Heap) checkValues(values []object.Value) error {
	for _, v := range values {
		if err := h.checkValue(v); err != nil {
			return err
		}
	}
	return nil
}

// mutable returns the header behind l after checking the heap accepts
// mutations. A stale handle panics, as it does for Get.
func mutable[T object.Traceable](l LocalHandle[T]) (*header, error) {
	s, err := l.checkedScope()
	if err != nil {
		panic(err)
	}
	if err := s.heap.usable(); err != nil {
		return nil, err
	}
	return s.heap.lookup(l.id)
}

// ListAppend appends values to the list.
func ListAppend(l LocalHandle[*object.List], values ...object.Value) error {
	hdr, err := mutable(l)
	if err != nil {
		return err
	}
	h := l.scope.heap
	if err := h.checkValues(values); err != nil {
		return err
	}
	if err := h.reserveFor(hdr, len(values)*object.ValueSize, pending(values)); err != nil {
		return err
	}
	list := hdr.body.(*object.List)
	for _, v := range values {
		list.Append(v)
	}
	h.settle(hdr)
	return nil
}

// ListSet replaces the item at index i.
func ListSet(l LocalHandle[*object.List], i int, value object.Value) error {
	hdr, err := mutable(l)
	if err != nil {
		return err
	}
	h := l.scope.heap
	if err := h.checkValue(value); err != nil {
		return err
	}
	if err := h.reserveFor(hdr, 0, pending{value}); err != nil {
		return err
	}
	defer h.settle(hdr)
	if err := hdr.body.(*object.List).Set(i, value); err != nil {
		return errz.New(errz.ErrKindInvalidHandle, err.Error())
	}
	return nil
}

// ListGet returns the item at index i.
func ListGet(l LocalHandle[*object.List], i int) (object.Value, bool) {
	return l.Get().Get(i)
}

// ListLen returns the number of items in the list.
func ListLen(l LocalHandle[*object.List]) int {
	return l.Get().Len()
}

// ListPop removes and returns the last item of the list.
func ListPop(l LocalHandle[*object.List]) (object.Value, bool, error) {
	hdr, err := mutable(l)
	if err != nil {
		return object.Null, false, err
	}
	h := l.scope.heap
	if err := h.reserveFor(hdr, -object.ValueSize, nil); err != nil {
		return object.Null, false, err
	}
	v, ok := hdr.body.(*object.List).Pop()
	h.settle(hdr)
	return v, ok, nil
}

// MapSet stores value under key.
func MapSet(m LocalHandle[*object.Map], key string, value object.Value) error {
	hdr, err := mutable(m)
	if err != nil {
		return err
	}
	h := m.scope.heap
	if err := h.checkValue(value); err != nil {
		return err
	}
	body := hdr.body.(*object.Map)
	growth := 0
	if _, exists := body.Get(key); !exists {
		growth = object.EntrySize(key)
	}
	if err := h.reserveFor(hdr, growth, pending{value}); err != nil {
		return err
	}
	body.Set(key, value)
	h.settle(hdr)
	return nil
}

// MapGet returns the value stored under key.
func MapGet(m LocalHandle[*object.Map], key string) (object.Value, bool) {
	return m.Get().Get(key)
}

// MapDelete removes key from the map and reports whether it was present.
func MapDelete(m LocalHandle[*object.Map], key string) (bool, error) {
	hdr, err := mutable(m)
	if err != nil {
		return false, err
	}
	h := m.scope.heap
	if err := h.reserveFor(hdr, -object.EntrySize(key), nil); err != nil {
		return false, err
	}
	deleted := hdr.body.(*object.Map).Delete(key)
	h.settle(hdr)
	return deleted, nil
}

// MapKeys returns the keys of the map, sorted.
func MapKeys(m LocalHandle[*object.Map]) []string {
	return m.Get().Keys()
}

// Deref roots the allocation a stored value refers to. Inline values have
// no allocation and yield false.
func Deref(s *HandleScope, v object.Value) (LocalHandle[object.Traceable], bool, error) {
	if !v.IsRef() {
		return LocalHandle[object.Traceable]{}, false, nil
	}
	if err := s.heap.checkValue(v); err != nil {
		return LocalHandle[object.Traceable]{}, false, err
	}
	local, err := FromHeap(s, HeapHandle[object.Traceable]{id: v.ID(), typ: v.Type()})
	if err != nil {
		return LocalHandle[object.Traceable]{}, false, err
	}
	return local, true, nil
}
