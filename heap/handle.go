package heap

import (
	"fmt"

	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
)

// LocalHandle is a rooted reference to a heap allocation, valid while the
// scope that minted it is open. The referent is never collected before the
// scope closes, however many collections run in between.
//
// Using a LocalHandle after its scope closed is a programming error and
// panics with an *errz.Error of kind ErrKindStaleHandle.
type LocalHandle[T object.Traceable] struct {
	scope *HandleScope
	id    object.ID
	typ   object.Type
}

// Get returns the body of the referenced allocation.
func (l LocalHandle[T]) Get() T {
	s, err := l.checkedScope()
	if err != nil {
		panic(err)
	}
	hdr, err := s.heap.lookup(l.id)
	if err != nil {
		panic(err)
	}
	return hdr.body.(T)
}

// ID returns the identity of the referenced allocation.
func (l LocalHandle[T]) ID() object.ID {
	return l.id
}

// Type returns the runtime tag of the referenced allocation.
func (l LocalHandle[T]) Type() object.Type {
	return l.typ
}

// Scope returns the scope that roots the handle.
func (l LocalHandle[T]) Scope() *HandleScope {
	return l.scope
}

// IsValid reports whether the handle may still be used: its scope is open
// and its referent is live. A referent can be gone while the scope is open
// only after CollectFrom was given a set of scopes that left it out.
func (l LocalHandle[T]) IsValid() bool {
	s, err := l.checkedScope()
	return err == nil && s.heap.Contains(l.id)
}

// Value returns the handle as a storable value. Allocated nulls, booleans and
// numbers yield their inline value; every other type yields a reference.
func (l LocalHandle[T]) Value() object.Value {
	if l.typ.IsHeapKind() {
		if _, err := l.checkedScope(); err != nil {
			panic(err)
		}
		return object.NewRef(l.typ, l.id)
	}
	switch body := any(l.Get()).(type) {
	case *object.Bool:
		return body.Value()
	case *object.Number:
		return body.Value()
	default:
		return object.Null
	}
}

// AsHeapHandle demotes the handle to an embeddable reference. The result is
// not a root: it keeps its referent alive only while the object it is stored
// in is itself reachable and reports it from Trace.
func (l LocalHandle[T]) AsHeapHandle() HeapHandle[T] {
	if _, err := l.checkedScope(); err != nil {
		panic(err)
	}
	return HeapHandle[T]{id: l.id, typ: l.typ}
}

// Untyped returns the same handle without its static body type.
func (l LocalHandle[T]) Untyped() LocalHandle[object.Traceable] {
	return LocalHandle[object.Traceable]{scope: l.scope, id: l.id, typ: l.typ}
}

func (l LocalHandle[T]) String() string {
	return fmt.Sprintf("local(%s%s)", l.typ, l.id)
}

func (l LocalHandle[T]) checkedScope() (*HandleScope, error) {
	if l.scope == nil {
		return nil, errz.New(errz.ErrKindInvalidHandle, "zero LocalHandle")
	}
	if l.scope.closed {
		return nil, errz.Errorf(errz.ErrKindStaleHandle,
			"%s%s used after its scope closed", l.typ, l.id)
	}
	return l.scope, nil
}

func retype[T object.Traceable](l LocalHandle[object.Traceable]) LocalHandle[T] {
	return LocalHandle[T]{scope: l.scope, id: l.id, typ: l.typ}
}

// HeapHandle is an unrooted, typed reference meant to be embedded in the body
// of another heap object. Bodies that hold HeapHandles must report them from
// Trace, for example by calling the handle's Trace method.
//
// The heap does not check where a HeapHandle is stored; a HeapHandle kept
// anywhere the collector cannot see may dangle after the next collection.
type HeapHandle[T object.Traceable] struct {
	id  object.ID
	typ object.Type
}

// ID returns the identity of the referenced allocation.
func (r HeapHandle[T]) ID() object.ID {
	return r.id
}

// Type returns the runtime tag of the referenced allocation.
func (r HeapHandle[T]) Type() object.Type {
	return r.typ
}

// IsNil reports whether the handle refers to nothing.
func (r HeapHandle[T]) IsNil() bool {
	return r.id == object.NoID
}

// Trace reports the reference to v.
func (r HeapHandle[T]) Trace(v object.Visitor) {
	v.VisitRef(r.id)
}

func (r HeapHandle[T]) String() string {
	if r.IsNil() {
		return "heap(nil)"
	}
	return fmt.Sprintf("heap(%s%s)", r.typ, r.id)
}

// GlobalHandle is a root that is independent of any scope. It keeps its
// referent alive until Release is called or the heap is closed.
type GlobalHandle[T object.Traceable] struct {
	heap *Heap
	key  uint64
	id   object.ID
	typ  object.Type
}

// NewGlobal registers a global root for the referent of l.
func NewGlobal[T object.Traceable](l LocalHandle[T]) (*GlobalHandle[T], error) {
	s, err := l.checkedScope()
	if err != nil {
		return nil, err
	}
	h := s.heap
	if err := h.usable(); err != nil {
		return nil, err
	}
	h.nextGlobal++
	h.globals[h.nextGlobal] = l.id
	return &GlobalHandle[T]{heap: h, key: h.nextGlobal, id: l.id, typ: l.typ}, nil
}

// Get returns the body of the referenced allocation. It panics if the handle
// was released.
func (g *GlobalHandle[T]) Get() T {
	if !g.Valid() {
		panic(errz.Errorf(errz.ErrKindStaleHandle, "global %s%s used after release", g.typ, g.id))
	}
	hdr, err := g.heap.lookup(g.id)
	if err != nil {
		panic(err)
	}
	return hdr.body.(T)
}

// ID returns the identity of the referenced allocation.
func (g *GlobalHandle[T]) ID() object.ID {
	return g.id
}

// Valid reports whether the handle is still registered with its heap.
func (g *GlobalHandle[T]) Valid() bool {
	if g.heap == nil {
		return false
	}
	_, ok := g.heap.globals[g.key]
	return ok
}

// Local roots the referent in s and returns a LocalHandle for it.
func (g *GlobalHandle[T]) Local(s *HandleScope) (LocalHandle[T], error) {
	if !g.Valid() {
		return LocalHandle[T]{}, errz.Errorf(errz.ErrKindStaleHandle, "global %s%s used after release", g.typ, g.id)
	}
	return FromHeap(s, HeapHandle[T]{id: g.id, typ: g.typ})
}

// Release unregisters the root. The referent becomes collectable unless it
// is reachable some other way. Release is idempotent.
func (g *GlobalHandle[T]) Release() {
	if g.heap == nil {
		return
	}
	delete(g.heap.globals, g.key)
	g.heap = nil
}
