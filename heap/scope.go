package heap

import (
	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
)

// HandleScope is a stack-disciplined rooting region. Every LocalHandle minted
// through a scope is a collection root until the scope closes. Scopes nest to
// mirror the native call stack and must close in reverse order of creation.
type HandleScope struct {
	heap   *Heap
	parent *HandleScope
	depth  int
	slots  []object.ID

	// closing is set as soon as Close begins; the scope refuses to mint
	// handles from then on.
	closing bool
	closed  bool
}

// ScopeParent is implemented by the values a scope can be nested in: the
// heap itself and other scopes.
type ScopeParent interface {
	NewScope() *HandleScope
}

// NewScope opens a scope on top of the heap's scope stack.
func (h *Heap) NewScope() *HandleScope {
	var parent *HandleScope
	if n := len(h.scopes); n > 0 {
		parent = h.scopes[n-1]
	}
	return h.pushScope(parent)
}

// NewScope opens a scope nested in s. s must be the innermost open scope;
// opening a child anywhere else breaks the stack discipline and panics.
func (s *HandleScope) NewScope() *HandleScope {
	if s.closing {
		panic(errz.New(errz.ErrKindScopeClosed, "cannot open a scope inside a closed scope"))
	}
	if s.heap.innermost() != s {
		panic(errz.Errorf(errz.ErrKindScopeOrder,
			"scope at depth %d is not the innermost open scope", s.depth))
	}
	return s.heap.pushScope(s)
}

// WithScope opens a scope in parent, runs fn, and closes the scope on every
// exit path, including errors and panics.
func WithScope(parent ScopeParent, fn func(s *HandleScope) error) error {
	s := parent.NewScope()
	defer s.Close()
	return fn(s)
}

func (h *Heap) pushScope(parent *HandleScope) *HandleScope {
	s := &HandleScope{heap: h, parent: parent}
	if parent != nil {
		s.depth = parent.depth + 1
	}
	h.scopes = append(h.scopes, s)
	return s
}

func (h *Heap) popScope(s *HandleScope) {
	for i := len(h.scopes) - 1; i >= 0; i-- {
		if h.scopes[i] == s {
			h.scopes[i] = nil
			h.scopes = append(h.scopes[:i], h.scopes[i+1:]...)
			return
		}
	}
}

func (h *Heap) innermost() *HandleScope {
	if n := len(h.scopes); n > 0 {
		return h.scopes[n-1]
	}
	return nil
}

// Heap returns the heap the scope belongs to.
func (s *HandleScope) Heap() *Heap {
	return s.heap
}

// Parent returns the enclosing scope, or nil for a scope opened directly on
// the heap.
func (s *HandleScope) Parent() *HandleScope {
	return s.parent
}

// Depth returns the nesting depth; scopes opened on the heap have depth 0.
func (s *HandleScope) Depth() int {
	return s.depth
}

// Len returns the number of handles rooted in this scope.
func (s *HandleScope) Len() int {
	return len(s.slots)
}

// Closed reports whether the scope has been closed.
func (s *HandleScope) Closed() bool {
	return s.closed
}

// Close unroots every handle of the scope in one step. Any scope still open
// inside s is closed first, innermost first. Close is idempotent.
func (s *HandleScope) Close() {
	if s.closing {
		return
	}
	s.closing = true
	h := s.heap
	for {
		top := h.innermost()
		if top == nil || top == s || top.depth <= s.depth {
			break
		}
		h.logger.Warn().
			Int("depth", top.depth).
			Int("handles", len(top.slots)).
			Msg("closing scope left open by a nested region")
		top.Close()
	}
	h.popScope(s)
	s.slots = nil
	s.closed = true
}

// root registers id in the scope and returns a handle for it.
func (s *HandleScope) root(id object.ID, typ object.Type) (LocalHandle[object.Traceable], error) {
	if s.closing {
		return LocalHandle[object.Traceable]{}, errz.New(errz.ErrKindScopeClosed, "scope no longer accepts handles")
	}
	s.slots = append(s.slots, id)
	return LocalHandle[object.Traceable]{scope: s, id: id, typ: typ}, nil
}

// FromHeap promotes an embedded reference to a LocalHandle rooted in s for
// the rest of the scope's lifetime. The referent must still be live, which
// holds whenever the object that stored the reference is reachable.
func FromHeap[T object.Traceable](s *HandleScope, ref HeapHandle[T]) (LocalHandle[T], error) {
	if s.closing {
		return LocalHandle[T]{}, errz.New(errz.ErrKindScopeClosed, "scope no longer accepts handles")
	}
	hdr, err := s.heap.lookup(ref.id)
	if err != nil {
		return LocalHandle[T]{}, err
	}
	if _, ok := hdr.body.(T); !ok {
		return LocalHandle[T]{}, errz.Errorf(errz.ErrKindTypeMismatch, "%s%s is a %T", hdr.typ, hdr.id, hdr.body)
	}
	local, err := s.root(hdr.id, hdr.typ)
	if err != nil {
		return LocalHandle[T]{}, err
	}
	return retype[T](local), nil
}

// Escape roots the referent of l in the parent of its scope so it outlives
// the scope it was created in. This is how a native function hands a result
// back to its caller.
func Escape[T object.Traceable](l LocalHandle[T]) (LocalHandle[T], error) {
	s, err := l.checkedScope()
	if err != nil {
		return LocalHandle[T]{}, err
	}
	if s.parent == nil {
		return LocalHandle[T]{}, errz.New(errz.ErrKindScopeOrder, "scope has no parent to escape to")
	}
	local, err := s.parent.root(l.id, l.typ)
	if err != nil {
		return LocalHandle[T]{}, err
	}
	return retype[T](local), nil
}
