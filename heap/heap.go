// Package heap implements a fixed-capacity, mark-sweep garbage-collected heap
// for the values of a dynamic-language VM.
//
// Native code never holds raw references to heap objects. It opens a
// HandleScope, allocates through it and receives LocalHandles, which the
// collector treats as roots until the scope closes:
//
//	h, err := heap.New(1 << 20)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	err = heap.WithScope(h, func(s *heap.HandleScope) error {
//		name, err := heap.NewString(s, "hi")
//		if err != nil {
//			return err
//		}
//		_, err = heap.NewList(s, name.Value(), object.NewNumber(1))
//		return err
//	})
//
// References stored inside other objects are discovered through each body's
// Trace method. A Heap and its scopes must only be used from one goroutine.
package heap

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// State is the collector state of a heap.
type State uint8

const (
	Idle State = iota
	Marking
	Sweeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Marking:
		return "marking"
	case Sweeping:
		return "sweeping"
	default:
		return "unknown"
	}
}

// Stats holds cumulative counters for the lifetime of a heap.
type Stats struct {
	Allocations  int `json:"allocations"`
	Collections  int `json:"collections"`
	FreedObjects int `json:"freed_objects"`
	FreedBytes   int `json:"freed_bytes"`
	PeakUsed     int `json:"peak_used"`
}

// Heap owns every allocation made through its scopes.
type Heap struct {
	id       uuid.UUID
	capacity int
	used     int
	objects  map[object.ID]*header
	nextID   object.ID

	// Active scopes, innermost last. Scopes unregister themselves on Close.
	scopes []*HandleScope

	globals    map[uint64]object.ID
	nextGlobal uint64

	state         State
	closed        bool
	stressCollect bool
	stats         Stats

	logger   zerolog.Logger
	observer Observer
}

// New returns a heap that can hold at most capacity bytes of allocations,
// headers included. The heap never grows.
func New(capacity int, opts ...Option) (*Heap, error) {
	if capacity <= 0 {
		return nil, errz.Errorf(errz.ErrKindInvalidCapacity, "capacity must be positive (%d given)", capacity)
	}
	h := &Heap{
		id:       uuid.Must(uuid.NewV4()),
		capacity: capacity,
		objects:  map[object.ID]*header{},
		globals:  map[uint64]object.ID{},
		logger:   zerolog.Nop(),
		observer: NoOpObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = h.logger.With().Str("heap", h.id.String()).Logger()
	return h, nil
}

// ID returns the identity of this heap instance.
func (h *Heap) ID() uuid.UUID {
	return h.id
}

// Capacity returns the maximum number of bytes the heap may hold.
func (h *Heap) Capacity() int {
	return h.capacity
}

// Used returns the number of bytes currently allocated, headers included.
func (h *Heap) Used() int {
	return h.used
}

// Free returns the number of bytes still available.
func (h *Heap) Free() int {
	return h.capacity - h.used
}

// Len returns the number of allocations the heap currently holds.
func (h *Heap) Len() int {
	return len(h.objects)
}

// State returns the collector state.
func (h *Heap) State() State {
	return h.state
}

// Stats returns the cumulative counters of the heap.
func (h *Heap) Stats() Stats {
	return h.stats
}

// Closed reports whether Close has been called.
func (h *Heap) Closed() bool {
	return h.closed
}

// Contains reports whether id names a live allocation of this heap.
func (h *Heap) Contains(id object.ID) bool {
	_, ok := h.objects[id]
	return ok
}

// TypeOf returns the runtime tag of a live allocation.
func (h *Heap) TypeOf(id object.ID) (object.Type, bool) {
	hdr, ok := h.objects[id]
	if !ok {
		return object.NULL, false
	}
	return hdr.typ, true
}

// Roots returns the number of root slots currently held by active scopes and
// global handles.
func (h *Heap) Roots() int {
	n := len(h.globals)
	for _, s := range h.scopes {
		n += len(s.slots)
	}
	return n
}

// usable reports whether the heap accepts allocations and mutations.
func (h *Heap) usable() error {
	if h.closed {
		return errz.New(errz.ErrKindHeapClosed, "heap has been closed")
	}
	if h.state != Idle {
		return errz.Errorf(errz.ErrKindCollecting, "heap is %s", h.state)
	}
	return nil
}

// allocate charges body against the capacity and registers it under a new
// ID. The caller is responsible for rooting the result.
func (h *Heap) allocate(body object.Traceable) (*header, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	if err := h.checkReferences(body); err != nil {
		return nil, err
	}
	size := body.Size()
	if size < 0 {
		return nil, errz.Errorf(errz.ErrKindInvalidHandle, "%T reported negative size %d", body, size)
	}
	typ := object.TypeOf(body)
	if size > h.capacity-HeaderSize {
		return nil, errz.Errorf(errz.ErrKindOutOfMemory,
			"%s of %d bytes exceeds heap capacity %d", typ, size, h.capacity)
	}
	if h.stressCollect {
		h.collect(h.rootSet(nil), body, TriggerStress)
	}
	if err := h.reserve(HeaderSize+size, body, typ.String()); err != nil {
		return nil, err
	}
	h.nextID++
	hdr := &header{
		id:   h.nextID,
		typ:  typ,
		size: size,
		body: body,
	}
	h.objects[hdr.id] = hdr
	h.charge(hdr.allocSize())
	h.stats.Allocations++
	h.observer.OnAllocate(AllocateEvent{
		ID:   hdr.id,
		Type: hdr.typ,
		Size: hdr.allocSize(),
		Used: h.used,
	})
	return hdr, nil
}

// reserve makes sure n more bytes fit. When they don't, it runs one full
// collection and checks again. pending holds references that are about to
// be stored and must survive that collection.
func (h *Heap) reserve(n int, pending object.Traceable, what string) error {
	if n <= h.Free() {
		return nil
	}
	if n > h.capacity {
		return errz.Errorf(errz.ErrKindOutOfMemory,
			"%s needs %d bytes, more than the heap capacity %d", what, n, h.capacity)
	}
	h.collect(h.rootSet(nil), pending, TriggerPressure)
	if n <= h.Free() {
		return nil
	}
	return errz.Errorf(errz.ErrKindOutOfMemory,
		"%s needs %d bytes, %d of %d free after collection", what, n, h.Free(), h.capacity)
}

func (h *Heap) charge(n int) {
	h.used += n
	if h.used > h.stats.PeakUsed {
		h.stats.PeakUsed = h.used
	}
}

// reserveFor makes room before a mutation that changes the size of hdr's
// body by delta. Any change made directly on the body since it was last
// accounted is included, so the charge catches up with Size. pending is kept
// alive if a collection runs.
func (h *Heap) reserveFor(hdr *header, delta int, pending object.Traceable) error {
	what := hdr.typ.String() + hdr.id.String()
	size := hdr.body.Size()
	if size < 0 || size > h.capacity-HeaderSize {
		return errz.Errorf(errz.ErrKindOutOfMemory,
			"%s reports %d bytes, outside heap capacity %d", what, size, h.capacity)
	}
	need := size - hdr.size + delta
	if need <= 0 {
		return nil
	}
	return h.reserve(need, pending, "growing "+what)
}

// settle charges hdr for the current size of its body. It follows every
// mutation whose growth was reserved with reserveFor.
func (h *Heap) settle(hdr *header) {
	size := hdr.body.Size()
	h.charge(size - hdr.size)
	hdr.size = size
}

// lookup returns the header of a live allocation.
func (h *Heap) lookup(id object.ID) (*header, error) {
	hdr, ok := h.objects[id]
	if !ok {
		return nil, errz.Errorf(errz.ErrKindInvalidHandle, "no live allocation %s", id)
	}
	return hdr, nil
}

// checkValue verifies that a value about to be stored names a live
// allocation of the type it claims.
func (h *Heap) checkValue(v object.Value) error {
	if !v.Type().IsHeapKind() {
		return nil
	}
	if !v.IsRef() {
		return errz.Errorf(errz.ErrKindInvalidHandle, "%s value without an allocation", v.Type())
	}
	hdr, err := h.lookup(v.ID())
	if err != nil {
		return err
	}
	if hdr.typ != v.Type() {
		return errz.Errorf(errz.ErrKindInvalidHandle, "value %s refers to a %s", v, hdr.typ)
	}
	return nil
}

// checkReferences validates the values a built-in container body carries.
// Host bodies are not checked: their Trace contract is the host's
// responsibility.
func (h *Heap) checkReferences(body object.Traceable) error {
	switch body.(type) {
	case *object.List, *object.Map:
	default:
		return nil
	}
	c := &valueChecker{heap: h}
	body.Trace(c)
	return c.err
}

// Close releases every remaining allocation, running finalizers in
// allocation order, and closes any scopes still open. The heap cannot be
// used afterwards. Finalizer failures are returned together.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	if h.state != Idle {
		return errz.Errorf(errz.ErrKindCollecting, "cannot close heap while %s", h.state)
	}
	for len(h.scopes) > 0 {
		h.scopes[len(h.scopes)-1].Close()
	}
	h.globals = map[uint64]object.ID{}
	h.closed = true

	ids := make([]object.ID, 0, len(h.objects))
	for id := range h.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result *multierror.Error
	for _, id := range ids {
		if err := h.release(h.objects[id]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	h.logger.Debug().Int("objects", len(ids)).Msg("heap closed")
	return result.ErrorOrNil()
}

// release removes an allocation and runs its finalizer.
func (h *Heap) release(hdr *header) error {
	delete(h.objects, hdr.id)
	h.used -= hdr.allocSize()
	f, ok := hdr.body.(object.Finalizer)
	hdr.body = nil
	if !ok {
		return nil
	}
	if err := f.Finalize(); err != nil {
		return errz.Errorf(errz.ErrKindFinalizer, "finalizing %s%s", hdr.typ, hdr.id).WithCause(err)
	}
	return nil
}

func (h *Heap) String() string {
	return fmt.Sprintf("heap(%s, %d/%d bytes, %d objects)", h.id, h.used, h.capacity, len(h.objects))
}

// valueChecker validates every reference reported by a Trace call and keeps
// the first failure.
type valueChecker struct {
	heap *Heap
	err  error
}

func (c *valueChecker) VisitValue(v object.Value) {
	if c.err == nil {
		c.err = c.heap.checkValue(v)
	}
}

func (c *valueChecker) VisitRef(id object.ID) {
	if c.err == nil && id != object.NoID {
		_, c.err = c.heap.lookup(id)
	}
}
