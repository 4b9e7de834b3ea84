package heap

import (
	"errors"
	"math"
	"testing"

	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/stretchr/testify/require"
)

// node is a host object that embeds a reference to another node and an
// arbitrary value, and optionally runs a callback when finalized.
type node struct {
	name       string
	next       HeapHandle[*node]
	item       object.Value
	onFinalize func() error
}

func (n *node) Size() int { return 8 }

func (n *node) Trace(v object.Visitor) {
	n.next.Trace(v)
	v.VisitValue(n.item)
}

func (n *node) Finalize() error {
	if n.onFinalize != nil {
		return n.onFinalize()
	}
	return nil
}

func newTestHeap(t *testing.T, capacity int, opts ...Option) *Heap {
	t.Helper()
	h, err := New(capacity, opts...)
	require.Nil(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func requirePanicKind(t *testing.T, kind errz.ErrorKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(*errz.Error)
		require.True(t, ok, "panic value %v is not an *errz.Error", r)
		require.Equal(t, kind, err.Kind)
	}()
	fn()
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		h, err := New(capacity)
		require.Nil(t, h)
		require.True(t, errors.Is(err, errz.ErrInvalidCapacity))
	}
}

func TestNewHeapIsEmpty(t *testing.T) {
	h := newTestHeap(t, 1024)
	require.Equal(t, 1024, h.Capacity())
	require.Equal(t, 0, h.Used())
	require.Equal(t, 1024, h.Free())
	require.Equal(t, 0, h.Len())
	require.Equal(t, Idle, h.State())
	require.NotEqual(t, "", h.ID().String())
}

func TestAllocationAccounting(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()

	str, err := NewString(s, "hi")
	require.Nil(t, err)
	require.Equal(t, 18, h.Used())

	list, err := NewList(s, object.NewNumber(1), object.NewNumber(2), object.NewNumber(3))
	require.Nil(t, err)
	require.Equal(t, 18+64, h.Used())

	m, err := NewMap(s, map[string]object.Value{"k": list.Value()})
	require.Nil(t, err)
	require.Equal(t, 115, h.Used())

	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 115, h.Used())
	require.Equal(t, "hi", str.Get().Value())
	require.Equal(t, 3, ListLen(list))
	v, ok := MapGet(m, "k")
	require.True(t, ok)
	require.True(t, v.Equals(list.Value()))

	s.Close()
	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 0, h.Used())
	require.Equal(t, 0, h.Len())
}

func TestPrimitiveSizes(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()
	defer s.Close()

	_, err := NewNull(s)
	require.Nil(t, err)
	require.Equal(t, HeaderSize, h.Used())

	b, err := NewBool(s, true)
	require.Nil(t, err)
	require.Equal(t, 2*HeaderSize+1, h.Used())
	require.True(t, b.Value().Equals(object.True))

	n, err := NewNumber(s, 2.5)
	require.Nil(t, err)
	require.Equal(t, 3*HeaderSize+1+8, h.Used())
	require.True(t, n.Value().Equals(object.NewNumber(2.5)))
}

func TestExactFillSucceeds(t *testing.T) {
	h := newTestHeap(t, 64)
	s := h.NewScope()
	defer s.Close()

	_, err := NewList(s, object.NewNumber(1), object.NewNumber(2), object.NewNumber(3))
	require.Nil(t, err)
	require.Equal(t, 64, h.Used())
	require.Equal(t, 0, h.Free())
	require.Equal(t, 0, h.Stats().Collections)
}

func TestOutOfMemoryAfterOneCollection(t *testing.T) {
	h := newTestHeap(t, 63)
	s := h.NewScope()
	defer s.Close()

	_, err := NewList(s, object.NewNumber(1), object.NewNumber(2), object.NewNumber(3))
	require.True(t, errors.Is(err, errz.ErrOutOfMemory))
	require.Equal(t, 1, h.Stats().Collections)
	require.Equal(t, 0, h.Used())
}

// sized is a host object that reports whatever size it is given.
type sized struct{ size int }

func (b *sized) Size() int { return b.size }

func (b *sized) Trace(object.Visitor) {}

func TestOversizedHostObjectIsRejected(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()
	defer s.Close()

	for _, size := range []int{math.MaxInt, math.MaxInt - HeaderSize + 1, 1024 - HeaderSize + 1} {
		_, err := NewHostObject(s, &sized{size: size})
		require.True(t, errors.Is(err, errz.ErrOutOfMemory), "size %d", size)
		require.Equal(t, 0, h.Used())
		require.Equal(t, 0, h.Len())
	}
	require.Equal(t, 0, h.Stats().Collections)

	_, err := NewHostObject(s, &sized{size: -1})
	require.True(t, errors.Is(err, errz.ErrInvalidHandle))

	n, err := NewHostObject(s, &sized{size: 1024 - HeaderSize})
	require.Nil(t, err)
	require.Equal(t, 1024, h.Used())
	require.LessOrEqual(t, h.Used(), h.Capacity())
	require.Equal(t, 1, h.Len())
	require.True(t, n.IsValid())
}

func TestOutOfMemoryWhenRootsFillHeap(t *testing.T) {
	h := newTestHeap(t, 64)
	s := h.NewScope()
	defer s.Close()

	_, err := NewString(s, "0123456789abcdef0123456789abcdef")
	require.Nil(t, err)
	_, err = NewString(s, "0123456789abcdef")
	require.True(t, errors.Is(err, errz.ErrOutOfMemory))
	require.Equal(t, 48, h.Used())
	require.Equal(t, 1, h.Stats().Collections)
}

func TestPressureCollectionReclaimsGarbage(t *testing.T) {
	h := newTestHeap(t, 100)

	err := WithScope(h, func(s *HandleScope) error {
		_, err := NewString(s, string(make([]byte, 50)))
		return err
	})
	require.Nil(t, err)
	require.Equal(t, 66, h.Used())

	s := h.NewScope()
	defer s.Close()
	str, err := NewString(s, string(make([]byte, 50)))
	require.Nil(t, err)
	require.Equal(t, 1, h.Stats().Collections)
	require.Equal(t, 66, h.Used())
	require.Equal(t, 50, str.Get().Len())
}

func TestUnrootedObjectsReturnToBaseline(t *testing.T) {
	h := newTestHeap(t, 1<<16)
	outer := h.NewScope()
	defer outer.Close()

	_, err := NewString(outer, "keep")
	require.Nil(t, err)
	baseline := h.Used()

	err = WithScope(outer, func(s *HandleScope) error {
		for i := 0; i < 100; i++ {
			if _, err := NewNumber(s, float64(i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.Nil(t, err)
	require.Greater(t, h.Used(), baseline)

	stats, err := h.Collect()
	require.Nil(t, err)
	require.Equal(t, 100, stats.FreedObjects)
	require.Equal(t, baseline, h.Used())
	require.Equal(t, 1, h.Len())
}

func TestHostObjectGraphSurvives(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()
	defer s.Close()

	var list LocalHandle[*object.List]
	err := WithScope(s, func(inner *HandleScope) error {
		host, err := NewHostObject(inner, &node{name: "leaf"})
		if err != nil {
			return err
		}
		m, err := NewMap(inner, map[string]object.Value{"h": host.Value()})
		if err != nil {
			return err
		}
		l, err := NewList(inner, m.Value())
		if err != nil {
			return err
		}
		list, err = Escape(l)
		return err
	})
	require.Nil(t, err)
	require.Equal(t, 24+33+32, h.Used())

	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 3, h.Len())

	mv, ok := ListGet(list, 0)
	require.True(t, ok)
	mref, ok, err := Deref(s, mv)
	require.Nil(t, err)
	require.True(t, ok)
	m, ok := TryDowncast[*object.Map](mref)
	require.True(t, ok)
	hv, ok := MapGet(m, "h")
	require.True(t, ok)
	href, ok, err := Deref(s, hv)
	require.Nil(t, err)
	require.True(t, ok)
	leaf, ok := TryDowncast[*node](href)
	require.True(t, ok)
	require.Equal(t, "leaf", leaf.Get().name)
}

func TestCyclesAreCollected(t *testing.T) {
	h := newTestHeap(t, 1024)

	err := WithScope(h, func(s *HandleScope) error {
		a, err := NewHostObject(s, &node{name: "a"})
		if err != nil {
			return err
		}
		b, err := NewHostObject(s, &node{name: "b", next: a.AsHeapHandle()})
		if err != nil {
			return err
		}
		a.Get().next = b.AsHeapHandle()
		_, err = h.Collect()
		return err
	})
	require.Nil(t, err)
	require.Equal(t, 2, h.Len())

	stats, err := h.Collect()
	require.Nil(t, err)
	require.Equal(t, 2, stats.FreedObjects)
	require.Equal(t, 0, h.Used())
}

func TestSelfReferentialList(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()

	list, err := NewList(s)
	require.Nil(t, err)
	require.Nil(t, ListAppend(list, list.Value()))
	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 1, h.Len())

	s.Close()
	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 0, h.Len())
}

func TestFinalizerRunsExactlyOnce(t *testing.T) {
	h := newTestHeap(t, 1024)
	calls := 0

	err := WithScope(h, func(s *HandleScope) error {
		_, err := NewHostObject(s, &node{onFinalize: func() error {
			calls++
			return nil
		}})
		return err
	})
	require.Nil(t, err)
	require.Equal(t, 0, calls)

	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 1, calls)
	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 1, calls)
	require.Nil(t, h.Close())
	require.Equal(t, 1, calls)
}

func TestFinalizerErrorsAreAggregated(t *testing.T) {
	h := newTestHeap(t, 1024)
	boom := errors.New("boom")

	err := WithScope(h, func(s *HandleScope) error {
		for i := 0; i < 2; i++ {
			_, err := NewHostObject(s, &node{onFinalize: func() error { return boom }})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.Nil(t, err)

	stats, err := h.Collect()
	require.NotNil(t, err)
	require.True(t, errors.Is(err, errz.ErrFinalizer))
	require.True(t, errors.Is(err, boom))
	require.Equal(t, 2, stats.FreedObjects)
	require.Equal(t, 0, h.Used())
}

func TestAllocationDuringSweepFails(t *testing.T) {
	h := newTestHeap(t, 1024)
	s := h.NewScope()
	defer s.Close()

	var inner error
	err := WithScope(s, func(tmp *HandleScope) error {
		_, err := NewHostObject(tmp, &node{onFinalize: func() error {
			_, inner = NewString(s, "late")
			return nil
		}})
		return err
	})
	require.Nil(t, err)

	_, err = h.Collect()
	require.Nil(t, err)
	require.True(t, errors.Is(inner, errz.ErrCollecting))
	require.Equal(t, 0, h.Len())
}

func TestCloseFinalizesEverything(t *testing.T) {
	h, err := New(1024)
	require.Nil(t, err)
	s := h.NewScope()
	var order []string
	for _, name := range []string{"first", "second"} {
		name := name
		_, err := NewHostObject(s, &node{name: name, onFinalize: func() error {
			order = append(order, name)
			return nil
		}})
		require.Nil(t, err)
	}

	require.Nil(t, h.Close())
	require.Equal(t, []string{"first", "second"}, order)
	require.True(t, s.Closed())
	require.True(t, h.Closed())
	require.Equal(t, 0, h.Used())
	require.Nil(t, h.Close())

	_, err = h.Collect()
	require.True(t, errors.Is(err, errz.ErrHeapClosed))
	_, err = NewString(h.NewScope(), "x")
	require.True(t, errors.Is(err, errz.ErrHeapClosed))
}

func TestStressCollectKeepsRootsValid(t *testing.T) {
	h := newTestHeap(t, 1<<16, WithStressCollect())
	s := h.NewScope()
	defer s.Close()

	list, err := NewList(s)
	require.Nil(t, err)
	var strs []LocalHandle[*object.String]
	for i := 0; i < 20; i++ {
		str, err := NewString(s, string(rune('a'+i)))
		require.Nil(t, err)
		require.Nil(t, ListAppend(list, str.Value()))
		strs = append(strs, str)
		err = WithScope(s, func(tmp *HandleScope) error {
			_, err := NewNumber(tmp, float64(i))
			return err
		})
		require.Nil(t, err)
	}

	require.Equal(t, h.Stats().Allocations, h.Stats().Collections)
	_, err = h.Collect()
	require.Nil(t, err)
	require.Equal(t, 20, ListLen(list))
	for i, str := range strs {
		require.Equal(t, string(rune('a'+i)), str.Get().Value())
		v, _ := ListGet(list, i)
		require.True(t, v.Equals(str.Value()))
	}
	require.Equal(t, 21, h.Len())
}

func TestObserverReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestHeap(t, 1024, WithObserver(obs))
	s := h.NewScope()

	str, err := NewString(s, "abc")
	require.Nil(t, err)
	s.Close()
	_, err = h.Collect()
	require.Nil(t, err)

	require.Len(t, obs.allocs, 1)
	require.Equal(t, str.ID(), obs.allocs[0].ID)
	require.Equal(t, object.STRING, obs.allocs[0].Type)
	require.Equal(t, 19, obs.allocs[0].Size)
	require.Len(t, obs.collects, 1)
	require.Equal(t, TriggerExplicit, obs.collects[0].Trigger)
	require.Equal(t, 1, obs.collects[0].Stats.FreedObjects)
	require.Equal(t, 19, obs.collects[0].Stats.FreedBytes)
}

type recordingObserver struct {
	NoOpObserver
	allocs   []AllocateEvent
	collects []CollectEvent
}

func (o *recordingObserver) OnAllocate(event AllocateEvent) {
	o.allocs = append(o.allocs, event)
}

func (o *recordingObserver) OnCollect(event CollectEvent) {
	o.collects = append(o.collects, event)
}

func TestStatsPeakUsed(t *testing.T) {
	h := newTestHeap(t, 1024)
	err := WithScope(h, func(s *HandleScope) error {
		_, err := NewString(s, "0123456789")
		return err
	})
	require.Nil(t, err)
	_, err = h.Collect()
	require.Nil(t, err)

	stats := h.Stats()
	require.Equal(t, 1, stats.Allocations)
	require.Equal(t, 26, stats.PeakUsed)
	require.Equal(t, 26, stats.FreedBytes)
	require.Equal(t, 1, stats.FreedObjects)
}
