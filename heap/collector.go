package heap

import (
	"sort"
	"time"

	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/hashicorp/go-multierror"
)

// CollectStats describes one collection cycle.
type CollectStats struct {
	Cycle        int           `json:"cycle"`
	Roots        int           `json:"roots"`
	Marked       int           `json:"marked"`
	FreedObjects int           `json:"freed_objects"`
	FreedBytes   int           `json:"freed_bytes"`
	UsedBefore   int           `json:"used_before"`
	UsedAfter    int           `json:"used_after"`
	Duration     time.Duration `json:"duration"`
}

// Collect runs a full mark-sweep collection using every active scope and
// global handle as roots. Memory of unreachable allocations is reclaimed even
// when finalizers fail; their errors are returned together.
func (h *Heap) Collect() (CollectStats, error) {
	if err := h.usable(); err != nil {
		return CollectStats{}, err
	}
	return h.collect(h.rootSet(nil), nil, TriggerExplicit)
}

// CollectFrom runs a full collection using only the handles of the given
// scopes, plus global handles, as roots. Handles of active scopes that are
// not listed are not roots for this cycle, and their referents may be freed:
// LocalHandles of those scopes can then dangle, reporting false from IsValid
// and panicking with ErrKindInvalidHandle from Get. With no scopes it behaves
// like Collect.
func (h *Heap) CollectFrom(scopes ...*HandleScope) (CollectStats, error) {
	if err := h.usable(); err != nil {
		return CollectStats{}, err
	}
	for _, s := range scopes {
		if s.heap != h {
			return CollectStats{}, errz.New(errz.ErrKindInvalidHandle, "scope belongs to a different heap")
		}
	}
	return h.collect(h.rootSet(scopes), nil, TriggerExplicit)
}

// rootSet gathers root IDs from the given scopes, or from every active
// scope when scopes is nil, plus all globals.
func (h *Heap) rootSet(scopes []*HandleScope) []object.ID {
	if scopes == nil {
		scopes = h.scopes
	}
	var roots []object.ID
	for _, s := range scopes {
		if s.closed {
			continue
		}
		roots = append(roots, s.slots...)
	}
	for _, id := range h.globals {
		roots = append(roots, id)
	}
	return roots
}

// collect runs mark then sweep. extra, when set, is traced as an additional
// root; allocation uses it to protect the references of a body that is not
// yet registered in the heap.
func (h *Heap) collect(roots []object.ID, extra object.Traceable, trigger Trigger) (CollectStats, error) {
	start := time.Now()
	h.stats.Collections++
	stats := CollectStats{
		Cycle:      h.stats.Collections,
		Roots:      len(roots),
		UsedBefore: h.used,
	}

	h.state = Marking
	stats.Marked = h.mark(roots, extra)

	h.state = Sweeping
	freed, freedBytes, err := h.sweep()
	h.state = Idle

	stats.FreedObjects = freed
	stats.FreedBytes = freedBytes
	stats.UsedAfter = h.used
	stats.Duration = time.Since(start)
	h.stats.FreedObjects += freed
	h.stats.FreedBytes += freedBytes

	h.logger.Debug().
		Str("trigger", trigger.String()).
		Int("cycle", stats.Cycle).
		Int("roots", stats.Roots).
		Int("marked", stats.Marked).
		Int("freed_objects", freed).
		Int("freed_bytes", freedBytes).
		Int("used", h.used).
		Dur("duration", stats.Duration).
		Msg("collection finished")
	if err != nil {
		h.logger.Error().Err(err).Int("cycle", stats.Cycle).Msg("finalizers failed")
	}
	h.observer.OnCollect(CollectEvent{Trigger: trigger, Stats: stats, Err: err})
	return stats, err
}

// mark clears every mark bit, then marks everything reachable from roots.
// It returns the number of marked allocations.
func (h *Heap) mark(roots []object.ID, extra object.Traceable) int {
	for _, hdr := range h.objects {
		hdr.marked = false
	}
	m := &marker{heap: h}
	for _, id := range roots {
		m.VisitRef(id)
	}
	if extra != nil {
		extra.Trace(m)
	}
	m.drain()
	return m.count
}

// sweep frees every unmarked allocation in ID order and clears the mark bits
// of the survivors.
func (h *Heap) sweep() (int, int, error) {
	var dead []*header
	for _, hdr := range h.objects {
		if hdr.marked {
			hdr.marked = false
			continue
		}
		dead = append(dead, hdr)
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].id < dead[j].id })

	var result *multierror.Error
	freedBytes := 0
	for _, hdr := range dead {
		freedBytes += hdr.allocSize()
		if err := h.release(hdr); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return len(dead), freedBytes, result.ErrorOrNil()
}

// marker is the visitor handed to Trace during the mark phase. The mark bit
// doubles as the visited set, so cycles terminate. An explicit worklist
// keeps deep object graphs off the goroutine stack.
type marker struct {
	heap  *Heap
	stack []*header
	count int
}

func (m *marker) VisitValue(v object.Value) {
	if v.IsRef() {
		m.VisitRef(v.ID())
	}
}

func (m *marker) VisitRef(id object.ID) {
	if id == object.NoID {
		return
	}
	hdr, ok := m.heap.objects[id]
	if !ok || hdr.marked {
		return
	}
	hdr.marked = true
	m.count++
	m.stack = append(m.stack, hdr)
}

func (m *marker) drain() {
	for len(m.stack) > 0 {
		n := len(m.stack) - 1
		hdr := m.stack[n]
		m.stack[n] = nil
		m.stack = m.stack[:n]
		hdr.body.Trace(m)
	}
}
