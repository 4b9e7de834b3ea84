package heap

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/deepnoodle-ai/vmgc/object"
)

// Snapshot is a point-in-time copy of the heap's object graph. It does not
// reference the heap, so it stays usable after later collections.
type Snapshot struct {
	HeapID   string           `json:"heap_id"`
	Capacity int              `json:"capacity"`
	Used     int              `json:"used"`
	Roots    []object.ID      `json:"roots"`
	Objects  []SnapshotObject `json:"objects"`

	index map[object.ID]int
}

// SnapshotObject describes one allocation in a Snapshot.
type SnapshotObject struct {
	ID   object.ID   `json:"id"`
	Type string      `json:"type"`
	Size int         `json:"size"`
	Refs []object.ID `json:"refs"`
}

// refCollector records the outgoing edges of one allocation.
type refCollector struct {
	refs []object.ID
	seen map[object.ID]bool
}

func (c *refCollector) VisitValue(v object.Value) {
	if v.IsRef() {
		c.VisitRef(v.ID())
	}
}

func (c *refCollector) VisitRef(id object.ID) {
	if id == object.NoID || c.seen[id] {
		return
	}
	c.seen[id] = true
	c.refs = append(c.refs, id)
}

// Snapshot captures every live allocation with its size and outgoing
// references, plus the current root set. Objects are ordered by ID and roots
// are deduplicated.
func (h *Heap) Snapshot() *Snapshot {
	snap := &Snapshot{
		HeapID:   h.id.String(),
		Capacity: h.capacity,
		Used:     h.used,
		Objects:  make([]SnapshotObject, 0, len(h.objects)),
	}
	for _, hdr := range h.objects {
		c := &refCollector{seen: map[object.ID]bool{}}
		hdr.body.Trace(c)
		snap.Objects = append(snap.Objects, SnapshotObject{
			ID:   hdr.id,
			Type: hdr.typ.String(),
			Size: hdr.allocSize(),
			Refs: c.refs,
		})
	}
	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].ID < snap.Objects[j].ID })

	seen := map[object.ID]bool{}
	for _, id := range h.rootSet(nil) {
		if !seen[id] {
			seen[id] = true
			snap.Roots = append(snap.Roots, id)
		}
	}
	sort.Slice(snap.Roots, func(i, j int) bool { return snap.Roots[i] < snap.Roots[j] })
	return snap
}

// Object returns the allocation with the given ID.
func (s *Snapshot) Object(id object.ID) (SnapshotObject, bool) {
	if s.index == nil {
		s.index = make(map[object.ID]int, len(s.Objects))
		for i, obj := range s.Objects {
			s.index[obj.ID] = i
		}
	}
	i, ok := s.index[id]
	if !ok {
		return SnapshotObject{}, false
	}
	return s.Objects[i], true
}

// Reachable returns the set of allocations reachable from the snapshot's
// roots. This is exactly the set a full collection would keep.
func (s *Snapshot) Reachable() map[object.ID]bool {
	return s.ReachableFrom(s.Roots...)
}

// ReachableFrom returns the set of allocations reachable from the given IDs,
// including the IDs themselves when they are live.
func (s *Snapshot) ReachableFrom(ids ...object.ID) map[object.ID]bool {
	return s.reach(ids, object.NoID)
}

// reach walks the graph from start, never entering skip.
func (s *Snapshot) reach(start []object.ID, skip object.ID) map[object.ID]bool {
	visited := map[object.ID]bool{}
	stack := make([]object.ID, 0, len(start))
	for _, id := range start {
		if id != skip {
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		obj, ok := s.Object(id)
		if !ok {
			continue
		}
		visited[id] = true
		for _, ref := range obj.Refs {
			if ref != skip && !visited[ref] {
				stack = append(stack, ref)
			}
		}
	}
	return visited
}

// RetainedSize returns the number of bytes that would become unreachable if
// the allocation id were no longer referenced: its own size plus everything
// reachable from the roots only through it. Unreachable or unknown IDs
// retain nothing.
func (s *Snapshot) RetainedSize(id object.ID) int {
	live := s.Reachable()
	if !live[id] {
		return 0
	}
	without := s.reach(s.Roots, id)
	total := 0
	for other := range live {
		if !without[other] {
			obj, _ := s.Object(other)
			total += obj.Size
		}
	}
	return total
}

// WriteJSON encodes the snapshot as indented JSON.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
