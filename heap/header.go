package heap

import "github.com/deepnoodle-ai/vmgc/object"

// HeaderSize is the number of bytes charged for each allocation's header, on
// top of the size its body reports.
const HeaderSize = 16

// header is the per-allocation metadata kept by the heap. The heap owns
// every header exclusively; handles refer to headers only by ID.
type header struct {
	id     object.ID
	typ    object.Type
	marked bool
	size   int
	body   object.Traceable
}

func (h *header) allocSize() int {
	return HeaderSize + h.size
}
