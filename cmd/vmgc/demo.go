package main

import (
	"fmt"

	"github.com/deepnoodle-ai/vmgc/heap"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Allocate a small object graph and show the heap after each step",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newHeap()
		if err != nil {
			return err
		}
		steps, err := runDemo(h)
		if closeErr := h.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		if !textOutput() {
			return printJSON(steps)
		}
		for i, step := range steps {
			fmt.Printf("%2d. %-44s used=%-8s objects=%d\n",
				i+1, bold(step.Action), formatBytes(step.Used), step.Objects)
		}
		return nil
	},
}

type demoStep struct {
	Action  string `json:"action"`
	Used    int    `json:"used"`
	Objects int    `json:"objects"`
}

// resource stands in for a host object that owns something outside the heap
// and refers back to a heap string.
type resource struct {
	name   heap.HeapHandle[*object.String]
	closed *int
}

func (r *resource) Size() int { return 8 }

func (r *resource) Trace(v object.Visitor) { r.name.Trace(v) }

func (r *resource) Finalize() error {
	*r.closed++
	return nil
}

// runDemo allocates a string, a list of numbers, a map holding the list and
// a host object, then releases them scope by scope.
func runDemo(h *heap.Heap) ([]demoStep, error) {
	var steps []demoStep
	record := func(action string) {
		steps = append(steps, demoStep{Action: action, Used: h.Used(), Objects: h.Len()})
	}
	closed := 0

	outer := h.NewScope()
	defer outer.Close()

	err := heap.WithScope(outer, func(s *heap.HandleScope) error {
		str, err := heap.NewString(s, "hi")
		if err != nil {
			return err
		}
		record(`string "hi"`)

		list, err := heap.NewList(s, object.NewNumber(1), object.NewNumber(2), object.NewNumber(3))
		if err != nil {
			return err
		}
		record("list [1, 2, 3]")

		m, err := heap.NewMap(s, map[string]object.Value{"k": list.Value()})
		if err != nil {
			return err
		}
		record(`map {"k": list}`)

		res, err := heap.NewHostObject(s, &resource{name: str.AsHeapHandle(), closed: &closed})
		if err != nil {
			return err
		}
		if err := heap.MapSet(m, "res", res.Value()); err != nil {
			return err
		}
		record("host resource stored in map")

		if _, err := h.Collect(); err != nil {
			return err
		}
		record("collect with everything rooted")

		_, err = heap.Escape(m)
		return err
	})
	if err != nil {
		return steps, err
	}
	record("close inner scope, map escaped")

	if _, err := h.Collect(); err != nil {
		return steps, err
	}
	record("collect keeps what the map reaches")

	outer.Close()
	if _, err := h.Collect(); err != nil {
		return steps, err
	}
	record(fmt.Sprintf("close outer scope and collect (%d finalized)", closed))
	return steps, nil
}
