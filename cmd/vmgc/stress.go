package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/deepnoodle-ai/vmgc/errz"
	"github.com/deepnoodle-ai/vmgc/heap"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Run a randomized allocation workload and check that roots survive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := stressConfig{
			Iterations: viper.GetInt("iterations"),
			Seed:       viper.GetInt64("seed"),
			MaxDepth:   viper.GetInt("max-depth"),
		}
		if cfg.Seed == 0 {
			cfg.Seed = time.Now().UnixNano()
		}
		h, err := newHeap()
		if err != nil {
			return err
		}
		report, err := runStress(h, cfg)
		if closeErr := h.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		if !textOutput() {
			return printJSON(report)
		}
		fmt.Printf("%s seed=%d iterations=%d\n", bold("stress"), report.Seed, report.Iterations)
		fmt.Printf("  allocations:   %d (%d out of memory)\n", report.Stats.Allocations, report.OutOfMemory)
		fmt.Printf("  collections:   %d\n", report.Stats.Collections)
		fmt.Printf("  freed:         %d objects, %s\n", report.Stats.FreedObjects, formatBytes(report.Stats.FreedBytes))
		fmt.Printf("  peak used:     %s\n", formatBytes(report.Stats.PeakUsed))
		fmt.Printf("  roots checked: %s\n", green(report.RootsChecked))
		return nil
	},
}

func init() {
	f := stressCmd.Flags()
	f.Int("iterations", 10000, "number of random operations")
	f.Int64("seed", 0, "random seed (0 picks one from the clock)")
	f.Int("max-depth", 8, "maximum scope nesting depth")
	viper.BindPFlags(f)
}

type stressConfig struct {
	Iterations int
	Seed       int64
	MaxDepth   int
}

type stressReport struct {
	Seed         int64      `json:"seed"`
	Iterations   int        `json:"iterations"`
	OutOfMemory  int        `json:"out_of_memory"`
	RootsChecked int        `json:"roots_checked"`
	Stats        heap.Stats `json:"stats"`
}

type stressFrame struct {
	scope   *heap.HandleScope
	handles []heap.LocalHandle[object.Traceable]
	lists   []heap.LocalHandle[*object.List]
}

// runStress performs random scope, allocation and mutation operations. After
// every collection it checks that each handle of every open scope still
// names a live allocation.
func runStress(h *heap.Heap, cfg stressConfig) (stressReport, error) {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 1
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	report := stressReport{Seed: cfg.Seed, Iterations: cfg.Iterations}
	frames := []*stressFrame{{scope: h.NewScope()}}
	defer frames[0].scope.Close()

	check := func() error {
		for _, f := range frames {
			for _, l := range f.handles {
				if !h.Contains(l.ID()) {
					return fmt.Errorf("rooted handle %s was collected", l)
				}
				report.RootsChecked++
			}
		}
		return nil
	}
	// randomValue picks a storable value: inline, or a handle from any open
	// frame.
	randomValue := func() object.Value {
		f := frames[rng.Intn(len(frames))]
		if len(f.handles) == 0 || rng.Intn(3) == 0 {
			return object.NewNumber(rng.Float64())
		}
		return f.handles[rng.Intn(len(f.handles))].Value()
	}

	for i := 0; i < cfg.Iterations; i++ {
		top := frames[len(frames)-1]
		var err error
		switch op := rng.Intn(10); {
		case op == 0 && len(frames) < cfg.MaxDepth:
			frames = append(frames, &stressFrame{scope: top.scope.NewScope()})
		case op == 1 && len(frames) > 1:
			top.scope.Close()
			frames = frames[:len(frames)-1]
		case op == 2:
			_, err = h.Collect()
			if err == nil {
				err = check()
			}
		case op <= 4:
			var str heap.LocalHandle[*object.String]
			str, err = heap.NewString(top.scope, fmt.Sprintf("s%d", i))
			if err == nil {
				top.handles = append(top.handles, str.Untyped())
			}
		case op <= 6:
			var list heap.LocalHandle[*object.List]
			list, err = heap.NewList(top.scope, randomValue())
			if err == nil {
				top.handles = append(top.handles, list.Untyped())
				top.lists = append(top.lists, list)
			}
		case op == 7 && len(top.lists) > 0:
			err = heap.ListAppend(top.lists[rng.Intn(len(top.lists))], randomValue())
		default:
			var m heap.LocalHandle[*object.Map]
			m, err = heap.NewMap(top.scope, map[string]object.Value{"v": randomValue()})
			if err == nil {
				top.handles = append(top.handles, m.Untyped())
			}
		}
		if errors.Is(err, errz.ErrOutOfMemory) {
			report.OutOfMemory++
			continue
		}
		if err != nil {
			return report, err
		}
	}

	_, err := h.Collect()
	if err == nil {
		err = check()
	}
	report.Stats = h.Stats()
	return report, err
}
