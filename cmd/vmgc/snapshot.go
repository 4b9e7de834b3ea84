package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/deepnoodle-ai/vmgc/heap"
	"github.com/deepnoodle-ai/vmgc/object"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Dump the object graph of a sample workload",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newHeap()
		if err != nil {
			return err
		}
		defer h.Close()

		snap, err := sampleSnapshot(h, viper.GetInt("objects"))
		if err != nil {
			return err
		}
		if path := viper.GetString("file"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return snap.WriteJSON(f)
		}
		if !textOutput() {
			return printJSON(snap)
		}
		printSnapshot(snap)
		return nil
	},
}

func init() {
	f := snapshotCmd.Flags()
	f.Int("objects", 16, "number of sample lists to allocate")
	f.String("file", "", "write the snapshot as JSON to this file")
	viper.BindPFlags(f)
}

// sampleSnapshot builds a chain of lists, each referring to the one before
// it. Every other list stays rooted and the rest are reachable only through
// the chain. A few unreferenced strings are left behind as garbage.
func sampleSnapshot(h *heap.Heap, n int) (*heap.Snapshot, error) {
	s := h.NewScope()
	defer s.Close()

	prev := object.Null
	for i := 0; i < n; i++ {
		err := heap.WithScope(s, func(tmp *heap.HandleScope) error {
			list, err := heap.NewList(tmp, object.NewNumber(float64(i)), prev)
			if err != nil {
				return err
			}
			prev = list.Value()
			if i%4 == 3 {
				if _, err := heap.NewString(tmp, fmt.Sprintf("scratch %d", i)); err != nil {
					return err
				}
			}
			if i%2 == 0 || i == n-1 {
				_, err = heap.Escape(list)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return h.Snapshot(), nil
}

func printSnapshot(snap *heap.Snapshot) {
	live := snap.Reachable()
	fmt.Printf("%s %s\n", bold("heap"), snap.HeapID)
	fmt.Printf("  used %s of %s, %d objects, %d roots, %d reachable\n",
		formatBytes(snap.Used), formatBytes(snap.Capacity), len(snap.Objects), len(snap.Roots), len(live))

	type row struct {
		obj      heap.SnapshotObject
		retained int
	}
	rows := make([]row, 0, len(snap.Objects))
	for _, obj := range snap.Objects {
		rows = append(rows, row{obj: obj, retained: snap.RetainedSize(obj.ID)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].retained > rows[j].retained })
	if len(rows) > 10 {
		rows = rows[:10]
	}
	fmt.Println(bold("  largest retainers:"))
	for _, r := range rows {
		status := green("live")
		if !live[r.obj.ID] {
			status = red("garbage")
		}
		fmt.Printf("    %-6s %-6s size=%-8s retained=%-8s refs=%d %s\n",
			r.obj.ID, r.obj.Type, formatBytes(r.obj.Size), formatBytes(r.retained), len(r.obj.Refs), status)
	}
}
