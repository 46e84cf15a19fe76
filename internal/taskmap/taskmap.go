// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package taskmap implements the RFC 34 mapping between task IDs and node
// IDs, spec.md's data model section and §12.5 (block coalescing restored
// from original_source/src/common/libtaskmap/taskmap.c).
package taskmap

import (
	"fmt"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Block is one [start_node, nnodes, ppn, repeat] entry.
type Block struct {
	StartNode int
	NNodes    int
	PPN       int
	Repeat    int
}

// Taskmap is an ordered list of blocks.
type Taskmap struct {
	blocks []Block
}

// New returns an empty taskmap.
func New() *Taskmap { return &Taskmap{} }

// Append adds nnodes nodes of ppn tasks each, coalescing with the previous
// block when adjacent — same ppn and the new range starts exactly where
// the previous block's node range ends (original_source taskmap.c; spec.md
// data model: "coalesces adjacent blocks when possible").
func (t *Taskmap) Append(startNode, nnodes, ppn int) {
	if nnodes <= 0 || ppn <= 0 {
		return
	}
	t.appendRaw(startNode, nnodes, ppn, 1)
}

// appendRaw is the coalescing core: a block with repeat=1 appended
// immediately after another repeat=1 block with the same ppn, whose node
// range ends where the new one begins, extends that block's nnodes
// instead of creating a new entry.
func (t *Taskmap) appendRaw(startNode, nnodes, ppn, repeat int) {
	if n := len(t.blocks); n > 0 {
		last := &t.blocks[n-1]
		if last.Repeat == 1 && repeat == 1 && last.PPN == ppn &&
			last.StartNode+last.NNodes == startNode {
			last.NNodes += nnodes
			return
		}
	}
	t.blocks = append(t.blocks, Block{StartNode: startNode, NNodes: nnodes, PPN: ppn, Repeat: repeat})
}

// Blocks returns a copy of the block list.
func (t *Taskmap) Blocks() []Block {
	out := make([]Block, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// TotalNTasks returns sum(nnodes*ppn*repeat) over all blocks, spec.md §8
// invariant 4.
func (t *Taskmap) TotalNTasks() int {
	total := 0
	for _, b := range t.blocks {
		total += b.NNodes * b.PPN * b.Repeat
	}
	return total
}

// totalNodes returns the number of distinct node slots covered.
func (t *Taskmap) totalNodes() int {
	total := 0
	for _, b := range t.blocks {
		total += b.NNodes * b.Repeat
	}
	return total
}

// Nodeid returns the node owning the given task id, spec.md §8 invariant 4.
func (t *Taskmap) Nodeid(taskid int) (int, error) {
	if taskid < 0 {
		return 0, ferrors.New(ferrors.CodeInvalidArgument, "negative taskid")
	}
	remaining := taskid
	for _, b := range t.blocks {
		perRepeat := b.NNodes * b.PPN
		blockTotal := perRepeat * b.Repeat
		if remaining >= blockTotal {
			remaining -= blockTotal
			continue
		}
		rep := remaining / perRepeat
		withinRep := remaining % perRepeat
		node := withinRep / b.PPN
		return b.StartNode + rep*b.NNodes + node, nil
	}
	return 0, ferrors.New(ferrors.CodeNoSuchEntry, "taskid out of range")
}

// Taskids returns every task id mapped to the given node, in ascending order.
func (t *Taskmap) Taskids(nodeid int) ([]int, error) {
	var ids []int
	base := 0
	for _, b := range t.blocks {
		perRepeat := b.NNodes * b.PPN
		for rep := 0; rep < b.Repeat; rep++ {
			repBase := base + rep*perRepeat
			relNode := nodeid - (b.StartNode + rep*b.NNodes)
			if relNode >= 0 && relNode < b.NNodes {
				for p := 0; p < b.PPN; p++ {
					ids = append(ids, repBase+relNode*b.PPN+p)
				}
			}
		}
		base += perRepeat * b.Repeat
	}
	if len(ids) == 0 {
		return nil, ferrors.New(ferrors.CodeNoSuchEntry, fmt.Sprintf("no tasks mapped to node %d", nodeid))
	}
	return ids, nil
}
