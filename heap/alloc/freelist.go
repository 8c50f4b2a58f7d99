package alloc

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// FreeListAllocator allocates small objects from per-class block chains in a
// mark-sweep space.
//
// Chain structure per size class c:
//   - blocksDirect[c]: chain head, the most recently acquired block
//   - cursor[c]: first block that may still hold a free cell
//   - exhausted[c]: first block of the tail already found empty; the fast
//     path stops there
//
// New blocks are prepended. cursor and exhausted are reset by sweep, after
// which every block may hold free cells again.
type FreeListAllocator struct {
	tls    types.Thread
	space  *space.MarkSweepSpace
	region *heap.Region

	blocksDirect [NumClasses]block.Data
	cursor       [NumClasses]block.Data
	exhausted    [NumClasses]block.Data

	stats allocatorStats
}

// NewFreeList creates an allocator for tls over ms.
func NewFreeList(tls types.Thread, ms *space.MarkSweepSpace) *FreeListAllocator {
	return &FreeListAllocator{tls: tls, space: ms, region: ms.Region()}
}

// Space returns the space the allocator draws blocks from.
func (fa *FreeListAllocator) Space() *space.MarkSweepSpace { return fa.space }

// Alloc implements Allocator.
func (fa *FreeListAllocator) Alloc(size, align, offset uint64) (types.Address, error) {
	checkRequest(align, offset)
	c := SizeClass(size)

	if cell := fa.popFromChain(c); !cell.IsZero() {
		fa.stats.fastPathHits.Add(1)
		return fa.finish(cell, c), nil
	}
	return fa.AllocSlowOnce(size, align, offset)
}

// popFromChain walks class c from its cursor and pops the first free cell.
func (fa *FreeListAllocator) popFromChain(c int) types.Address {
	for d := fa.cursor[c]; !d.IsZero() && d != fa.exhausted[c]; d = d.Next() {
		if cell := d.Pop(); !cell.IsZero() {
			fa.cursor[c] = d
			return cell
		}
	}
	// Everything from the head down is empty until the next sweep.
	fa.cursor[c] = block.Data{}
	fa.exhausted[c] = fa.blocksDirect[c]
	return types.Zero
}

// AllocSlowOnce implements Allocator: acquire a block, carve it for the
// request's class, publish it as the chain head and pop from it.
func (fa *FreeListAllocator) AllocSlowOnce(size, align, offset uint64) (types.Address, error) {
	checkRequest(align, offset)
	c := SizeClass(size)
	fa.stats.slowPathCalls.Add(1)

	start, err := fa.space.AcquireBlock(fa.tls)
	if err != nil {
		return types.Zero, err
	}
	fa.stats.blocksAcquired.Add(1)

	d := block.Carve(fa.region, start, ClassCellSize(c), fa.blocksDirect[c])
	fa.blocksDirect[c] = d
	fa.cursor[c] = d

	cell := d.Pop()
	if cell.IsZero() {
		panic(errors.AssertionFailedf("alloc: freshly carved block %s is empty", start))
	}
	return fa.finish(cell, c), nil
}

// finish zeroes the cell and records it in the alloc bit plane.
func (fa *FreeListAllocator) finish(cell types.Address, c int) types.Address {
	cellSize := ClassCellSize(c)
	fa.region.Zero(cell, cellSize)
	fa.space.SetAllocBit(cell)
	fa.stats.allocCalls.Add(1)
	fa.stats.bytesAllocated.Add(int64(cellSize))
	return cell
}

// Stats implements Allocator.
func (fa *FreeListAllocator) Stats() Stats { return fa.stats.snapshot() }

// Blocks returns the number of blocks in class c's chain.
func (fa *FreeListAllocator) Blocks(c int) int {
	n := 0
	for d := fa.blocksDirect[c]; !d.IsZero(); d = d.Next() {
		n++
	}
	return n
}

// TotalBlocks returns the number of blocks across all chains.
func (fa *FreeListAllocator) TotalBlocks() int {
	n := 0
	for c := 1; c < NumClasses; c++ {
		n += fa.Blocks(c)
	}
	return n
}

// Adopt moves every chain of other onto fa. other is left empty. Used when a
// mutator is destroyed and its blocks are handed to a survivor.
func (fa *FreeListAllocator) Adopt(other *FreeListAllocator) {
	for c := 1; c < NumClasses; c++ {
		head := other.blocksDirect[c]
		if head.IsZero() {
			continue
		}
		tail := head
		for !tail.Next().IsZero() {
			tail = tail.Next()
		}
		tail.SetNext(fa.blocksDirect[c])
		fa.blocksDirect[c] = head
		fa.cursor[c] = head
		fa.exhausted[c] = block.Data{}

		other.blocksDirect[c] = block.Data{}
		other.cursor[c] = block.Data{}
		other.exhausted[c] = block.Data{}
	}
}

// SweepUnit sweeps one size class chain of one allocator.
type SweepUnit struct {
	fa      *FreeListAllocator
	class   int
	reclaim bool
}

// SweepReport summarizes one swept chain.
type SweepReport struct {
	Class          int
	Blocks         int
	Live           int
	Freed          int
	BlocksReleased int
	BlocksRetained int
}

// Sweep returns one unit per non-empty chain. Units touch disjoint chains and
// may run concurrently. Blocks left without live cells are unlinked. When
// reclaim is set their pages are released, otherwise they go to the space's
// empty-block pool where any class or mutator can pick them up.
func (fa *FreeListAllocator) Sweep(reclaim bool) []*SweepUnit {
	var units []*SweepUnit
	for c := 1; c < NumClasses; c++ {
		if !fa.blocksDirect[c].IsZero() {
			units = append(units, &SweepUnit{fa: fa, class: c, reclaim: reclaim})
		}
	}
	return units
}

// Class returns the size class the unit sweeps.
func (u *SweepUnit) Class() int { return u.class }

// Run sweeps the chain.
func (u *SweepUnit) Run() SweepReport {
	fa, c := u.fa, u.class
	rep := SweepReport{Class: c}

	var prev block.Data
	for d := fa.blocksDirect[c]; !d.IsZero(); {
		next := d.Next()
		res := fa.space.SweepBlock(d)
		rep.Blocks++
		rep.Live += res.Live
		rep.Freed += res.Freed

		if res.Live > 0 {
			prev = d
			d = next
			continue
		}

		if prev.IsZero() {
			fa.blocksDirect[c] = next
		} else {
			prev.SetNext(next)
		}
		if u.reclaim {
			if err := fa.space.ReleaseBlock(d); err != nil {
				panic(errors.NewAssertionErrorWithWrappedErrf(err, "alloc: release block %s", d.Start()))
			}
			rep.BlocksReleased++
		} else {
			fa.space.RetainBlock(d)
			rep.BlocksRetained++
		}
		d = next
	}

	fa.cursor[c] = fa.blocksDirect[c]
	fa.exhausted[c] = block.Data{}
	fa.stats.cellsFreed.Add(int64(rep.Freed))
	fa.stats.blocksReleased.Add(int64(rep.BlocksReleased))
	fa.stats.blocksRetained.Add(int64(rep.BlocksRetained))

	logger.L.Debug("swept chain",
		"tls", uint64(fa.tls),
		"class", c,
		"blocks", rep.Blocks,
		"live", rep.Live,
		"freed", rep.Freed,
		"released", rep.BlocksReleased,
		"retained", rep.BlocksRetained,
	)
	return rep
}
