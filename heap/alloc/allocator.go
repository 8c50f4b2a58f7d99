package alloc

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Allocator is the contract shared by the mutator-side allocators.
type Allocator interface {
	// Alloc returns a zeroed, word-aligned address with at least size usable
	// bytes. offset must be zero.
	Alloc(size, align, offset uint64) (types.Address, error)

	// AllocSlowOnce acquires fresh memory from the space and allocates from it.
	AllocSlowOnce(size, align, offset uint64) (types.Address, error)

	// Stats returns a snapshot of the allocator's counters.
	Stats() Stats
}

// Stats holds allocator counters.
type Stats struct {
	AllocCalls     int64 // total Alloc calls that returned an address
	FastPathHits   int64 // allocations served without acquiring memory
	SlowPathCalls  int64 // AllocSlowOnce invocations
	BlocksAcquired int64 // blocks or page runs acquired from the space
	BytesAllocated int64 // cell or run bytes handed out
	CellsFreed     int64 // cells returned by sweep
	BlocksReleased int64 // empty blocks returned to the space
	BlocksRetained int64 // empty blocks parked in the space's pool
}

// Add returns s with o's counters added.
func (s Stats) Add(o Stats) Stats {
	s.AllocCalls += o.AllocCalls
	s.FastPathHits += o.FastPathHits
	s.SlowPathCalls += o.SlowPathCalls
	s.BlocksAcquired += o.BlocksAcquired
	s.BytesAllocated += o.BytesAllocated
	s.CellsFreed += o.CellsFreed
	s.BlocksReleased += o.BlocksReleased
	s.BlocksRetained += o.BlocksRetained
	return s
}

// allocatorStats is the live, concurrently updatable form of Stats. Sweep
// units update it from worker goroutines.
type allocatorStats struct {
	allocCalls     atomic.Int64
	fastPathHits   atomic.Int64
	slowPathCalls  atomic.Int64
	blocksAcquired atomic.Int64
	bytesAllocated atomic.Int64
	cellsFreed     atomic.Int64
	blocksReleased atomic.Int64
	blocksRetained atomic.Int64
}

func (a *allocatorStats) snapshot() Stats {
	return Stats{
		AllocCalls:     a.allocCalls.Load(),
		FastPathHits:   a.fastPathHits.Load(),
		SlowPathCalls:  a.slowPathCalls.Load(),
		BlocksAcquired: a.blocksAcquired.Load(),
		BytesAllocated: a.bytesAllocated.Load(),
		CellsFreed:     a.cellsFreed.Load(),
		BlocksReleased: a.blocksReleased.Load(),
		BlocksRetained: a.blocksRetained.Load(),
	}
}

// checkRequest enforces the request contract shared by all allocators.
func checkRequest(align, offset uint64) {
	if offset != 0 {
		panic(errors.AssertionFailedf("alloc: non-zero offset %d is not supported", offset))
	}
	if align > format.BytesInWord || (align != 0 && align&(align-1) != 0) {
		panic(errors.AssertionFailedf("alloc: alignment %d is not supported", align))
	}
}
