package alloc

import (
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// LargeObjectAllocator allocates each object as its own page run in the
// large object space. Every allocation takes the slow path.
type LargeObjectAllocator struct {
	tls   types.Thread
	space *space.LargeObjectSpace
	stats allocatorStats
}

// NewLargeObject creates a large object allocator for tls over los.
func NewLargeObject(tls types.Thread, los *space.LargeObjectSpace) *LargeObjectAllocator {
	return &LargeObjectAllocator{tls: tls, space: los}
}

// Alloc implements Allocator.
func (la *LargeObjectAllocator) Alloc(size, align, offset uint64) (types.Address, error) {
	return la.AllocSlowOnce(size, align, offset)
}

// AllocSlowOnce implements Allocator.
func (la *LargeObjectAllocator) AllocSlowOnce(size, align, offset uint64) (types.Address, error) {
	checkRequest(align, offset)
	la.stats.slowPathCalls.Add(1)

	addr, err := la.space.AllocLarge(la.tls, size)
	if err != nil {
		return types.Zero, err
	}
	la.stats.allocCalls.Add(1)
	la.stats.blocksAcquired.Add(1)
	la.stats.bytesAllocated.Add(int64(format.AlignPage(max(size, format.MinObjectSize))))
	return addr, nil
}

// Stats implements Allocator.
func (la *LargeObjectAllocator) Stats() Stats { return la.stats.snapshot() }
