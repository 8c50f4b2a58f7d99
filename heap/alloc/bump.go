package alloc

import (
	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// bumpRefillPages is the minimum page run a BumpAllocator acquires.
const bumpRefillPages = format.PagesInBlock

// BumpAllocator is an append-only allocator over immortal pages. Objects are
// never freed, so there are no free lists or headers; the allocator only
// tracks the current run [cursor, limit).
type BumpAllocator struct {
	tls    types.Thread
	space  *space.ImmortalSpace
	region *heap.Region

	// cursor is where the next allocation goes. Zero until the first refill.
	cursor types.Address

	// limit is the end of the current run.
	limit types.Address

	stats allocatorStats
}

// NewBump creates a bump allocator for tls over im. Nothing is acquired until
// the first allocation.
func NewBump(tls types.Thread, im *space.ImmortalSpace) *BumpAllocator {
	return &BumpAllocator{tls: tls, space: im, region: im.Region()}
}

// Alloc implements Allocator.
func (ba *BumpAllocator) Alloc(size, align, offset uint64) (types.Address, error) {
	checkRequest(align, offset)
	need := format.AlignWord(max(size, format.MinObjectSize))

	if ba.cursor.IsZero() || uint64(ba.limit-ba.cursor) < need {
		return ba.AllocSlowOnce(size, align, offset)
	}
	ba.stats.fastPathHits.Add(1)
	return ba.bump(need), nil
}

// AllocSlowOnce implements Allocator. It acquires a new run, extending the
// current one when the space hands out the adjacent pages.
func (ba *BumpAllocator) AllocSlowOnce(size, align, offset uint64) (types.Address, error) {
	checkRequest(align, offset)
	need := format.AlignWord(max(size, format.MinObjectSize))
	ba.stats.slowPathCalls.Add(1)

	n := max(format.BytesToPages(need), bumpRefillPages)
	start, err := ba.space.Acquire(ba.tls, n)
	if err != nil {
		return types.Zero, err
	}
	ba.stats.blocksAcquired.Add(1)

	// Keep the tail of the current run if the new pages follow it.
	if start != ba.limit || ba.cursor.IsZero() {
		ba.cursor = start
	}
	ba.limit = start.Add(format.PagesToBytes(n))
	return ba.bump(need), nil
}

func (ba *BumpAllocator) bump(need uint64) types.Address {
	addr := ba.cursor
	ba.cursor = ba.cursor.Add(need)
	ba.region.Zero(addr, need)
	ba.space.SetAllocBit(addr)
	ba.stats.allocCalls.Add(1)
	ba.stats.bytesAllocated.Add(int64(need))
	return addr
}

// Stats implements Allocator.
func (ba *BumpAllocator) Stats() Stats { return ba.stats.snapshot() }

// Remaining returns the bytes left in the current run.
func (ba *BumpAllocator) Remaining() uint64 {
	if ba.cursor.IsZero() {
		return 0
	}
	return uint64(ba.limit - ba.cursor)
}
