package plan

import (
	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Mutator is the per-thread allocation context. It is owned by one thread
// and must not be used concurrently.
type Mutator struct {
	tls  types.Thread
	plan *FreeListMarkSweep

	freeList *alloc.FreeListAllocator
	bump     *alloc.BumpAllocator
	los      *alloc.LargeObjectAllocator
}

// TLS returns the owning thread.
func (m *Mutator) TLS() types.Thread { return m.tls }

// Allocator returns the allocator for sel.
func (m *Mutator) Allocator(sel AllocatorSelector) alloc.Allocator {
	switch sel {
	case SelectBump:
		return m.bump
	case SelectLargeObject:
		return m.los
	default:
		return m.freeList
	}
}

// Alloc allocates size bytes with the allocator the plan selects for kind.
// Errors from the space, including space.ErrCollectionRequired, are returned
// unchanged; retrying is the caller's job.
func (m *Mutator) Alloc(size, align, offset uint64, kind types.AllocationSemantics) (types.Address, error) {
	return m.Allocator(m.plan.SelectAllocator(kind, size)).Alloc(size, align, offset)
}

// FreeList returns the mutator's free-list allocator.
func (m *Mutator) FreeList() *alloc.FreeListAllocator { return m.freeList }

// Stats sums the counters of the mutator's allocators.
func (m *Mutator) Stats() alloc.Stats {
	return m.freeList.Stats().Add(m.bump.Stats()).Add(m.los.Stats())
}
