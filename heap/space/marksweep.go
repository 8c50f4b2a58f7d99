package space

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/pages"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// MarkSweepSpace holds the free-list blocks of the small-object heap.
// Blocks a sweep leaves empty are either released or parked in a shared pool
// that any allocator draws from before acquiring fresh pages.
type MarkSweepSpace struct {
	CommonSpace
	mark   metadata.Spec
	blocks atomic.Int64

	emptyMu sync.Mutex
	empty   []types.Address
}

// SweepResult summarizes the sweep of one block.
type SweepResult struct {
	Live  int // marked cells, kept allocated
	Freed int // unmarked cells returned to the free chain
}

// NewMarkSweepSpace creates the space. mark is the space's mark bit plane.
func NewMarkSweepSpace(args Args, mark metadata.Spec) *MarkSweepSpace {
	s := &MarkSweepSpace{CommonSpace: newCommon(args), mark: mark}
	s.self = s
	return s
}

// Init implements Space.
func (s *MarkSweepSpace) Init(vm *heap.VMMap) error {
	return s.init(vm, func(r heap.SpaceRange) pages.PageResource {
		pr := pages.NewFreeList(r.Start, r.Extent, s.mmapper)
		pr.DecommitOnRelease = true
		return pr
	})
}

// MarkSpec returns the space's mark bit plane.
func (s *MarkSweepSpace) MarkSpec() metadata.Spec { return s.mark }

// AcquireBlock returns an empty block, taking one from the pool when it can.
// Pooled pages are already counted against the budget, so only a fresh
// block polls.
func (s *MarkSweepSpace) AcquireBlock(tls types.Thread) (types.Address, error) {
	if start, ok := s.popEmpty(); ok {
		return start, nil
	}
	start, err := s.Acquire(tls, format.PagesInBlock)
	if err != nil {
		return types.Zero, err
	}
	if !start.IsAligned(format.BytesInBlock) {
		panic(errors.AssertionFailedf("space %q: block at unaligned %s", s.name, start))
	}
	s.blocks.Add(1)
	return start, nil
}

func (s *MarkSweepSpace) popEmpty() (types.Address, bool) {
	s.emptyMu.Lock()
	defer s.emptyMu.Unlock()
	n := len(s.empty)
	if n == 0 {
		return types.Zero, false
	}
	start := s.empty[n-1]
	s.empty = s.empty[:n-1]
	return start, true
}

// Blocks returns the number of blocks currently held, pooled ones included.
func (s *MarkSweepSpace) Blocks() int { return int(s.blocks.Load()) }

// EmptyBlocks returns the number of blocks parked in the pool.
func (s *MarkSweepSpace) EmptyBlocks() int {
	s.emptyMu.Lock()
	defer s.emptyMu.Unlock()
	return len(s.empty)
}

// TraceObject implements TracingSpace.
func (s *MarkSweepSpace) TraceObject(obj types.ObjectReference) bool {
	return s.md.TrySetBit(s.mark, obj.ToAddress())
}

// IsMarked implements TracingSpace.
func (s *MarkSweepSpace) IsMarked(obj types.ObjectReference) bool {
	return s.md.GetBit(s.mark, obj.ToAddress())
}

// Prepare implements Space. Mark bits are cleared cell by cell during the
// previous sweep, so there is nothing to reset.
func (s *MarkSweepSpace) Prepare() {}

// Release implements Space. Blocks are swept by the allocators that own
// their chains.
func (s *MarkSweepSpace) Release() {}

// SweepBlock sweeps one block: marked cells stay allocated and lose their
// mark, unmarked allocated cells go back on the block's free chain.
func (s *MarkSweepSpace) SweepBlock(d block.Data) SweepResult {
	var res SweepResult
	d.ForEachCell(func(cell types.Address) {
		if !s.md.GetBit(metadata.AllocBit, cell) {
			return
		}
		if s.md.GetBit(s.mark, cell) {
			s.md.ClearBit(s.mark, cell)
			res.Live++
			return
		}
		s.md.ClearBit(metadata.AllocBit, cell)
		d.Push(cell)
		res.Freed++
	})
	return res
}

// ReleaseBlock returns an empty block's pages to the page resource. The
// caller must already have unlinked it from its chain.
func (s *MarkSweepSpace) ReleaseBlock(d block.Data) error {
	start := d.Start()
	s.md.ClearRange(metadata.AllocBit, start, format.BytesInBlock)
	s.md.ClearRange(s.mark, start, format.BytesInBlock)
	if err := s.ReleasePages(start); err != nil {
		return err
	}
	s.blocks.Add(-1)
	return nil
}

// RetainBlock parks an empty block in the pool. Its pages stay committed and
// reserved. The caller must already have unlinked it from its chain.
func (s *MarkSweepSpace) RetainBlock(d block.Data) {
	start := d.Start()
	s.md.ClearRange(metadata.AllocBit, start, format.BytesInBlock)
	s.md.ClearRange(s.mark, start, format.BytesInBlock)

	s.emptyMu.Lock()
	s.empty = append(s.empty, start)
	s.emptyMu.Unlock()
}
