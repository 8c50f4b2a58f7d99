package space

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/pages"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// budgetPoller requires a collection once more than limit pages are held
// across the registered spaces.
type budgetPoller struct {
	limit  int
	spaces []Space
	polls  int
	full   int
}

func (p *budgetPoller) PollForPages(_ Space, n int, spaceFull bool) bool {
	p.polls++
	if spaceFull {
		p.full++
		return true
	}
	used := 0
	for _, s := range p.spaces {
		used += s.ReservedPages()
	}
	return used+n > p.limit
}

type testHeap struct {
	region  *heap.Region
	mmapper *heap.Mmapper
	vm      *heap.VMMap
	md      *metadata.Context
	msMark  metadata.Spec
	imMark  metadata.Spec
	losMark metadata.Spec
}

func newTestHeap(t *testing.T, chunks int) *testHeap {
	t.Helper()
	r, err := heap.Reserve(uint64(chunks) * format.BytesInChunk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	g, l, _ := metadata.Layout(r.Size(),
		[]metadata.Spec{metadata.AllocBit},
		[]metadata.Spec{
			metadata.NewLocalBitSpec("ms-mark"),
			metadata.NewLocalBitSpec("im-mark"),
			metadata.NewLocalBitSpec("los-mark"),
		})
	md, err := metadata.NewContext(r.Start(), r.Size(), append(g, l...)...)
	require.NoError(t, err)

	return &testHeap{
		region:  r,
		mmapper: heap.NewMmapper(r),
		vm:      heap.NewVMMap(r),
		md:      md,
		msMark:  l[0],
		imMark:  l[1],
		losMark: l[2],
	}
}

func (h *testHeap) args(name string, extent uint64, p Poller) Args {
	return Args{Name: name, Extent: extent, Mmapper: h.mmapper, Metadata: h.md, Poller: p}
}

func Test_Space_InitIdempotent(t *testing.T) {
	h := newTestHeap(t, 2)
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, nil), h.msMark)

	require.NoError(t, ms.Init(h.vm))
	rng := ms.Range()
	require.NoError(t, ms.Init(h.vm))
	require.Equal(t, rng, ms.Range())
	require.Len(t, h.vm.Ranges(), 1)

	name, ok := h.vm.SpaceOf(rng.Start.Add(100))
	require.True(t, ok)
	require.Equal(t, "ms", name)
}

func Test_Space_AcquireBeforeInit(t *testing.T) {
	h := newTestHeap(t, 1)
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, nil), h.msMark)
	_, err := ms.AcquireBlock(0)
	require.True(t, errors.Is(err, ErrNotInitialized))
}

func Test_Space_AcquireCollectionRequired(t *testing.T) {
	h := newTestHeap(t, 2)
	p := &budgetPoller{limit: 2 * format.PagesInBlock}
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, p), h.msMark)
	p.spaces = []Space{ms}
	require.NoError(t, ms.Init(h.vm))

	for range 2 {
		start, err := ms.AcquireBlock(0)
		require.NoError(t, err)
		require.True(t, start.IsAligned(format.BytesInBlock))
		require.True(t, ms.InSpace(start))
		require.True(t, h.mmapper.IsMapped(start))
	}
	_, err := ms.AcquireBlock(0)
	require.True(t, errors.Is(err, ErrCollectionRequired))
	require.Equal(t, 2, ms.Blocks())
	require.Equal(t, 2*format.PagesInBlock, ms.ReservedPages())
}

func Test_Space_ExhaustedRangeAsksPoller(t *testing.T) {
	h := newTestHeap(t, 1)
	p := &budgetPoller{limit: 1 << 30}
	im := NewImmortalSpace(h.args("im", format.BytesInChunk, p), h.imMark)
	p.spaces = []Space{im}
	require.NoError(t, im.Init(h.vm))

	_, err := im.Acquire(0, int(format.BytesInChunk/format.BytesInPage))
	require.NoError(t, err)
	_, err = im.Acquire(0, 1)
	require.True(t, errors.Is(err, ErrCollectionRequired))
	require.Equal(t, 1, p.full)
}

func Test_Space_ExhaustedWithoutPollerIsOOM(t *testing.T) {
	h := newTestHeap(t, 1)
	im := NewImmortalSpace(h.args("im", format.BytesInChunk, nil), h.imMark)
	require.NoError(t, im.Init(h.vm))

	_, err := im.Acquire(0, int(format.BytesInChunk/format.BytesInPage)+1)
	require.True(t, errors.Is(err, ErrOutOfMemory))
}

func Test_MarkSweepSpace_SweepBlock(t *testing.T) {
	h := newTestHeap(t, 1)
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, nil), h.msMark)
	require.NoError(t, ms.Init(h.vm))

	start, err := ms.AcquireBlock(0)
	require.NoError(t, err)
	d := block.Carve(h.region, start, 32, block.Data{})
	total := block.CellsPerBlock(32)

	a, b, c := d.Pop(), d.Pop(), d.Pop()
	for _, cell := range []types.Address{a, b, c} {
		ms.SetAllocBit(cell)
	}
	require.True(t, ms.TraceObject(a.ToObjectReference()))
	require.False(t, ms.TraceObject(a.ToObjectReference()), "second trace does not re-mark")
	require.True(t, ms.TraceObject(c.ToObjectReference()))

	res := ms.SweepBlock(d)
	require.Equal(t, SweepResult{Live: 2, Freed: 1}, res)

	assert.True(t, ms.IsAllocated(a))
	assert.False(t, ms.IsMarked(a.ToObjectReference()), "mark cleared for next cycle")
	assert.False(t, ms.IsAllocated(b))
	assert.True(t, ms.IsAllocated(c))
	require.Equal(t, total-2, d.CountFree())
	require.Equal(t, b, d.Pop(), "freed cell is the next one handed out")
}

func Test_MarkSweepSpace_ReleaseBlock(t *testing.T) {
	h := newTestHeap(t, 1)
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, nil), h.msMark)
	require.NoError(t, ms.Init(h.vm))

	start, err := ms.AcquireBlock(0)
	require.NoError(t, err)
	d := block.Carve(h.region, start, 16, block.Data{})

	require.NoError(t, ms.ReleaseBlock(d))
	require.Zero(t, ms.Blocks())
	require.Zero(t, ms.ReservedPages())

	again, err := ms.AcquireBlock(0)
	require.NoError(t, err)
	require.Equal(t, start, again, "released block pages are reused")
}

func Test_MarkSweepSpace_RetainBlock(t *testing.T) {
	h := newTestHeap(t, 2)
	p := &budgetPoller{limit: format.PagesInBlock}
	ms := NewMarkSweepSpace(h.args("ms", format.BytesInChunk, p), h.msMark)
	p.spaces = []Space{ms}
	require.NoError(t, ms.Init(h.vm))

	start, err := ms.AcquireBlock(0)
	require.NoError(t, err)
	d := block.Carve(h.region, start, 16, block.Data{})
	cell := d.Pop()
	ms.SetAllocBit(cell)
	ms.TraceObject(cell.ToObjectReference())

	ms.RetainBlock(d)
	require.Equal(t, 1, ms.Blocks())
	require.Equal(t, 1, ms.EmptyBlocks())
	require.Equal(t, format.PagesInBlock, ms.ReservedPages())
	assert.False(t, ms.IsAllocated(cell))
	assert.False(t, ms.IsMarked(cell.ToObjectReference()))

	polls := p.polls
	again, err := ms.AcquireBlock(0)
	require.NoError(t, err, "a pooled block is handed out even at the budget")
	require.Equal(t, start, again)
	require.Equal(t, polls, p.polls, "pooled blocks do not poll")
	require.Zero(t, ms.EmptyBlocks())
	require.Equal(t, 1, ms.Blocks())

	_, err = ms.AcquireBlock(0)
	require.True(t, errors.Is(err, ErrCollectionRequired))
}

func Test_ImmortalSpace_PrepareClearsMarks(t *testing.T) {
	h := newTestHeap(t, 1)
	im := NewImmortalSpace(h.args("im", format.BytesInChunk, nil), h.imMark)
	require.NoError(t, im.Init(h.vm))

	start, err := im.Acquire(0, 2)
	require.NoError(t, err)
	obj := start.Add(64).ToObjectReference()

	require.True(t, im.TraceObject(obj))
	require.True(t, im.IsMarked(obj))
	im.Prepare()
	require.False(t, im.IsMarked(obj))
	require.True(t, errors.Is(im.ReleasePages(start), pages.ErrNotSupported))
}

func Test_LargeObjectSpace_Release(t *testing.T) {
	h := newTestHeap(t, 2)
	los := NewLargeObjectSpace(h.args("los", format.BytesInChunk, nil), h.losMark)
	require.NoError(t, los.Init(h.vm))

	live, err := los.AllocLarge(0, 3*format.BytesInPage+1)
	require.NoError(t, err)
	dead, err := los.AllocLarge(0, 10_000)
	require.NoError(t, err)
	require.Equal(t, 2, los.Objects())
	require.Equal(t, 4+3, los.ReservedPages())
	require.True(t, los.IsAllocated(live))

	los.Prepare()
	require.True(t, los.TraceObject(live.ToObjectReference()))
	los.Release()

	require.Equal(t, 1, los.Objects())
	require.True(t, los.IsAllocated(live))
	require.False(t, los.IsAllocated(dead))
	require.False(t, los.IsMarked(live.ToObjectReference()))
	require.Equal(t, 4, los.ReservedPages())

	objs, npages := los.FreedTotals()
	require.Equal(t, 1, objs)
	require.Equal(t, 3, npages)
}
