package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/internal/format"
)

// pagePoller requires a collection once a space would exceed limit pages.
// A zero limit never requires one.
type pagePoller struct {
	limit int
}

func (p *pagePoller) PollForPages(s space.Space, n int, spaceFull bool) bool {
	if spaceFull {
		return true
	}
	return p.limit > 0 && s.ReservedPages()+n > p.limit
}

type testSpaces struct {
	region *heap.Region
	md     *metadata.Context
	ms     *space.MarkSweepSpace
	im     *space.ImmortalSpace
	los    *space.LargeObjectSpace
}

// newTestSpaces builds one chunk-sized space of each kind, all sharing p.
func newTestSpaces(t *testing.T, p space.Poller) *testSpaces {
	t.Helper()
	r, err := heap.Reserve(3 * format.BytesInChunk)
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

	mm := heap.NewMmapper(r)
	vm := heap.NewVMMap(r)
	args := func(name string) space.Args {
		return space.Args{Name: name, Extent: format.BytesInChunk, Mmapper: mm, Metadata: md, Poller: p}
	}

	ts := &testSpaces{
		region: r,
		md:     md,
		ms:     space.NewMarkSweepSpace(args("ms"), l[0]),
		im:     space.NewImmortalSpace(args("im"), l[1]),
		los:    space.NewLargeObjectSpace(args("los"), l[2]),
	}
	require.NoError(t, ts.ms.Init(vm))
	require.NoError(t, ts.im.Init(vm))
	require.NoError(t, ts.los.Init(vm))
	return ts
}

// sweepAll runs every sweep unit of fa serially and sums the reports.
func sweepAll(fa *FreeListAllocator, reclaim bool) SweepReport {
	var total SweepReport
	for _, u := range fa.Sweep(reclaim) {
		rep := u.Run()
		total.Blocks += rep.Blocks
		total.Live += rep.Live
		total.Freed += rep.Freed
		total.BlocksReleased += rep.BlocksReleased
		total.BlocksRetained += rep.BlocksRetained
	}
	return total
}
