package metadata

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

const testHeapSize = format.BytesInChunk

func newTestContext(t testing.TB) (*Context, Spec, Spec) {
	t.Helper()
	g, l, _ := Layout(testHeapSize, []Spec{AllocBit}, []Spec{NewLocalBitSpec("mark")})
	ctx, err := NewContext(format.HeapStart, testHeapSize, append(g, l...)...)
	require.NoError(t, err)
	return ctx, g[0], l[0]
}

func Test_Layout_NoOverlap(t *testing.T) {
	g, l, total := Layout(testHeapSize, []Spec{AllocBit}, []Spec{NewLocalBitSpec("a"), NewLocalBitSpec("b")})

	planeSize := AddressRangeSize(AllocBit, testHeapSize)
	require.Equal(t, uint64(testHeapSize/format.MinObjectSize/8), planeSize)
	require.Equal(t, uint64(0), g[0].Offset)
	require.Equal(t, planeSize, l[0].Offset)
	require.Equal(t, 2*planeSize, l[1].Offset)
	require.Equal(t, 3*planeSize, total)
	require.NoError(t, Verify(testHeapSize, total, append(g, l...)...))
}

func Test_Verify_DetectsOverlap(t *testing.T) {
	a := NewLocalBitSpec("a")
	b := NewLocalBitSpec("b")
	b.Offset = 8 // well inside a's range

	size := AddressRangeSize(a, testHeapSize) * 2
	err := Verify(testHeapSize, size, a, b)
	require.True(t, errors.Is(err, ErrOverlap), "got %v", err)

	require.Panics(t, func() { MustVerify(testHeapSize, size, a, b) })
}

func Test_Verify_RejectsBadSpecs(t *testing.T) {
	wide := Spec{Name: "wide", LogNumOfBits: 6, LogMinObjSize: 3}
	require.True(t, errors.Is(Verify(testHeapSize, 1<<30, wide), ErrBadSpec))

	s := NewLocalBitSpec("s")
	require.True(t, errors.Is(Verify(testHeapSize, 8, s), ErrBadSpec), "plane must fit in context")
}

func Test_Context_BitOps(t *testing.T) {
	ctx, alloc, mark := newTestContext(t)
	a := types.Address(format.HeapStart + 0x40)

	require.False(t, ctx.GetBit(alloc, a))
	ctx.SetBit(alloc, a)
	require.True(t, ctx.GetBit(alloc, a))
	require.False(t, ctx.GetBit(mark, a), "planes are independent")
	require.False(t, ctx.GetBit(alloc, a.Add(8)), "neighbouring granule untouched")

	require.True(t, ctx.TrySetBit(mark, a))
	require.False(t, ctx.TrySetBit(mark, a), "second test-and-set loses")

	ctx.ClearBit(alloc, a)
	require.False(t, ctx.GetBit(alloc, a))
}

func Test_Context_ClearRange(t *testing.T) {
	ctx, alloc, _ := newTestContext(t)
	base := types.Address(format.HeapStart + format.BytesInBlock)

	for off := uint64(0); off < 1024; off += 8 {
		ctx.SetBit(alloc, base.Add(off))
	}
	// Clear an unaligned middle section: [base+24, base+24+600).
	ctx.ClearRange(alloc, base.Add(24), 600)

	for off := uint64(0); off < 1024; off += 8 {
		inCleared := off >= 24 && off < 624
		require.Equal(t, !inCleared, ctx.GetBit(alloc, base.Add(off)), "offset %d", off)
	}
	require.Equal(t, 128-75, ctx.CountSet(alloc, base, 1024))
}

func Test_Context_OutsideHeapIsFatal(t *testing.T) {
	ctx, alloc, _ := newTestContext(t)
	require.Panics(t, func() { ctx.GetBit(alloc, 8) })
	require.Panics(t, func() { ctx.SetBit(alloc, format.HeapStart+testHeapSize) })
}

func Test_Context_ConcurrentTrySet(t *testing.T) {
	ctx, _, mark := newTestContext(t)
	base := types.Address(format.HeapStart)

	// 64 objects packed into two words; each is contended by 8 goroutines.
	var winners atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(0); i < 64; i++ {
				if ctx.TrySetBit(mark, base.Add(i*8)) {
					winners.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(64), winners.Load())
}
