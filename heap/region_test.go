package heap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// newTestRegion reserves a small region and maps all of it.
func newTestRegion(t testing.TB, size uint64) (*Region, *Mmapper) {
	t.Helper()
	r, err := Reserve(size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	m := NewMmapper(r)
	require.NoError(t, m.EnsureMapped(r.Start(), format.BytesToPages(r.Size())))
	return r, m
}

func Test_Reserve_RoundsToChunk(t *testing.T) {
	r, err := Reserve(1)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(format.BytesInChunk), r.Size())
	require.Equal(t, types.Address(format.HeapStart), r.Start())
	require.True(t, r.Contains(r.Start()))
	require.False(t, r.Contains(r.End()))
}

func Test_Reserve_RejectsBadSizes(t *testing.T) {
	_, err := Reserve(0)
	require.True(t, errors.Is(err, ErrReserve))

	_, err = Reserve(format.MaxHeapBytes + 1)
	require.True(t, errors.Is(err, ErrReserve))
}

func Test_Region_WordAccess(t *testing.T) {
	r, _ := newTestRegion(t, format.BytesInChunk)

	addr := r.Start().Add(64)
	r.StoreWord(addr, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), r.LoadWord(addr))

	r.StoreAddress(addr, r.Start())
	require.Equal(t, r.Start(), r.LoadAddress(addr))

	r.Zero(addr, 8)
	require.Zero(t, r.LoadWord(addr))

	r.StoreU32(addr, 0xAABBCCDD)
	r.StoreU32(addr.Add(4), 7)
	require.Equal(t, uint32(0xAABBCCDD), r.LoadU32(addr))
	require.Equal(t, uint64(7)<<32|0xAABBCCDD, r.LoadWord(addr))

	b := r.Bytes(addr, 16)
	require.Len(t, b, 16)
	require.Equal(t, 16, cap(b), "Bytes must not expose memory past the range")
}

func Test_Region_OutOfRangeIsFatal(t *testing.T) {
	r, _ := newTestRegion(t, format.BytesInChunk)

	require.Panics(t, func() { r.LoadWord(r.End()) })
	require.Panics(t, func() { r.StoreWord(r.Start().Sub(8), 1) })
	require.Panics(t, func() { r.LoadU32(r.End().Sub(2)) })
	require.Panics(t, func() { r.Bytes(r.End().Sub(4), 8) })
	require.Panics(t, func() { r.Bytes(r.Start().Sub(8), 8) })
	require.True(t, errors.Is(r.CheckRange(r.End().Sub(4), 8), ErrOutOfRange))
}

func Test_Mmapper_MapsLazily(t *testing.T) {
	r, err := Reserve(2 * format.BytesInChunk)
	require.NoError(t, err)
	defer r.Close()

	m := NewMmapper(r)
	require.False(t, m.IsMapped(r.Start()))

	require.NoError(t, m.EnsureMapped(r.Start(), 1))
	require.True(t, m.IsMapped(r.Start()))
	require.False(t, m.IsMapped(r.Start().Add(format.BytesInChunk)))
	require.Equal(t, 1, m.MappedChunks())

	// Mapping again is a no-op.
	require.NoError(t, m.EnsureMapped(r.Start(), format.PagesInBlock))
	require.Equal(t, 1, m.MappedChunks())

	r.StoreWord(r.Start(), 7)
	require.NoError(t, m.Decommit(r.Start(), 1))
}

func Test_VMMap_ReserveAndLookup(t *testing.T) {
	r, err := Reserve(3 * format.BytesInChunk)
	require.NoError(t, err)
	defer r.Close()

	vm := NewVMMap(r)
	a, err := vm.Reserve(1)
	require.NoError(t, err)
	b, err := vm.Reserve(format.BytesInChunk)
	require.NoError(t, err)
	require.Equal(t, a.Add(format.BytesInChunk), b)

	require.NoError(t, vm.Insert(SpaceRange{Name: "a", Start: a, Extent: format.BytesInChunk}))
	require.NoError(t, vm.Insert(SpaceRange{Name: "b", Start: b, Extent: format.BytesInChunk}))
	// Idempotent.
	require.NoError(t, vm.Insert(SpaceRange{Name: "a", Start: a, Extent: format.BytesInChunk}))
	require.Len(t, vm.Ranges(), 2)

	name, ok := vm.SpaceOf(b.Add(100))
	require.True(t, ok)
	require.Equal(t, "b", name)

	_, ok = vm.SpaceOf(b.Add(format.BytesInChunk))
	require.False(t, ok)

	_, err = vm.Reserve(2 * format.BytesInChunk)
	require.True(t, errors.Is(err, ErrHeapExhausted))
}

func Test_VMMap_RejectsOverlap(t *testing.T) {
	r, err := Reserve(2 * format.BytesInChunk)
	require.NoError(t, err)
	defer r.Close()

	vm := NewVMMap(r)
	require.NoError(t, vm.Insert(SpaceRange{Name: "a", Start: r.Start(), Extent: format.BytesInChunk}))
	err = vm.Insert(SpaceRange{Name: "b", Start: r.Start(), Extent: 2 * format.BytesInChunk})
	require.True(t, errors.Is(err, ErrOverlap))
}
