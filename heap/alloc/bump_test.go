package alloc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/internal/format"
)

func Test_Bump_Contiguous(t *testing.T) {
	ts := newTestSpaces(t, nil)
	ba := NewBump(1, ts.im)
	require.Zero(t, ba.Remaining())

	a, err := ba.Alloc(10, 0, 0)
	require.NoError(t, err)
	b, err := ba.Alloc(16, 8, 0)
	require.NoError(t, err)

	require.Equal(t, ts.im.Range().Start, a)
	require.Equal(t, a.Add(16), b, "sizes round up to a word")
	require.True(t, ts.im.IsAllocated(a))
	require.True(t, ts.im.IsAllocated(b))
	require.Equal(t, uint64(format.BytesInBlock-32), ba.Remaining())

	st := ba.Stats()
	require.EqualValues(t, 2, st.AllocCalls)
	require.EqualValues(t, 1, st.SlowPathCalls)
	require.EqualValues(t, 1, st.FastPathHits)
}

func Test_Bump_RefillExtendsRun(t *testing.T) {
	ts := newTestSpaces(t, nil)
	ba := NewBump(1, ts.im)

	_, err := ba.Alloc(format.BytesInBlock-8, 0, 0)
	require.NoError(t, err)
	tail, err := ba.Alloc(8, 0, 0)
	require.NoError(t, err)
	next, err := ba.Alloc(64, 0, 0)
	require.NoError(t, err)

	require.Equal(t, tail.Add(8), next, "adjacent refill continues the run")
	require.Equal(t, 2*format.PagesInBlock, ts.im.ReservedPages())
}

func Test_Bump_LargeRequest(t *testing.T) {
	ts := newTestSpaces(t, nil)
	ba := NewBump(1, ts.im)

	addr, err := ba.Alloc(5*format.BytesInBlock, 0, 0)
	require.NoError(t, err)
	require.False(t, addr.IsZero())
	require.Equal(t, 5*format.PagesInBlock, ts.im.ReservedPages())
}

func Test_Bump_CollectionRequired(t *testing.T) {
	ts := newTestSpaces(t, &pagePoller{limit: format.PagesInBlock})
	ba := NewBump(1, ts.im)

	_, err := ba.Alloc(format.BytesInBlock, 0, 0)
	require.NoError(t, err)
	_, err = ba.Alloc(8, 0, 0)
	require.True(t, errors.Is(err, space.ErrCollectionRequired))
}

func Test_LargeObject_Alloc(t *testing.T) {
	ts := newTestSpaces(t, nil)
	la := NewLargeObject(1, ts.los)

	a, err := la.Alloc(MaxSmallBytes+1, 0, 0)
	require.NoError(t, err)
	b, err := la.Alloc(100, 0, 0)
	require.NoError(t, err)

	require.True(t, a.IsAligned(format.BytesInPage))
	require.Equal(t, a.Add(3*format.BytesInPage), b)
	require.Equal(t, 2, ts.los.Objects())

	st := la.Stats()
	require.EqualValues(t, 2, st.AllocCalls)
	require.EqualValues(t, 4*format.BytesInPage, st.BytesAllocated)
	require.Panics(t, func() { _, _ = la.Alloc(100, 0, 4) })
}
