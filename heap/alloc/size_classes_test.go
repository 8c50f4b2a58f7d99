package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

func Test_SizeClass_Boundaries(t *testing.T) {
	cases := []struct {
		size  uint64
		class int
	}{
		{0, 1},
		{1, 1},
		{8, 1},
		{9, 2},
		{16, 2},
		{64, 8},
		{65, 9},
		{80, 9},
		{81, 10},
		{96, 10},
		{128, 12},
		{129, 13},
		{4096 + 1, 33},
		{8192, 36},
	}
	for _, tc := range cases {
		require.Equal(t, tc.class, SizeClass(tc.size), "size %d", tc.size)
	}
}

func Test_SizeClass_Monotonic(t *testing.T) {
	prev := SizeClass(1)
	for s := uint64(2); s <= MaxSmallBytes; s++ {
		c := SizeClass(s)
		require.GreaterOrEqual(t, c, prev, "size %d", s)
		require.LessOrEqual(t, c, prev+1, "classes are dense at size %d", s)
		require.Equal(t, c, SizeClass(s), "stable at size %d", s)

		cell := ClassCellSize(c)
		require.GreaterOrEqual(t, cell, s)
		require.Zero(t, cell%format.BytesInWord)
		prev = c
	}
	require.Equal(t, NumClasses-1, prev)
}

func Test_SizeClass_AboveMaxPanics(t *testing.T) {
	require.Panics(t, func() { SizeClass(MaxSmallBytes + 1) })
	require.Panics(t, func() { ClassCellSize(0) })
	require.Panics(t, func() { ClassCellSize(NumClasses) })
}

func Test_Classes(t *testing.T) {
	classes := Classes()
	require.Len(t, classes, NumClasses-1)

	require.Equal(t, ClassInfo{Class: 1, MinBytes: 1, CellSize: 8, CellsPerBlock: 8189}, classes[0])
	require.Equal(t, uint64(MaxSmallBytes), classes[len(classes)-1].CellSize)
	for i := 1; i < len(classes); i++ {
		require.Greater(t, classes[i].CellSize, classes[i-1].CellSize)
		require.Equal(t, classes[i-1].CellSize+1, classes[i].MinBytes)
	}
}
