package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{4097, BytesInPage, 8192},
		{BytesInBlock - 1, BytesInBlock, BytesInBlock},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, AlignUp(tt.n, tt.align), "AlignUp(%d, %d)", tt.n, tt.align)
	}
}

func TestAlignDownAndIsAligned(t *testing.T) {
	require.Equal(t, uint64(0x10000), AlignDown(0x1ffff, BytesInBlock))
	require.True(t, IsAligned(HeapStart, BytesInChunk))
	require.False(t, IsAligned(HeapStart+8, BytesInBlock))
}

func TestPageConversions(t *testing.T) {
	require.Equal(t, 1, BytesToPages(1))
	require.Equal(t, 16, BytesToPages(BytesInBlock))
	require.Equal(t, uint64(BytesInBlock), PagesToBytes(PagesInBlock))
	require.Equal(t, uint64(2), BytesToWords(9))
}

func TestTrailerLayout(t *testing.T) {
	require.Equal(t, 24, TrailerSize)
	require.Equal(t, BytesInBlock-24, BlockCellBytes)
	require.Less(t, TrailerSizeOffset, TrailerSize)
}

func TestWordEncoding(t *testing.T) {
	b := make([]byte, 16)
	PutWord(b, 8, 0xdeadbeefcafef00d)
	require.Equal(t, uint64(0xdeadbeefcafef00d), ReadWord(b, 8))
	require.Equal(t, byte(0x0d), b[8], "little-endian low byte first")
	PutU32(b, 0, 42)
	require.Equal(t, uint32(42), ReadU32(b, 0))
}
