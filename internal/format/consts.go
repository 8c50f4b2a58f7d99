// Package format holds the fixed layout constants of the managed heap and the
// low-level helpers used to read and write words inside it. It is independent
// from the policy packages so that spaces, allocators and the collector agree
// on a single definition of every size and offset.
package format

const (
	// LogBytesInWord is log2 of the machine word. The heap always uses 64-bit
	// words regardless of the host, so layouts are identical on every platform.
	LogBytesInWord = 3

	// BytesInWord is the size of a heap word (free-list links, trailer fields).
	BytesInWord = 1 << LogBytesInWord

	// LogBytesInPage is log2 of the page size handed out by page resources.
	LogBytesInPage = 12

	// BytesInPage is the page granularity of every space (4 KiB).
	BytesInPage = 1 << LogBytesInPage

	// LogBytesInBlock is log2 of the mark-sweep block size.
	LogBytesInBlock = 16

	// BytesInBlock is the size of a mark-sweep block (64 KiB).
	BytesInBlock = 1 << LogBytesInBlock

	// BlockMask extracts the offset of an address within its block.
	BlockMask = BytesInBlock - 1

	// PagesInBlock is the number of pages acquired for one block.
	PagesInBlock = BytesInBlock / BytesInPage

	// LogBytesInChunk is log2 of the mapping granularity (4 MiB). Space ranges
	// are chunk aligned and the mmapper maps whole chunks.
	LogBytesInChunk = 22

	// BytesInChunk is the mapping granularity.
	BytesInChunk = 1 << LogBytesInChunk

	// LogMinObjectSize is log2 of the smallest object the heap hands out.
	// Side metadata uses it as its address granularity.
	LogMinObjectSize = LogBytesInWord

	// MinObjectSize is the smallest object size (one word).
	MinObjectSize = 1 << LogMinObjectSize
)

const (
	// HeapStart is the virtual address of the first byte of the heap.
	// HeapStart maps to offset 0 of the reserved region, which keeps zero
	// free to act as the "no address" sentinel.
	HeapStart = 0x0000_1000_0000_0000

	// MaxHeapBytes caps the total virtual reservation (64 GiB).
	MaxHeapBytes = 1 << 36
)

// Block trailer layout. The trailer occupies the last TrailerSize bytes of a
// block; offsets are relative to the trailer address.
//
//	Offset  Size  Field
//	0x00    8     next  (trailer address of the next block in the chain, or 0)
//	0x08    8     free  (head of the intra-block free-cell list, or 0)
//	0x10    8     size  (cell size the block was carved for)
const (
	TrailerNextOffset = 0x00
	TrailerFreeOffset = 0x08
	TrailerSizeOffset = 0x10

	// TrailerSize is the total trailer size in bytes.
	TrailerSize = 3 * BytesInWord

	// BlockCellBytes is the part of a block available to cells.
	BlockCellBytes = BytesInBlock - TrailerSize
)
