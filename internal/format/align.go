package format

// Alignment utilities for heap layout. All alignments are powers of two.

// AlignUp returns n rounded up to the next multiple of align.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown returns n rounded down to a multiple of align.
func AlignDown(n, align uint64) uint64 {
	return n &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align.
func IsAligned(n, align uint64) bool {
	return n&(align-1) == 0
}

// AlignWord rounds n up to the next word boundary.
//
// Example:
//
//	AlignWord(1)  = 8
//	AlignWord(8)  = 8
//	AlignWord(9)  = 16
func AlignWord(n uint64) uint64 {
	return AlignUp(n, BytesInWord)
}

// AlignPage rounds n up to the next 4 KiB boundary.
func AlignPage(n uint64) uint64 {
	return AlignUp(n, BytesInPage)
}

// AlignChunk rounds n up to the next chunk boundary.
func AlignChunk(n uint64) uint64 {
	return AlignUp(n, BytesInChunk)
}

// BytesToPages returns the number of pages needed to hold n bytes.
func BytesToPages(n uint64) int {
	return int(AlignPage(n) >> LogBytesInPage)
}

// PagesToBytes converts a page count to bytes.
func PagesToBytes(pages int) uint64 {
	return uint64(pages) << LogBytesInPage
}

// BytesToWords returns ceil(n / BytesInWord).
func BytesToWords(n uint64) uint64 {
	return (n + BytesInWord - 1) >> LogBytesInWord
}
