package alloc

import (
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

const (
	// MaxSmallWords is the largest request, in words, served by size classes.
	MaxSmallWords = 1024

	// MaxSmallBytes is the largest request, in bytes, served by size classes.
	MaxSmallBytes = MaxSmallWords * format.BytesInWord

	// NumClasses is one past the largest class index. Class 0 is unused.
	NumClasses = 37
)

// classCellSize[c] is the cell size of class c.
var classCellSize = newClassTable()

// newClassTable records, for every class, the largest size binned into it.
func newClassTable() [NumClasses]uint64 {
	var t [NumClasses]uint64
	for w := uint64(1); w <= MaxSmallWords; w++ {
		c := binWords(w)
		t[c] = max(t[c], w*format.BytesInWord)
	}
	return t
}

// binWords maps a word count to its class.
func binWords(w uint64) int {
	switch {
	case w <= 1:
		return 1
	case w <= 8:
		return int(w)
	case w > MaxSmallWords:
		panic(errors.AssertionFailedf("alloc: %d words exceeds the largest size class (%d words)", w, MaxSmallWords))
	}
	w--
	b := uint64(bits.Len64(w) - 1)
	return int((b<<2)+((w>>(b-2))&3)) - 3
}

// SizeClass returns the class serving a request of size bytes. Sizes above
// MaxSmallBytes are a routing bug and panic.
func SizeClass(size uint64) int {
	return binWords(format.BytesToWords(size))
}

// ClassCellSize returns the cell size of class c.
func ClassCellSize(c int) uint64 {
	if c <= 0 || c >= NumClasses {
		panic(errors.AssertionFailedf("alloc: size class %d out of range", c))
	}
	return classCellSize[c]
}

// ClassInfo describes one size class.
type ClassInfo struct {
	Class         int
	MinBytes      uint64
	CellSize      uint64
	CellsPerBlock int
}

// Classes returns every size class in ascending order.
func Classes() []ClassInfo {
	out := make([]ClassInfo, 0, NumClasses-1)
	var lower uint64 = 1
	for c := 1; c < NumClasses; c++ {
		cell := classCellSize[c]
		out = append(out, ClassInfo{
			Class:         c,
			MinBytes:      lower,
			CellSize:      cell,
			CellsPerBlock: int(format.BlockCellBytes / cell),
		})
		lower = cell + 1
	}
	return out
}
