package heap

import "github.com/cockroachdb/errors"

var (
	// ErrReserve indicates that the virtual reservation could not be created.
	ErrReserve = errors.New("heap: reserve failed")

	// ErrOutOfRange indicates an address range outside the reserved region.
	ErrOutOfRange = errors.New("heap: address out of range")

	// ErrOverlap indicates two space ranges that overlap in the VM map.
	ErrOverlap = errors.New("heap: overlapping space ranges")

	// ErrHeapExhausted indicates that no virtual range is left for a space.
	ErrHeapExhausted = errors.New("heap: virtual address range exhausted")

	// ErrMap indicates that committing or decommitting pages failed.
	ErrMap = errors.New("heap: map failed")
)
