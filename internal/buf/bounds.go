// Package buf contains overflow-safe range arithmetic used before touching
// the backing memory of a heap region.
package buf

import (
	"math"

	"github.com/cockroachdb/errors"
)

// ErrRange reports an out-of-bounds or overflowing byte range.
var ErrRange = errors.New("buf: range out of bounds")

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// CheckRange validates that [off, off+n) lies within a buffer of length size
// and returns the exclusive end offset.
func CheckRange(size, off, n uint64) (uint64, error) {
	end, ok := AddOverflowSafe(off, n)
	if !ok {
		return 0, errors.Wrapf(ErrRange, "overflow: off=%d + n=%d", off, n)
	}
	if end > size {
		return 0, errors.Wrapf(ErrRange, "end=%d > len=%d", end, size)
	}
	return end, nil
}

// Slice returns b[off:off+n] if the range fits.
func Slice(b []byte, off, n uint64) ([]byte, bool) {
	end, err := CheckRange(uint64(len(b)), off, n)
	if err != nil {
		return nil, false
	}
	return b[off:end], true
}
