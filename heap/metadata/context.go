package metadata

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/pkg/types"
)

// Context is the backing store for a set of laid-out specs covering one heap.
type Context struct {
	heapStart types.Address
	heapSize  uint64
	words     []uint32
	specs     []Spec
}

// NewContext allocates backing storage for specs and verifies their layout.
func NewContext(heapStart types.Address, heapSize uint64, specs ...Spec) (*Context, error) {
	var size uint64
	for _, s := range specs {
		size = max(size, s.Offset+AddressRangeSize(s, heapSize))
	}
	if err := Verify(heapSize, size, specs...); err != nil {
		return nil, err
	}
	return &Context{
		heapStart: heapStart,
		heapSize:  heapSize,
		words:     make([]uint32, (size+3)/4),
		specs:     append([]Spec(nil), specs...),
	}, nil
}

// Specs returns the specs this context was built for.
func (c *Context) Specs() []Spec { return append([]Spec(nil), c.specs...) }

// SizeBytes returns the backing store size.
func (c *Context) SizeBytes() uint64 { return uint64(len(c.words)) * 4 }

// bitIndex returns the context-wide bit index of the first bit for addr.
func (c *Context) bitIndex(s Spec, addr types.Address) uint64 {
	if addr < c.heapStart || addr.Diff(c.heapStart) >= c.heapSize {
		panic(errors.AssertionFailedf("metadata: %s outside heap for %s", addr, s.Name))
	}
	granule := addr.Diff(c.heapStart) >> s.LogMinObjSize
	return s.Offset*8 + granule<<s.LogNumOfBits
}

func (c *Context) bitLocation(s Spec, addr types.Address) (*uint32, uint32) {
	if s.LogNumOfBits != 0 {
		panic(errors.AssertionFailedf("metadata: bit access on %d-bit spec %s", 1<<s.LogNumOfBits, s.Name))
	}
	bit := c.bitIndex(s, addr)
	return &c.words[bit/32], 1 << (bit % 32)
}

// GetBit reports whether the bit for addr is set.
func (c *Context) GetBit(s Spec, addr types.Address) bool {
	w, mask := c.bitLocation(s, addr)
	return atomic.LoadUint32(w)&mask != 0
}

// SetBit sets the bit for addr.
func (c *Context) SetBit(s Spec, addr types.Address) {
	w, mask := c.bitLocation(s, addr)
	atomic.OrUint32(w, mask)
}

// ClearBit clears the bit for addr.
func (c *Context) ClearBit(s Spec, addr types.Address) {
	w, mask := c.bitLocation(s, addr)
	atomic.AndUint32(w, ^mask)
}

// TrySetBit sets the bit for addr and reports whether this call changed it
// from 0 to 1. Exactly one of several racing callers wins.
func (c *Context) TrySetBit(s Spec, addr types.Address) bool {
	w, mask := c.bitLocation(s, addr)
	return atomic.OrUint32(w, mask)&mask == 0
}

// ClearRange zeroes the plane for [start, start+bytes).
func (c *Context) ClearRange(s Spec, start types.Address, bytes uint64) {
	if bytes == 0 {
		return
	}
	first := c.bitIndex(s, start)
	last := c.bitIndex(s, start.Add(bytes-1)) + 1<<s.LogNumOfBits // exclusive

	for bit := first; bit < last; {
		wi := bit / 32
		lo := bit % 32
		if lo == 0 && last-bit >= 32 {
			atomic.StoreUint32(&c.words[wi], 0)
			bit += 32
			continue
		}
		hi := min(uint64(32), lo+(last-bit))
		var mask uint32
		for b := lo; b < hi; b++ {
			mask |= 1 << b
		}
		atomic.AndUint32(&c.words[wi], ^mask)
		bit += hi - lo
	}
}

// CountSet returns the number of set bits of a one-bit plane in
// [start, start+bytes).
func (c *Context) CountSet(s Spec, start types.Address, bytes uint64) int {
	n := 0
	step := uint64(1) << s.LogMinObjSize
	for a := start; a < start.Add(bytes); a = a.Add(step) {
		if c.GetBit(s, a) {
			n++
		}
	}
	return n
}
