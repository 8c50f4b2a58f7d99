package heap

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Region is the reserved virtual range backing the whole heap.
type Region struct {
	start types.Address
	data  []byte
}

// Reserve creates a region of at least size bytes (rounded up to a chunk).
// The memory is not accessible until the Mmapper commits it.
func Reserve(size uint64) (*Region, error) {
	if size == 0 || size > format.MaxHeapBytes {
		return nil, errors.Wrapf(ErrReserve, "invalid heap size %d", size)
	}
	size = format.AlignChunk(size)

	data, err := reserve(size)
	if err != nil {
		return nil, errors.Wrapf(ErrReserve, "%v", err)
	}
	return &Region{start: format.HeapStart, data: data}, nil
}

// Close releases the reservation. The region must not be used afterwards.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	err := release(r.data)
	r.data = nil
	return err
}

// Start returns the first address of the region.
func (r *Region) Start() types.Address { return r.start }

// End returns the address just past the region.
func (r *Region) End() types.Address { return r.start.Add(uint64(len(r.data))) }

// Size returns the region size in bytes.
func (r *Region) Size() uint64 { return uint64(len(r.data)) }

// Contains reports whether addr lies in the region.
func (r *Region) Contains(addr types.Address) bool {
	return addr >= r.start && addr < r.End()
}

// CheckRange validates [addr, addr+n) against the region.
func (r *Region) CheckRange(addr types.Address, n uint64) error {
	if addr < r.start {
		return errors.Wrapf(ErrOutOfRange, "%s below heap start %s", addr, r.start)
	}
	if _, err := buf.CheckRange(r.Size(), addr.Diff(r.start), n); err != nil {
		return errors.Wrapf(ErrOutOfRange, "%s+%d: %v", addr, n, err)
	}
	return nil
}

// offset converts addr to an index into data. An out-of-range access is a
// fatal invariant violation: the allocator or collector computed a bad address.
func (r *Region) offset(addr types.Address, n uint64) int {
	if err := r.CheckRange(addr, n); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "heap: bad access"))
	}
	return int(addr.Diff(r.start))
}

// LoadWord reads the word at addr.
func (r *Region) LoadWord(addr types.Address) uint64 {
	return format.ReadWord(r.data, r.offset(addr, format.BytesInWord))
}

// StoreWord writes the word at addr.
func (r *Region) StoreWord(addr types.Address, v uint64) {
	format.PutWord(r.data, r.offset(addr, format.BytesInWord), v)
}

// LoadAddress reads a word at addr as an address.
func (r *Region) LoadAddress(addr types.Address) types.Address {
	return types.Address(r.LoadWord(addr))
}

// StoreAddress writes v as a word at addr.
func (r *Region) StoreAddress(addr, v types.Address) {
	r.StoreWord(addr, uint64(v))
}

// Zero clears n bytes starting at addr.
func (r *Region) Zero(addr types.Address, n uint64) {
	off := r.offset(addr, n)
	clear(r.data[off : off+int(n)])
}

// LoadU32 reads the 32-bit value at addr.
func (r *Region) LoadU32(addr types.Address) uint32 {
	return format.ReadU32(r.data, r.offset(addr, 4))
}

// StoreU32 writes a 32-bit value at addr.
func (r *Region) StoreU32(addr types.Address, v uint32) {
	format.PutU32(r.data, r.offset(addr, 4), v)
}

// Bytes returns the n bytes at addr. The slice aliases heap memory.
func (r *Region) Bytes(addr types.Address, n uint64) []byte {
	return r.span(addr, n)[:n:n]
}

// span returns the backing slice for [addr, addr+n). The mmapper uses it for
// chunk-aligned ranges.
func (r *Region) span(addr types.Address, n uint64) []byte {
	if addr < r.start {
		panic(errors.AssertionFailedf("heap: bad access %s below heap start %s", addr, r.start))
	}
	b, ok := buf.Slice(r.data, addr.Diff(r.start), n)
	if !ok {
		panic(errors.AssertionFailedf("heap: bad access %s+%d", addr, n))
	}
	return b
}
