package block

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Data is a typed handle to a block trailer. The zero Data is "no block".
type Data struct {
	region *heap.Region
	addr   types.Address
}

// FromAddress returns the trailer of the block containing addr.
func FromAddress(region *heap.Region, addr types.Address) Data {
	start := addr.AlignDown(format.BytesInBlock)
	return Data{region: region, addr: start.Add(format.BlockCellBytes)}
}

// FromTrailer wraps a trailer address read from a chain link. A zero address
// yields the zero Data.
func FromTrailer(region *heap.Region, trailer types.Address) Data {
	if trailer.IsZero() {
		return Data{}
	}
	if trailer.Diff(trailer.AlignDown(format.BytesInBlock)) != format.BlockCellBytes {
		panic(errors.AssertionFailedf("block: %s is not a trailer address", trailer))
	}
	return Data{region: region, addr: trailer}
}

// IsZero reports whether d is "no block".
func (d Data) IsZero() bool { return d.addr.IsZero() }

// Addr returns the trailer address, the value stored in chain links.
func (d Data) Addr() types.Address { return d.addr }

// Start returns the first address of the block.
func (d Data) Start() types.Address { return d.addr.Sub(format.BlockCellBytes) }

// Limit returns the first address cells may not occupy (the trailer).
func (d Data) Limit() types.Address { return d.addr }

// Next returns the next block in the size-class chain.
func (d Data) Next() Data {
	return FromTrailer(d.region, d.region.LoadAddress(d.addr.Add(format.TrailerNextOffset)))
}

// SetNext links next after d. A zero next ends the chain.
func (d Data) SetNext(next Data) {
	d.region.StoreAddress(d.addr.Add(format.TrailerNextOffset), next.addr)
}

// Free returns the head of the free-cell chain, or zero when exhausted.
func (d Data) Free() types.Address {
	return d.region.LoadAddress(d.addr.Add(format.TrailerFreeOffset))
}

// SetFree replaces the free-cell chain head.
func (d Data) SetFree(cell types.Address) {
	d.region.StoreAddress(d.addr.Add(format.TrailerFreeOffset), cell)
}

// CellSize returns the cell size the block was carved for.
func (d Data) CellSize() uint64 {
	return d.region.LoadWord(d.addr.Add(format.TrailerSizeOffset))
}

// SetCellSize records the cell size.
func (d Data) SetCellSize(size uint64) {
	d.region.StoreWord(d.addr.Add(format.TrailerSizeOffset), size)
}

// CellsPerBlock returns how many cells of cellSize fit before the trailer.
func CellsPerBlock(cellSize uint64) int {
	return int(format.BlockCellBytes / cellSize)
}

// linkSlot is the address of a cell's free-chain link (its last word).
func linkSlot(cell types.Address, cellSize uint64) types.Address {
	return cell.Add(cellSize - format.BytesInWord)
}

// checkCell panics unless cell lies on d's cell grid.
func (d Data) checkCell(cell types.Address, size uint64) {
	switch {
	case size < format.MinObjectSize || size%format.BytesInWord != 0 || size > format.BlockCellBytes:
		panic(errors.AssertionFailedf("block %s: inconsistent cell size %d", d.Start(), size))
	case cell < d.Start() || cell.Add(size) > d.Limit():
		panic(errors.AssertionFailedf("block %s: free pointer %s outside block", d.Start(), cell))
	case cell.Diff(d.Start())%size != 0:
		panic(errors.AssertionFailedf("block %s: free pointer %s off the %d-byte cell grid", d.Start(), cell, size))
	}
}
