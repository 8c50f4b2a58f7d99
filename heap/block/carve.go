package block

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Carve lays out cells of cellSize over the block at start, threads them onto
// the block's free chain and writes the trailer with next as the successor.
// Publishing the block as a chain head is left to the caller.
func Carve(region *heap.Region, start types.Address, cellSize uint64, next Data) Data {
	if !start.IsAligned(format.BytesInBlock) {
		panic(errors.AssertionFailedf("block: carve at unaligned %s", start))
	}
	if cellSize < format.MinObjectSize || cellSize%format.BytesInWord != 0 || cellSize > format.BlockCellBytes {
		panic(errors.AssertionFailedf("block: carve with cell size %d", cellSize))
	}

	d := FromAddress(region, start)
	limit := d.Limit()

	prev := types.Zero
	for cell := start; cell.Add(cellSize) <= limit; cell = cell.Add(cellSize) {
		region.StoreAddress(linkSlot(cell, cellSize), prev)
		prev = cell
	}

	d.SetNext(next)
	d.SetFree(prev)
	d.SetCellSize(cellSize)
	return d
}

// Pop removes and returns one free cell, or zero if the block is exhausted.
func (d Data) Pop() types.Address {
	cell := d.Free()
	if cell.IsZero() {
		return types.Zero
	}
	size := d.CellSize()
	d.checkCell(cell, size)

	next := d.region.LoadAddress(linkSlot(cell, size))
	if !next.IsZero() {
		d.checkCell(next, size)
	}
	d.SetFree(next)
	return cell
}

// Push returns cell to the block's free chain.
func (d Data) Push(cell types.Address) {
	size := d.CellSize()
	d.checkCell(cell, size)
	d.region.StoreAddress(linkSlot(cell, size), d.Free())
	d.SetFree(cell)
}

// ForEachCell calls fn for every cell address in the block, in address order.
func (d Data) ForEachCell(fn func(cell types.Address)) {
	size := d.CellSize()
	n := CellsPerBlock(size)
	cell := d.Start()
	for range n {
		fn(cell)
		cell = cell.Add(size)
	}
}

// CountFree walks the free chain and returns its length. A chain longer than
// the block can hold means the chain is corrupt.
func (d Data) CountFree() int {
	size := d.CellSize()
	limit := CellsPerBlock(size)
	n := 0
	for cell := d.Free(); !cell.IsZero(); cell = d.region.LoadAddress(linkSlot(cell, size)) {
		d.checkCell(cell, size)
		n++
		if n > limit {
			panic(errors.AssertionFailedf("block %s: free chain cycles", d.Start()))
		}
	}
	return n
}
