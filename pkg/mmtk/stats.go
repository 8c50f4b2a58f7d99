package mmtk

import (
	"io"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/joshuapare/heapkit/heap/plan"
	"github.com/joshuapare/heapkit/internal/format"
)

// Stats is a snapshot of an instance.
type Stats struct {
	plan.Stats
	ReservedBytes uint64
	MappedChunks  int
	Retries       int64 // allocations that needed a collect-and-retry
	OutOfMemory   int64 // retries that still failed
}

// Stats returns a snapshot of the instance.
func (mm *MMTK) Stats() Stats {
	return Stats{
		Stats:         mm.plan.Stats(),
		ReservedBytes: mm.region.Size(),
		MappedChunks:  mm.plan.Mmapper().MappedChunks(),
		Retries:       mm.retries.Load(),
		OutOfMemory:   mm.ooms.Load(),
	}
}

// UsedBytes returns the bytes of pages in use.
func (s Stats) UsedBytes() uint64 { return format.PagesToBytes(s.PagesUsed) }

// BudgetBytes returns the heap budget in bytes.
func (s Stats) BudgetBytes() uint64 { return format.PagesToBytes(s.BudgetPages) }

// WriteJSON streams s as a JSON object to out.
func (s Stats) WriteJSON(out io.Writer) error {
	w := jwriter.NewStreamingWriter(out, 1024)
	s.writeObject(&w)
	if err := w.Error(); err != nil {
		return err
	}
	return w.Flush()
}

// JSON returns s encoded as a JSON object.
func (s Stats) JSON() ([]byte, error) {
	w := jwriter.NewWriter()
	s.writeObject(&w)
	return w.Bytes(), w.Error()
}

func (s Stats) writeObject(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("plan").String(s.Plan)
	obj.Name("status").String(s.Status.String())
	obj.Name("gcCount").Int(int(s.GCCount))
	obj.Name("heapFullTriggers").Int(int(s.HeapFullTriggers))
	obj.Name("userTriggers").Int(int(s.UserTriggers))
	obj.Name("budgetPages").Int(s.BudgetPages)
	obj.Name("pagesUsed").Int(s.PagesUsed)
	obj.Name("reservedBytes").Float64(float64(s.ReservedBytes))
	obj.Name("mappedChunks").Int(s.MappedChunks)
	obj.Name("mutators").Int(s.Mutators)
	obj.Name("retries").Int(int(s.Retries))
	obj.Name("outOfMemory").Int(int(s.OutOfMemory))

	spaces := obj.Name("spaces").Array()
	for _, sp := range s.Spaces {
		so := spaces.Object()
		so.Name("name").String(sp.Name)
		so.Name("reservedPages").Int(sp.ReservedPages)
		so.Maybe("blocks", sp.Blocks > 0).Int(sp.Blocks)
		so.Maybe("emptyBlocks", sp.EmptyBlocks > 0).Int(sp.EmptyBlocks)
		so.End()
	}
	spaces.End()

	a := obj.Name("alloc").Object()
	a.Name("allocCalls").Int(int(s.Alloc.AllocCalls))
	a.Name("fastPathHits").Int(int(s.Alloc.FastPathHits))
	a.Name("slowPathCalls").Int(int(s.Alloc.SlowPathCalls))
	a.Name("blocksAcquired").Int(int(s.Alloc.BlocksAcquired))
	a.Name("bytesAllocated").Int(int(s.Alloc.BytesAllocated))
	a.Name("cellsFreed").Int(int(s.Alloc.CellsFreed))
	a.Name("blocksReleased").Int(int(s.Alloc.BlocksReleased))
	a.Name("blocksRetained").Int(int(s.Alloc.BlocksRetained))
	a.End()

	c := obj.Name("lastCycle").Object()
	c.Name("cycle").Int(int(s.LastCycle.Cycle))
	c.Name("roots").Int(int(s.LastCycle.Roots))
	c.Name("marked").Int(int(s.LastCycle.Marked))
	c.Name("scanned").Int(int(s.LastCycle.Scanned))
	c.Name("sweptBlocks").Int(int(s.LastCycle.SweptBlocks))
	c.Name("liveCells").Int(int(s.LastCycle.LiveCells))
	c.Name("freedCells").Int(int(s.LastCycle.FreedCells))
	c.Name("blocksReleased").Int(int(s.LastCycle.BlocksReleased))
	c.Name("blocksRetained").Int(int(s.LastCycle.BlocksRetained))
	c.Name("pagesUsed").Int(s.LastCycle.PagesUsed)
	c.End()

	obj.End()
}
