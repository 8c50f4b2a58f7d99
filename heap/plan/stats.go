package plan

import (
	"sync/atomic"

	"github.com/joshuapare/heapkit/heap/alloc"
)

// CycleStats describes one completed collection.
type CycleStats struct {
	Cycle          int64
	Roots          int64
	Marked         int64
	Scanned        int64
	SweptBlocks    int64
	LiveCells      int64
	FreedCells     int64
	BlocksReleased int64
	BlocksRetained int64
	PagesUsed      int // after the cycle
}

// cycleCounters accumulates CycleStats from concurrent work items.
type cycleCounters struct {
	roots          atomic.Int64
	marked         atomic.Int64
	scanned        atomic.Int64
	sweptBlocks    atomic.Int64
	liveCells      atomic.Int64
	freedCells     atomic.Int64
	blocksReleased atomic.Int64
	blocksRetained atomic.Int64
}

func (c *cycleCounters) reset() {
	c.roots.Store(0)
	c.marked.Store(0)
	c.scanned.Store(0)
	c.sweptBlocks.Store(0)
	c.liveCells.Store(0)
	c.freedCells.Store(0)
	c.blocksReleased.Store(0)
	c.blocksRetained.Store(0)
}

func (c *cycleCounters) addSweep(r alloc.SweepReport) {
	c.sweptBlocks.Add(int64(r.Blocks))
	c.liveCells.Add(int64(r.Live))
	c.freedCells.Add(int64(r.Freed))
	c.blocksReleased.Add(int64(r.BlocksReleased))
	c.blocksRetained.Add(int64(r.BlocksRetained))
}

func (c *cycleCounters) snapshot() CycleStats {
	return CycleStats{
		Roots:          c.roots.Load(),
		Marked:         c.marked.Load(),
		Scanned:        c.scanned.Load(),
		SweptBlocks:    c.sweptBlocks.Load(),
		LiveCells:      c.liveCells.Load(),
		FreedCells:     c.freedCells.Load(),
		BlocksReleased: c.blocksReleased.Load(),
		BlocksRetained: c.blocksRetained.Load(),
	}
}

// Stats is a point-in-time view of a plan.
type Stats struct {
	Plan             string
	Status           GCStatus
	GCCount          int64
	HeapFullTriggers int64
	UserTriggers     int64
	BudgetPages      int
	PagesUsed        int
	Spaces           []SpaceStats
	Mutators         int
	Alloc            alloc.Stats
	LastCycle        CycleStats
}

// SpaceStats describes one space.
type SpaceStats struct {
	Name          string
	ReservedPages int
	Blocks        int // mark-sweep blocks, or large objects
	EmptyBlocks   int // pooled mark-sweep blocks
}

// Stats implements Plan.
func (p *FreeListMarkSweep) Stats() Stats {
	p.mu.Lock()
	last := p.lastCycle
	mutators := len(p.mutators)
	p.mu.Unlock()

	return Stats{
		Plan:             p.Name(),
		Status:           p.Status(),
		GCCount:          p.gcCount.Load(),
		HeapFullTriggers: p.heapFull.Load(),
		UserTriggers:     p.userGCs.Load(),
		BudgetPages:      p.budgetPages,
		PagesUsed:        p.PagesUsed(),
		Spaces: []SpaceStats{
			{Name: p.ms.Name(), ReservedPages: p.ms.ReservedPages(), Blocks: p.ms.Blocks(), EmptyBlocks: p.ms.EmptyBlocks()},
			{Name: p.im.Name(), ReservedPages: p.im.ReservedPages()},
			{Name: p.los.Name(), ReservedPages: p.los.ReservedPages(), Blocks: p.los.Objects()},
		},
		Mutators:  mutators,
		Alloc:     p.allocStats(),
		LastCycle: last,
	}
}
