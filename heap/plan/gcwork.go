package plan

import (
	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/scheduler"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// StopMutators stops the world and turns the roots into trace packets.
type StopMutators struct {
	plan *FreeListMarkSweep
}

// Do implements scheduler.Work.
func (s *StopMutators) Do(w *scheduler.Worker) {
	p := s.plan
	p.binding.StopAllMutators(w.TLS)

	var packet []types.ObjectReference
	p.binding.ScanRoots(func(root types.ObjectReference) {
		if root.IsNull() {
			return
		}
		p.cycle.roots.Add(1)
		packet = append(packet, root)
		if len(packet) == EdgesPerPacket {
			w.AddWork(scheduler.Closure, NewProcessEdges(p, packet))
			packet = nil
		}
	})
	if len(packet) > 0 {
		w.AddWork(scheduler.Closure, NewProcessEdges(p, packet))
	}
}

// PrepareWork runs the plan's Prepare.
type PrepareWork struct {
	plan *FreeListMarkSweep
}

// Do implements scheduler.Work.
func (pw *PrepareWork) Do(w *scheduler.Worker) { pw.plan.Prepare(w.TLS) }

// ReleaseWork runs the plan's Release and queues one SweepChain per block
// chain.
type ReleaseWork struct {
	plan *FreeListMarkSweep
}

// Do implements scheduler.Work.
func (rw *ReleaseWork) Do(w *scheduler.Worker) {
	rw.plan.Release(w.TLS)
	for _, u := range rw.plan.sweepUnits() {
		w.AddWork(scheduler.Release, &SweepChain{plan: rw.plan, unit: u})
	}
}

// SweepChain sweeps one size-class chain of one allocator.
type SweepChain struct {
	plan *FreeListMarkSweep
	unit *alloc.SweepUnit
}

// Do implements scheduler.Work.
func (sc *SweepChain) Do(_ *scheduler.Worker) {
	rep := sc.unit.Run()
	sc.plan.cycle.addSweep(rep)
}

// ResumeMutators resets trigger state, ends the cycle's status and restarts
// the world. Trigger state is cleared first so that a poll from a resumed
// mutator is never lost.
type ResumeMutators struct {
	plan *FreeListMarkSweep
}

// Do implements scheduler.Work.
func (rm *ResumeMutators) Do(w *scheduler.Worker) {
	p := rm.plan
	p.pagesSinceGC.Store(0)
	p.requested.Store(false)
	p.phase.Store(int32(PhaseNone))
	p.setStatus(NotInGC)
	p.binding.ResumeMutators(w.TLS)
}

// EndOfGC is the cycle finalizer: it records the cycle's counters.
type EndOfGC struct {
	plan *FreeListMarkSweep
}

// Do implements scheduler.Work.
func (e *EndOfGC) Do(_ *scheduler.Worker) {
	p := e.plan
	n := p.gcCount.Add(1)

	cs := p.cycle.snapshot()
	cs.Cycle = n
	cs.PagesUsed = p.PagesUsed()
	p.mu.Lock()
	p.lastCycle = cs
	p.mu.Unlock()

	logger.L.Debug("gc end",
		"cycle", n,
		"roots", cs.Roots,
		"marked", cs.Marked,
		"live_cells", cs.LiveCells,
		"freed_cells", cs.FreedCells,
		"blocks_released", cs.BlocksReleased,
		"blocks_retained", cs.BlocksRetained,
		"used", cs.PagesUsed,
	)
}
