package plan

import (
	"sync"
	"sync/atomic"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// BasePlan holds the state shared by every plan: status, budget, trigger
// bookkeeping and the mutator registry.
type BasePlan struct {
	opts        options.Options
	budgetPages int

	status       atomic.Int32
	phase        atomic.Int32
	requested    atomic.Bool  // a collection is required and has not run yet
	pagesSinceGC atomic.Int64 // pages granted since the last cycle
	gcCount      atomic.Int64
	heapFull     atomic.Int64 // cycles triggered by the budget or a full space
	userGCs      atomic.Int64 // cycles triggered by explicit requests

	// gcMu serializes collections and mutator registration.
	gcMu sync.Mutex

	mu           sync.Mutex
	mutators     map[types.Thread]*Mutator
	retiredStats alloc.Stats
	lastCycle    CycleStats
}

func newBasePlan(opts options.Options) BasePlan {
	return BasePlan{
		opts:        opts,
		budgetPages: int(opts.HeapSize >> format.LogBytesInPage),
		mutators:    make(map[types.Thread]*Mutator),
	}
}

// Options returns the frozen options.
func (b *BasePlan) Options() options.Options { return b.opts }

// Status returns the collection status.
func (b *BasePlan) Status() GCStatus { return GCStatus(b.status.Load()) }

// Phase returns the phase within GcProper.
func (b *BasePlan) Phase() Phase { return Phase(b.phase.Load()) }

func (b *BasePlan) setStatus(s GCStatus) {
	old := GCStatus(b.status.Swap(int32(s)))
	logger.L.Debug("gc status", "from", old.String(), "to", s.String())
}

// GCCount returns the number of completed cycles.
func (b *BasePlan) GCCount() int64 { return b.gcCount.Load() }

// BudgetPages returns the heap budget in pages.
func (b *BasePlan) BudgetPages() int { return b.budgetPages }

// IsCollectionRequested reports whether a poll has asked for a collection
// that has not run yet.
func (b *BasePlan) IsCollectionRequested() bool { return b.requested.Load() }

// stressTriggered reports whether granting pending pages passes the stress
// threshold. A cycle always grants at least one request.
func (b *BasePlan) stressTriggered(pending int) bool {
	if b.opts.StressFactor == 0 {
		return false
	}
	since := b.pagesSinceGC.Load()
	return since > 0 && format.PagesToBytes(int(since)+pending) > b.opts.StressFactor
}

// registerMutator adds m to the registry.
func (b *BasePlan) registerMutator(m *Mutator) {
	b.mu.Lock()
	b.mutators[m.tls] = m
	b.mu.Unlock()
}

// unregisterMutator removes m and keeps its counters.
func (b *BasePlan) unregisterMutator(m *Mutator) {
	b.mu.Lock()
	delete(b.mutators, m.tls)
	b.retiredStats = b.retiredStats.Add(m.Stats())
	b.mu.Unlock()
}

// Mutators returns a snapshot of the registered mutators.
func (b *BasePlan) Mutators() []*Mutator {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Mutator, 0, len(b.mutators))
	for _, m := range b.mutators {
		out = append(out, m)
	}
	return out
}

// allocStats sums the counters of live and destroyed mutators.
func (b *BasePlan) allocStats() alloc.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.retiredStats
	for _, m := range b.mutators {
		total = total.Add(m.Stats())
	}
	return total
}
