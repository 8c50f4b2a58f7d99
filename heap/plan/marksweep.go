package plan

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/heap/scheduler"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/heap/vm"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Space names.
const (
	MarkSweepSpaceName   = "ms"
	ImmortalSpaceName    = "immortal"
	LargeObjectSpaceName = "los"
)

// spaceCount is the number of spaces reserved by FreeListMarkSweep.
const spaceCount = 3

// VirtualExtent returns the virtual reservation FreeListMarkSweep needs for
// a heap budget of heapSize bytes. Each space can grow to the full budget.
func VirtualExtent(heapSize uint64) uint64 {
	return spaceCount * format.AlignChunk(heapSize)
}

// FreeListMarkSweep is a non-moving, stop-the-world mark-sweep plan over
// size-segregated free-list blocks.
type FreeListMarkSweep struct {
	BasePlan
	binding vm.Binding

	region  *heap.Region
	mmapper *heap.Mmapper
	vmMap   *heap.VMMap
	md      *metadata.Context
	sched   *scheduler.Scheduler

	ms  *space.MarkSweepSpace
	im  *space.ImmortalSpace
	los *space.LargeObjectSpace

	// retired holds the block chains of destroyed mutators until a new
	// mutator adopts them. It is swept like any mutator's chains.
	retired *alloc.FreeListAllocator

	cycle cycleCounters
}

// NewFreeListMarkSweep creates an uninitialized plan. GCInit must run before
// any mutator is bound.
func NewFreeListMarkSweep(opts options.Options, binding vm.Binding) *FreeListMarkSweep {
	return &FreeListMarkSweep{BasePlan: newBasePlan(opts), binding: binding}
}

// Name implements Plan.
func (p *FreeListMarkSweep) Name() string { return options.FreeListMarkSweep.String() }

// Constraints implements Plan.
func (p *FreeListMarkSweep) Constraints() Constraints {
	return Constraints{MaxNonLOSDefaultBytes: alloc.MaxSmallBytes}
}

// GCInit implements Plan. It lays out side metadata (an overlap is fatal),
// reserves one range per space and registers them.
func (p *FreeListMarkSweep) GCInit(region *heap.Region, sched *scheduler.Scheduler) error {
	if p.region != nil {
		return ErrAlreadyInitialized
	}

	global, local, size := metadata.Layout(region.Size(),
		[]metadata.Spec{metadata.AllocBit},
		[]metadata.Spec{
			metadata.NewLocalBitSpec("ms-mark"),
			metadata.NewLocalBitSpec("immortal-mark"),
			metadata.NewLocalBitSpec("los-mark"),
		})
	specs := append(global, local...)
	metadata.MustVerify(region.Size(), size, specs...)

	md, err := metadata.NewContext(region.Start(), region.Size(), specs...)
	if err != nil {
		return errors.Wrap(err, "plan: side metadata")
	}

	p.region = region
	p.mmapper = heap.NewMmapper(region)
	p.vmMap = heap.NewVMMap(region)
	p.md = md
	p.sched = sched

	extent := format.AlignChunk(p.opts.HeapSize)
	args := func(name string) space.Args {
		return space.Args{Name: name, Extent: extent, Mmapper: p.mmapper, Metadata: md, Poller: p}
	}
	p.ms = space.NewMarkSweepSpace(args(MarkSweepSpaceName), local[0])
	p.im = space.NewImmortalSpace(args(ImmortalSpaceName), local[1])
	p.los = space.NewLargeObjectSpace(args(LargeObjectSpaceName), local[2])

	for _, s := range p.spaces() {
		if err := s.Init(p.vmMap); err != nil {
			return errors.Wrap(err, "plan: space init")
		}
	}
	p.retired = alloc.NewFreeList(0, p.ms)

	logger.L.Info("plan initialized",
		"plan", p.Name(),
		"heap_size", p.opts.HeapSize,
		"reserved", region.Size(),
		"metadata_bytes", md.SizeBytes(),
		"threads", sched.Threads(),
	)
	return nil
}

func (p *FreeListMarkSweep) spaces() []space.Space {
	return []space.Space{p.ms, p.im, p.los}
}

// MarkSweepSpace returns the small-object space.
func (p *FreeListMarkSweep) MarkSweepSpace() *space.MarkSweepSpace { return p.ms }

// ImmortalSpace returns the immortal space.
func (p *FreeListMarkSweep) ImmortalSpace() *space.ImmortalSpace { return p.im }

// LargeObjectSpace returns the large object space.
func (p *FreeListMarkSweep) LargeObjectSpace() *space.LargeObjectSpace { return p.los }

// Region returns the heap region.
func (p *FreeListMarkSweep) Region() *heap.Region { return p.region }

// Ranges returns the space ranges in address order.
func (p *FreeListMarkSweep) Ranges() []heap.SpaceRange { return p.vmMap.Ranges() }

// Mmapper returns the chunk mapper.
func (p *FreeListMarkSweep) Mmapper() *heap.Mmapper { return p.mmapper }

// Metadata returns the side metadata context.
func (p *FreeListMarkSweep) Metadata() *metadata.Context { return p.md }

// BindMutator implements Plan. A new mutator adopts any chains left by
// destroyed mutators.
func (p *FreeListMarkSweep) BindMutator(tls types.Thread) *Mutator {
	p.gcMu.Lock()
	defer p.gcMu.Unlock()

	m := &Mutator{
		tls:      tls,
		plan:     p,
		freeList: alloc.NewFreeList(tls, p.ms),
		bump:     alloc.NewBump(tls, p.im),
		los:      alloc.NewLargeObject(tls, p.los),
	}
	m.freeList.Adopt(p.retired)
	p.registerMutator(m)
	return m
}

// DestroyMutator implements Plan. The mutator's blocks stay in the heap and
// are swept until another mutator adopts them.
func (p *FreeListMarkSweep) DestroyMutator(m *Mutator) {
	p.gcMu.Lock()
	defer p.gcMu.Unlock()
	p.retired.Adopt(m.freeList)
	p.unregisterMutator(m)
}

// SelectAllocator implements Plan.
func (p *FreeListMarkSweep) SelectAllocator(kind types.AllocationSemantics, size uint64) AllocatorSelector {
	switch kind {
	case types.SemanticsImmortal:
		return SelectBump
	case types.SemanticsLos:
		return SelectLargeObject
	}
	if size > alloc.MaxSmallBytes {
		return SelectLargeObject
	}
	return SelectFreeList
}

// PagesUsed implements Plan.
func (p *FreeListMarkSweep) PagesUsed() int {
	n := 0
	for _, s := range p.spaces() {
		n += s.ReservedPages()
	}
	return n
}

// CollectionRequired implements Plan.
func (p *FreeListMarkSweep) CollectionRequired(spaceFull bool, s space.Space) bool {
	return p.collectionRequired(spaceFull, s, 0)
}

func (p *FreeListMarkSweep) collectionRequired(spaceFull bool, _ space.Space, pending int) bool {
	return spaceFull || p.PagesUsed()+pending > p.budgetPages || p.stressTriggered(pending)
}

// PollForPages implements space.Poller.
func (p *FreeListMarkSweep) PollForPages(s space.Space, pages int, spaceFull bool) bool {
	if p.Status() != NotInGC {
		return false
	}
	if !p.collectionRequired(spaceFull, s, pages) {
		p.pagesSinceGC.Add(int64(pages))
		return false
	}
	if p.requested.CompareAndSwap(false, true) {
		logger.L.Info("collection required",
			"space", s.Name(),
			"pages", pages,
			"space_full", spaceFull,
			"used", p.PagesUsed(),
			"budget", p.budgetPages,
		)
	}
	return true
}

// Collect implements Plan. If another thread is already collecting, the
// caller parks through the binding until that cycle ends. It then returns
// unless a poll has asked for a collection again since the world restarted,
// in which case it runs one itself.
func (p *FreeListMarkSweep) Collect(tls types.Thread, reason string) {
	for {
		start := p.gcCount.Load()
		if p.gcMu.TryLock() {
			break
		}
		p.binding.BlockForGC(tls, func() {
			p.gcMu.Lock()
			p.gcMu.Unlock() //nolint:staticcheck // empty section waits out the running cycle
		})
		if p.gcCount.Load() != start && !p.requested.Load() {
			return
		}
	}
	defer p.gcMu.Unlock()

	if reason == ReasonUser {
		p.userGCs.Add(1)
	} else {
		p.heapFull.Add(1)
	}
	logger.L.Debug("gc start", "cycle", p.gcCount.Load()+1, "reason", reason, "used", p.PagesUsed())

	p.setStatus(GcPrepare)
	p.ScheduleCollection(tls)
	p.sched.Execute(tls)
}

// Collection reasons.
const (
	ReasonHeapFull = "heap-full"
	ReasonUser     = "user"
)

// HandleUserCollectionRequest runs a cycle for an explicit request unless
// explicit requests are ignored and force is unset. It reports whether a
// cycle ran.
func (p *FreeListMarkSweep) HandleUserCollectionRequest(tls types.Thread, force bool) bool {
	if p.opts.IgnoreSystemGC && !force {
		return false
	}
	p.Collect(tls, ReasonUser)
	return true
}

// ScheduleCollection implements Plan.
func (p *FreeListMarkSweep) ScheduleCollection(_ types.Thread) {
	p.cycle.reset()
	p.sched.AddWork(scheduler.Unconstrained, &StopMutators{plan: p})
	p.sched.AddWork(scheduler.Prepare, &PrepareWork{plan: p})
	p.sched.AddWork(scheduler.Release, &ReleaseWork{plan: p})
	p.sched.AddWork(scheduler.Final, &ResumeMutators{plan: p})
	p.sched.SetFinalizer(&EndOfGC{plan: p})
}

// Prepare implements Plan.
func (p *FreeListMarkSweep) Prepare(_ types.Thread) {
	for _, s := range p.spaces() {
		s.Prepare()
	}
	p.setStatus(GcProper)
	p.phase.Store(int32(PhaseTracing))
}

// Release implements Plan. Space-level release runs here; block chains are
// swept by the SweepChain items ReleaseWork queues.
func (p *FreeListMarkSweep) Release(_ types.Thread) {
	p.phase.Store(int32(PhaseSweeping))
	for _, s := range p.spaces() {
		s.Release()
	}
}

// sweepUnits returns one unit per chain of every mutator and the retired set.
func (p *FreeListMarkSweep) sweepUnits() []*alloc.SweepUnit {
	reclaim := p.opts.ReclaimEmptyBlocks
	units := p.retired.Sweep(reclaim)
	for _, m := range p.Mutators() {
		units = append(units, m.freeList.Sweep(reclaim)...)
	}
	return units
}

// TraceObject marks obj in its space and reports whether this call marked
// it. Null references are never marked.
func (p *FreeListMarkSweep) TraceObject(obj types.ObjectReference) bool {
	if obj.IsNull() {
		return false
	}
	addr := obj.ToAddress()
	var s space.TracingSpace
	switch {
	case p.ms.InSpace(addr):
		s = p.ms
	case p.los.InSpace(addr):
		s = p.los
	case p.im.InSpace(addr):
		s = p.im
	default:
		panic(errors.AssertionFailedf("plan: traced %s outside every space", obj))
	}
	if !s.TraceObject(obj) {
		return false
	}
	p.cycle.marked.Add(1)
	return true
}

// IsLive reports whether obj survived the last cycle or was allocated since.
func (p *FreeListMarkSweep) IsLive(obj types.ObjectReference) bool {
	if obj.IsNull() || !p.region.Contains(obj.ToAddress()) {
		return false
	}
	return p.md.GetBit(metadata.AllocBit, obj.ToAddress())
}
