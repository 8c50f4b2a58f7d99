// Package mmtk is the entry point of the heap: it builds a plan from
// options, binds mutators and serves allocation requests with a single
// collect-and-retry on a full heap.
//
// An MMTK is constructed once and shared by reference. Options are copied
// at construction and never change afterwards.
//
// Example:
//
//	mm, err := mmtk.New(options.Default(), binding)
//	if err != nil {
//	    return err
//	}
//	defer mm.Close()
//
//	m := mm.BindMutator(tls)
//	addr, err := mm.Alloc(m, 24, 8, 0, types.SemanticsDefault)
package mmtk

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/heap/plan"
	"github.com/joshuapare/heapkit/heap/scheduler"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/heap/vm"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

var (
	// ErrUnsupportedPlan indicates a plan selector this build cannot run.
	ErrUnsupportedPlan = errors.New("mmtk: unsupported plan")

	// ErrClosed indicates use of a closed instance.
	ErrClosed = errors.New("mmtk: closed")
)

// MMTK is one heap instance.
type MMTK struct {
	opts    options.Options
	binding vm.Binding
	region  *heap.Region
	sched   *scheduler.Scheduler
	plan    *plan.FreeListMarkSweep

	retries atomic.Int64
	ooms    atomic.Int64
	closed  atomic.Bool
}

// New validates opts, reserves the heap and initializes the plan.
func New(opts options.Options, binding vm.Binding) (*MMTK, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Plan != options.FreeListMarkSweep {
		return nil, errors.Wrapf(ErrUnsupportedPlan, "%s", opts.Plan)
	}
	if binding == nil {
		return nil, errors.New("mmtk: nil binding")
	}

	region, err := heap.Reserve(plan.VirtualExtent(opts.HeapSize))
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(opts.Threads)
	p := plan.NewFreeListMarkSweep(opts, binding)
	if err := p.GCInit(region, sched); err != nil {
		_ = region.Close()
		return nil, err
	}

	return &MMTK{
		opts:    opts,
		binding: binding,
		region:  region,
		sched:   sched,
		plan:    p,
	}, nil
}

// Options returns the options the instance was built with.
func (mm *MMTK) Options() options.Options { return mm.opts }

// Plan returns the active plan.
func (mm *MMTK) Plan() *plan.FreeListMarkSweep { return mm.plan }

// Region returns the heap region, for bindings that store into objects.
func (mm *MMTK) Region() *heap.Region { return mm.region }

// BindMutator creates the allocation context for tls.
func (mm *MMTK) BindMutator(tls types.Thread) *plan.Mutator {
	return mm.plan.BindMutator(tls)
}

// DestroyMutator retires m. Its objects stay in the heap.
func (mm *MMTK) DestroyMutator(m *plan.Mutator) {
	mm.plan.DestroyMutator(m)
}

// Alloc allocates through m. If the heap is full it runs one collection and
// retries once; a second failure is reported as space.ErrOutOfMemory.
func (mm *MMTK) Alloc(m *plan.Mutator, size, align, offset uint64, kind types.AllocationSemantics) (types.Address, error) {
	if mm.closed.Load() {
		return types.Zero, ErrClosed
	}

	addr, err := m.Alloc(size, align, offset, kind)
	if errors.Is(err, space.ErrCollectionRequired) {
		mm.retries.Add(1)
		mm.plan.Collect(m.TLS(), plan.ReasonHeapFull)
		addr, err = m.Alloc(size, align, offset, kind)
		if errors.Is(err, space.ErrCollectionRequired) {
			mm.ooms.Add(1)
			logger.L.Warn("out of memory after collection",
				"tls", uint64(m.TLS()),
				"size", size,
				"kind", kind.String(),
				"used", mm.plan.PagesUsed(),
				"budget", mm.plan.BudgetPages(),
			)
			return types.Zero, errors.Wrapf(space.ErrOutOfMemory, "%d bytes (%s) after collection", size, kind)
		}
	}
	if err != nil {
		return types.Zero, err
	}
	return addr, nil
}

// HandleUserCollectionRequest runs a collection for an explicit request.
// It returns false when such requests are ignored by configuration.
func (mm *MMTK) HandleUserCollectionRequest(tls types.Thread) bool {
	return mm.plan.HandleUserCollectionRequest(tls, false)
}

// IsLive reports whether obj is an allocated object.
func (mm *MMTK) IsLive(obj types.ObjectReference) bool { return mm.plan.IsLive(obj) }

// Close releases the heap reservation. Addresses handed out become invalid.
func (mm *MMTK) Close() error {
	if !mm.closed.CompareAndSwap(false, true) {
		return nil
	}
	return mm.region.Close()
}
