package plan

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/scheduler"
	"github.com/joshuapare/heapkit/heap/space"
	"github.com/joshuapare/heapkit/pkg/types"
)

// ErrAlreadyInitialized indicates a second GCInit.
var ErrAlreadyInitialized = errors.New("plan: already initialized")

// GCStatus is the collection state of a plan.
type GCStatus int32

const (
	NotInGC GCStatus = iota
	GcPrepare
	GcProper
)

func (s GCStatus) String() string {
	switch s {
	case NotInGC:
		return "NotInGC"
	case GcPrepare:
		return "GcPrepare"
	case GcProper:
		return "GcProper"
	default:
		return "unknown"
	}
}

// Phase refines GcProper.
type Phase int32

const (
	PhaseNone Phase = iota
	PhaseTracing
	PhaseSweeping
)

func (p Phase) String() string {
	switch p {
	case PhaseTracing:
		return "tracing"
	case PhaseSweeping:
		return "sweeping"
	default:
		return "none"
	}
}

// AllocatorSelector names one of a mutator's allocators.
type AllocatorSelector int

const (
	SelectFreeList AllocatorSelector = iota
	SelectBump
	SelectLargeObject
)

func (a AllocatorSelector) String() string {
	switch a {
	case SelectFreeList:
		return "freelist"
	case SelectBump:
		return "bump"
	case SelectLargeObject:
		return "los"
	default:
		return "unknown"
	}
}

// Constraints describes properties the host runtime must respect.
type Constraints struct {
	MovesObjects          bool
	NeedsWriteBarrier     bool
	MaxNonLOSDefaultBytes uint64 // larger default requests go to the LOS
}

// Plan is the policy contract.
type Plan interface {
	Name() string
	Constraints() Constraints

	// GCInit creates the plan's spaces inside region and binds the scheduler.
	GCInit(region *heap.Region, sched *scheduler.Scheduler) error

	BindMutator(tls types.Thread) *Mutator
	DestroyMutator(m *Mutator)

	// ScheduleCollection queues one cycle's work on the scheduler.
	ScheduleCollection(tls types.Thread)
	Prepare(tls types.Thread)
	Release(tls types.Thread)

	// Collect runs one full cycle, or waits for the one already running.
	Collect(tls types.Thread, reason string)

	CollectionRequired(spaceFull bool, s space.Space) bool
	PagesUsed() int
	SelectAllocator(kind types.AllocationSemantics, size uint64) AllocatorSelector

	Status() GCStatus
	Stats() Stats
}
