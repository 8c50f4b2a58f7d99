package space

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/pages"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

var (
	// ErrOutOfMemory indicates pages could not be obtained for a request.
	ErrOutOfMemory = errors.New("space: out of memory")

	// ErrCollectionRequired indicates the heap is full and a collection must
	// run before the request is retried.
	ErrCollectionRequired = errors.New("space: collection required")

	// ErrNotInitialized indicates use of a space before Init.
	ErrNotInitialized = errors.New("space: not initialized")
)

// Space is the contract shared by every space.
type Space interface {
	// Name returns the space name.
	Name() string

	// Init reserves and registers the space's virtual range. It is idempotent.
	Init(vm *heap.VMMap) error

	// Acquire returns pages mapped pages, or ErrCollectionRequired /
	// ErrOutOfMemory.
	Acquire(tls types.Thread, pages int) (types.Address, error)

	// ReleasePages returns a run previously returned by Acquire.
	ReleasePages(start types.Address) error

	// ReservedPages returns pages currently held by the space.
	ReservedPages() int

	// InSpace reports whether addr belongs to the space.
	InSpace(addr types.Address) bool

	// Prepare resets per-cycle state before marking.
	Prepare()

	// Release runs the space's own end-of-cycle work.
	Release()
}

// TracingSpace is a space that can mark objects.
type TracingSpace interface {
	Space

	// TraceObject marks obj and reports whether this call marked it.
	TraceObject(obj types.ObjectReference) bool

	// IsMarked reports whether obj is marked in the current cycle.
	IsMarked(obj types.ObjectReference) bool
}

// Poller decides whether a page request must wait for a collection.
type Poller interface {
	// PollForPages reports whether a collection is required before s can
	// hand out more pages. spaceFull is set when the space itself could
	// not satisfy the request.
	PollForPages(s Space, pages int, spaceFull bool) bool
}

// Args configures the common part of a space.
type Args struct {
	Name     string
	Extent   uint64 // virtual bytes reserved for the space
	Mmapper  *heap.Mmapper
	Metadata *metadata.Context
	Poller   Poller
}

// CommonSpace holds the state every space shares. Concrete spaces embed it.
type CommonSpace struct {
	name    string
	extent  uint64
	mmapper *heap.Mmapper
	md      *metadata.Context
	poller  Poller
	self    Space // the concrete space embedding this CommonSpace

	initOnce sync.Once
	initErr  error
	rng      heap.SpaceRange
	pr       pages.PageResource
}

func newCommon(args Args) CommonSpace {
	return CommonSpace{
		name:    args.Name,
		extent:  args.Extent,
		mmapper: args.Mmapper,
		md:      args.Metadata,
		poller:  args.Poller,
	}
}

// Name implements Space.
func (s *CommonSpace) Name() string { return s.name }

// Range returns the space's virtual range. Zero before Init.
func (s *CommonSpace) Range() heap.SpaceRange { return s.rng }

// Metadata returns the side metadata context.
func (s *CommonSpace) Metadata() *metadata.Context { return s.md }

// Region returns the heap region backing the space.
func (s *CommonSpace) Region() *heap.Region { return s.mmapper.Region() }

// SetPoller installs the collection poller. It must be called before the
// first Acquire.
func (s *CommonSpace) SetPoller(p Poller) { s.poller = p }

// init reserves the range and builds the page resource with newPR.
func (s *CommonSpace) init(vm *heap.VMMap, newPR func(heap.SpaceRange) pages.PageResource) error {
	s.initOnce.Do(func() {
		start, err := vm.Reserve(s.extent)
		if err != nil {
			s.initErr = errors.Wrapf(err, "space %q", s.name)
			return
		}
		rng := heap.SpaceRange{Name: s.name, Start: start, Extent: s.extent}
		if err := vm.Insert(rng); err != nil {
			s.initErr = errors.Wrapf(err, "space %q", s.name)
			return
		}
		s.rng = rng
		s.pr = newPR(rng)
		logger.L.Debug("space initialized", "space", s.name, "start", start.String(), "extent", s.extent)
	})
	return s.initErr
}

// Acquire implements Space.
func (s *CommonSpace) Acquire(tls types.Thread, n int) (types.Address, error) {
	if s.pr == nil {
		return types.Zero, errors.Wrapf(ErrNotInitialized, "space %q", s.name)
	}
	if s.poller != nil && s.poller.PollForPages(s.self, n, false) {
		return types.Zero, errors.Wrapf(ErrCollectionRequired, "space %q: %d pages", s.name, n)
	}

	start, err := s.pr.GetNewPages(tls, n)
	if err == nil {
		return start, nil
	}
	if errors.Is(err, pages.ErrExhausted) && s.poller != nil && s.poller.PollForPages(s.self, n, true) {
		return types.Zero, errors.Wrapf(ErrCollectionRequired, "space %q full: %v", s.name, err)
	}
	return types.Zero, errors.Wrapf(ErrOutOfMemory, "space %q: %v", s.name, err)
}

// ReleasePages implements Space.
func (s *CommonSpace) ReleasePages(start types.Address) error {
	if s.pr == nil {
		return errors.Wrapf(ErrNotInitialized, "space %q", s.name)
	}
	return s.pr.ReleasePages(start)
}

// ReservedPages implements Space.
func (s *CommonSpace) ReservedPages() int {
	if s.pr == nil {
		return 0
	}
	return s.pr.ReservedPages()
}

// InSpace implements Space.
func (s *CommonSpace) InSpace(addr types.Address) bool { return s.rng.Contains(addr) }

// SetAllocBit records addr as the start of a new object.
func (s *CommonSpace) SetAllocBit(addr types.Address) { s.md.SetBit(metadata.AllocBit, addr) }

// IsAllocated reports whether addr is the start of a live allocation.
func (s *CommonSpace) IsAllocated(addr types.Address) bool {
	return s.InSpace(addr) && s.md.GetBit(metadata.AllocBit, addr)
}
