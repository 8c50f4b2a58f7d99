package space

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/pages"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// LargeObjectSpace gives each object its own page run.
type LargeObjectSpace struct {
	CommonSpace
	mark metadata.Spec

	mu      sync.Mutex
	objects map[types.Address]int // start -> pages

	freedObjects int
	freedPages   int
}

// NewLargeObjectSpace creates the space. mark is the space's mark bit plane.
func NewLargeObjectSpace(args Args, mark metadata.Spec) *LargeObjectSpace {
	s := &LargeObjectSpace{
		CommonSpace: newCommon(args),
		mark:        mark,
		objects:     make(map[types.Address]int),
	}
	s.self = s
	return s
}

// Init implements Space.
func (s *LargeObjectSpace) Init(vm *heap.VMMap) error {
	return s.init(vm, func(r heap.SpaceRange) pages.PageResource {
		pr := pages.NewFreeList(r.Start, r.Extent, s.mmapper)
		pr.DecommitOnRelease = true
		return pr
	})
}

// AllocLarge acquires a zeroed page run of at least bytes bytes.
func (s *LargeObjectSpace) AllocLarge(tls types.Thread, bytes uint64) (types.Address, error) {
	if bytes == 0 {
		bytes = format.MinObjectSize
	}
	n := format.BytesToPages(bytes)
	start, err := s.Acquire(tls, n)
	if err != nil {
		return types.Zero, err
	}
	s.Region().Zero(start, format.PagesToBytes(n))
	s.SetAllocBit(start)

	s.mu.Lock()
	s.objects[start] = n
	s.mu.Unlock()
	return start, nil
}

// Objects returns the number of live large objects.
func (s *LargeObjectSpace) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// TraceObject implements TracingSpace.
func (s *LargeObjectSpace) TraceObject(obj types.ObjectReference) bool {
	return s.md.TrySetBit(s.mark, obj.ToAddress())
}

// IsMarked implements TracingSpace.
func (s *LargeObjectSpace) IsMarked(obj types.ObjectReference) bool {
	return s.md.GetBit(s.mark, obj.ToAddress())
}

// Prepare implements Space. Marks were cleared by the previous Release.
func (s *LargeObjectSpace) Prepare() {}

// Release implements Space: unmarked objects are freed, marked ones lose
// their mark.
func (s *LargeObjectSpace) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	freed, freedPages := 0, 0
	for start, n := range s.objects {
		if s.md.GetBit(s.mark, start) {
			s.md.ClearBit(s.mark, start)
			continue
		}
		s.md.ClearBit(metadata.AllocBit, start)
		if err := s.ReleasePages(start); err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "space %q: release object %s", s.name, start))
		}
		delete(s.objects, start)
		freed++
		freedPages += n
	}
	s.freedObjects += freed
	s.freedPages += freedPages
	logger.L.Debug("large objects released", "space", s.name, "objects", freed, "pages", freedPages)
}

// FreedTotals returns cumulative freed objects and pages.
func (s *LargeObjectSpace) FreedTotals() (objects, npages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freedObjects, s.freedPages
}
