package space

import (
	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/metadata"
	"github.com/joshuapare/heapkit/heap/pages"
	"github.com/joshuapare/heapkit/pkg/types"
)

// ImmortalSpace holds objects that are never reclaimed. Objects are still
// marked so that tracing terminates and can be verified.
type ImmortalSpace struct {
	CommonSpace
	mark metadata.Spec
	mpr  *pages.MonotonePageResource
}

// NewImmortalSpace creates the space. mark is the space's mark bit plane.
func NewImmortalSpace(args Args, mark metadata.Spec) *ImmortalSpace {
	s := &ImmortalSpace{CommonSpace: newCommon(args), mark: mark}
	s.self = s
	return s
}

// Init implements Space.
func (s *ImmortalSpace) Init(vm *heap.VMMap) error {
	return s.init(vm, func(r heap.SpaceRange) pages.PageResource {
		s.mpr = pages.NewMonotone(r.Start, r.Extent, s.mmapper)
		return s.mpr
	})
}

// TraceObject implements TracingSpace.
func (s *ImmortalSpace) TraceObject(obj types.ObjectReference) bool {
	return s.md.TrySetBit(s.mark, obj.ToAddress())
}

// IsMarked implements TracingSpace.
func (s *ImmortalSpace) IsMarked(obj types.ObjectReference) bool {
	return s.md.GetBit(s.mark, obj.ToAddress())
}

// Prepare implements Space. It clears the mark plane over the pages in use.
func (s *ImmortalSpace) Prepare() {
	if s.mpr == nil {
		return
	}
	used := s.mpr.Cursor().Diff(s.rng.Start)
	s.md.ClearRange(s.mark, s.rng.Start, used)
}

// Release implements Space.
func (s *ImmortalSpace) Release() {}
