package heap

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// SpaceRange is the virtual range owned by one space.
type SpaceRange struct {
	Name   string
	Start  types.Address
	Extent uint64
}

// End returns the address just past the range.
func (r SpaceRange) End() types.Address { return r.Start.Add(r.Extent) }

// Contains reports whether addr lies in the range.
func (r SpaceRange) Contains(addr types.Address) bool {
	return addr >= r.Start && addr < r.End()
}

// VMMap hands out chunk-aligned space ranges from a region and records which
// space owns each range.
type VMMap struct {
	mu     sync.RWMutex
	start  types.Address
	end    types.Address
	cursor types.Address // next unreserved address
	ranges []SpaceRange  // sorted by Start
}

// NewVMMap creates a map covering the whole region.
func NewVMMap(region *Region) *VMMap {
	return &VMMap{
		start:  region.Start(),
		end:    region.End(),
		cursor: region.Start(),
	}
}

// Reserve carves the next extent bytes (rounded to a chunk) out of the heap.
// The range is not owned by anyone until Insert registers it.
func (m *VMMap) Reserve(extent uint64) (types.Address, error) {
	extent = format.AlignChunk(extent)

	m.mu.Lock()
	defer m.mu.Unlock()

	if extent == 0 || uint64(m.end-m.cursor) < extent {
		return types.Zero, errors.Wrapf(
			ErrHeapExhausted,
			"need %d bytes, %d left",
			extent,
			uint64(m.end-m.cursor),
		)
	}
	start := m.cursor
	m.cursor = m.cursor.Add(extent)
	return start, nil
}

// Insert registers a space range. Registering the identical range twice is a
// no-op; any other overlap is an error.
func (m *VMMap) Insert(r SpaceRange) error {
	if r.Start < m.start || r.End() > m.end || r.Extent == 0 {
		return errors.Wrapf(ErrOutOfRange, "space %q [%s, %s)", r.Name, r.Start, r.End())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.ranges {
		if existing == r {
			return nil
		}
		if r.Start < existing.End() && existing.Start < r.End() {
			return errors.Wrapf(ErrOverlap, "space %q overlaps %q", r.Name, existing.Name)
		}
	}
	m.ranges = append(m.ranges, r)
	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].Start < m.ranges[j].Start })
	return nil
}

// SpaceOf returns the name of the space owning addr.
func (m *VMMap) SpaceOf(addr types.Address) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].End() > addr })
	if i < len(m.ranges) && m.ranges[i].Contains(addr) {
		return m.ranges[i].Name, true
	}
	return "", false
}

// Ranges returns a copy of the registered ranges, sorted by start.
func (m *VMMap) Ranges() []SpaceRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SpaceRange, len(m.ranges))
	copy(out, m.ranges)
	return out
}
