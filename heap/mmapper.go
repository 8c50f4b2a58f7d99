package heap

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Mmapper commits region memory on demand at chunk granularity.
type Mmapper struct {
	region *Region

	mu     sync.Mutex
	mapped []bool // one entry per chunk

	// Statistics
	chunksMapped  int
	pagesReturned int
}

// NewMmapper creates a mapper over region. Nothing is mapped initially.
func NewMmapper(region *Region) *Mmapper {
	return &Mmapper{
		region: region,
		mapped: make([]bool, region.Size()>>format.LogBytesInChunk),
	}
}

// Region returns the underlying region.
func (m *Mmapper) Region() *Region { return m.region }

func (m *Mmapper) chunkIndex(addr types.Address) int {
	return int(addr.Diff(m.region.Start()) >> format.LogBytesInChunk)
}

// EnsureMapped commits every chunk touched by [start, start+pages*4KiB).
func (m *Mmapper) EnsureMapped(start types.Address, pages int) error {
	n := format.PagesToBytes(pages)
	if err := m.region.CheckRange(start, n); err != nil {
		return err
	}

	first := m.chunkIndex(start)
	last := m.chunkIndex(start.Add(n - 1))

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := first; i <= last; i++ {
		if m.mapped[i] {
			continue
		}
		chunk := m.region.Start().Add(uint64(i) << format.LogBytesInChunk)
		if err := commit(m.region.span(chunk, format.BytesInChunk)); err != nil {
			return errors.Wrapf(ErrMap, "commit chunk %s: %v", chunk, err)
		}
		m.mapped[i] = true
		m.chunksMapped++
	}
	return nil
}

// IsMapped reports whether the chunk containing addr is committed.
func (m *Mmapper) IsMapped(addr types.Address) bool {
	if !m.region.Contains(addr) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapped[m.chunkIndex(addr)]
}

// Decommit hands the physical pages of [start, start+pages*4KiB) back to the
// OS. The range stays mapped and reads back as undefined bytes.
func (m *Mmapper) Decommit(start types.Address, pages int) error {
	n := format.PagesToBytes(pages)
	if err := m.region.CheckRange(start, n); err != nil {
		return err
	}
	if err := decommit(m.region.span(start, n)); err != nil {
		return errors.Wrapf(ErrMap, "decommit %s+%d pages: %v", start, pages, err)
	}
	m.mu.Lock()
	m.pagesReturned += pages
	m.mu.Unlock()
	return nil
}

// MappedChunks returns how many chunks have been committed.
func (m *Mmapper) MappedChunks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunksMapped
}
