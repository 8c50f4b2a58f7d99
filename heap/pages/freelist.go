package pages

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// pageRun is a contiguous run of free pages.
type pageRun struct {
	start types.Address
	pages int
}

func (r pageRun) end() types.Address { return r.start.Add(format.PagesToBytes(r.pages)) }

// FreeListPageResource allocates page runs first-fit from released runs and
// falls back to bumping a cursor through the untouched part of the range.
type FreeListPageResource struct {
	mapper Mapper
	start  types.Address
	limit  types.Address

	// DecommitOnRelease returns released pages to the OS.
	DecommitOnRelease bool

	mu        sync.Mutex
	cursor    types.Address
	free      []pageRun // sorted by start, coalesced
	allocated map[types.Address]int
	reserved  int
}

// NewFreeList creates a resource over [start, start+extent).
func NewFreeList(start types.Address, extent uint64, mapper Mapper) *FreeListPageResource {
	return &FreeListPageResource{
		mapper:    mapper,
		start:     start,
		limit:     start.Add(format.AlignDown(extent, format.BytesInPage)),
		cursor:    start,
		allocated: make(map[types.Address]int),
	}
}

// GetNewPages implements PageResource.
func (pr *FreeListPageResource) GetNewPages(_ types.Thread, pages int) (types.Address, error) {
	if pages <= 0 {
		return types.Zero, errors.Wrapf(ErrBadRequest, "pages=%d", pages)
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	start, ok := pr.takeFree(pages)
	if !ok {
		need := format.PagesToBytes(pages)
		if uint64(pr.limit-pr.cursor) < need {
			return types.Zero, errors.Wrapf(
				ErrExhausted,
				"need %d pages, %d free in runs, %d untouched",
				pages,
				pr.freePagesLocked(),
				uint64(pr.limit-pr.cursor)>>format.LogBytesInPage,
			)
		}
		start = pr.cursor
		pr.cursor = pr.cursor.Add(need)
	}

	if err := pr.mapper.EnsureMapped(start, pages); err != nil {
		pr.insertFree(pageRun{start: start, pages: pages})
		return types.Zero, err
	}

	pr.allocated[start] = pages
	pr.reserved += pages
	return start, nil
}

// takeFree removes the first run with at least pages pages, splitting it.
func (pr *FreeListPageResource) takeFree(pages int) (types.Address, bool) {
	for i, r := range pr.free {
		if r.pages < pages {
			continue
		}
		if r.pages == pages {
			pr.free = append(pr.free[:i], pr.free[i+1:]...)
		} else {
			pr.free[i] = pageRun{start: r.start.Add(format.PagesToBytes(pages)), pages: r.pages - pages}
		}
		return r.start, true
	}
	return types.Zero, false
}

// ReleasePages implements PageResource.
func (pr *FreeListPageResource) ReleasePages(start types.Address) error {
	pr.mu.Lock()
	pages, ok := pr.allocated[start]
	if !ok {
		pr.mu.Unlock()
		return errors.Wrapf(ErrNotAllocated, "start=%s", start)
	}
	delete(pr.allocated, start)
	pr.reserved -= pages
	pr.insertFree(pageRun{start: start, pages: pages})
	pr.mu.Unlock()

	if pr.DecommitOnRelease {
		return pr.mapper.Decommit(start, pages)
	}
	return nil
}

// insertFree adds a run and merges it with adjacent runs.
func (pr *FreeListPageResource) insertFree(run pageRun) {
	i := sort.Search(len(pr.free), func(i int) bool { return pr.free[i].start > run.start })
	pr.free = append(pr.free, pageRun{})
	copy(pr.free[i+1:], pr.free[i:])
	pr.free[i] = run

	// Merge with next
	if i+1 < len(pr.free) && pr.free[i].end() == pr.free[i+1].start {
		pr.free[i].pages += pr.free[i+1].pages
		pr.free = append(pr.free[:i+1], pr.free[i+2:]...)
	}
	// Merge with previous
	if i > 0 && pr.free[i-1].end() == pr.free[i].start {
		pr.free[i-1].pages += pr.free[i].pages
		pr.free = append(pr.free[:i], pr.free[i+1:]...)
	}
}

// ReservedPages implements PageResource.
func (pr *FreeListPageResource) ReservedPages() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.reserved
}

// FreePages returns the number of pages sitting in released runs.
func (pr *FreeListPageResource) FreePages() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.freePagesLocked()
}

func (pr *FreeListPageResource) freePagesLocked() int {
	n := 0
	for _, r := range pr.free {
		n += r.pages
	}
	return n
}

// FreeRuns returns the number of distinct free runs (fragmentation indicator).
func (pr *FreeListPageResource) FreeRuns() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return len(pr.free)
}
