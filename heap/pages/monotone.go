package pages

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// MonotonePageResource bumps a cursor through its range and never reuses
// pages.
type MonotonePageResource struct {
	mapper Mapper
	start  types.Address
	limit  types.Address

	mu     sync.Mutex
	cursor types.Address
}

// NewMonotone creates a bump-only resource over [start, start+extent).
func NewMonotone(start types.Address, extent uint64, mapper Mapper) *MonotonePageResource {
	return &MonotonePageResource{
		mapper: mapper,
		start:  start,
		limit:  start.Add(format.AlignDown(extent, format.BytesInPage)),
		cursor: start,
	}
}

// GetNewPages implements PageResource.
func (pr *MonotonePageResource) GetNewPages(_ types.Thread, pages int) (types.Address, error) {
	if pages <= 0 {
		return types.Zero, errors.Wrapf(ErrBadRequest, "pages=%d", pages)
	}
	need := format.PagesToBytes(pages)

	pr.mu.Lock()
	defer pr.mu.Unlock()

	if uint64(pr.limit-pr.cursor) < need {
		return types.Zero, errors.Wrapf(ErrExhausted, "need %d pages", pages)
	}
	if err := pr.mapper.EnsureMapped(pr.cursor, pages); err != nil {
		return types.Zero, err
	}
	start := pr.cursor
	pr.cursor = pr.cursor.Add(need)
	return start, nil
}

// ReleasePages implements PageResource. Monotone pages are never released.
func (pr *MonotonePageResource) ReleasePages(start types.Address) error {
	return errors.Wrapf(ErrNotSupported, "monotone release of %s", start)
}

// ReservedPages implements PageResource.
func (pr *MonotonePageResource) ReservedPages() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return int(pr.cursor.Diff(pr.start) >> format.LogBytesInPage)
}

// Cursor returns the first unallocated address. [start, Cursor) is in use.
func (pr *MonotonePageResource) Cursor() types.Address {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.cursor
}
