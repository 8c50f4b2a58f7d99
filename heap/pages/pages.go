package pages

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/pkg/types"
)

var (
	// ErrExhausted indicates the page resource has no run large enough.
	ErrExhausted = errors.New("pages: page resource exhausted")

	// ErrNotAllocated indicates a release of pages that were never handed out.
	ErrNotAllocated = errors.New("pages: release of unallocated pages")

	// ErrNotSupported indicates an operation the resource does not implement.
	ErrNotSupported = errors.New("pages: operation not supported")

	// ErrBadRequest indicates a non-positive page count.
	ErrBadRequest = errors.New("pages: page count must be positive")
)

// PageResource hands out page runs from one space's virtual range.
type PageResource interface {
	// GetNewPages returns the start of pages contiguous, mapped pages.
	GetNewPages(tls types.Thread, pages int) (types.Address, error)

	// ReleasePages returns the run starting at start to the resource.
	ReleasePages(start types.Address) error

	// ReservedPages returns the number of pages currently handed out.
	ReservedPages() int
}

// Mapper commits and decommits page ranges.
type Mapper interface {
	EnsureMapped(start types.Address, pages int) error
	Decommit(start types.Address, pages int) error
}
