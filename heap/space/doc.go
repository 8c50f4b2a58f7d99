// Package space implements the heap spaces: named virtual ranges with a page
// resource, side metadata and a per-cycle prepare/release protocol.
//
// # Spaces
//
//   - MarkSweepSpace: 64 KiB blocks of same-size cells, swept eagerly
//   - ImmortalSpace: bump-allocated pages that are never freed
//   - LargeObjectSpace: one page run per object, freed when unmarked
//
// # Acquisition
//
// Acquire is the only point where mutators share space state. It consults
// the collection Poller first and reports ErrCollectionRequired when the
// heap budget says a collection must run before the request can be served.
// ErrOutOfMemory means the pages could not be obtained at all. Neither error
// triggers a collection by itself; that decision belongs to the caller.
package space
