// Package pages provides page resources: the per-space managers that hand
// out runs of 4 KiB pages from a space's virtual range.
//
// # Implementations
//
// FreeListPageResource: first-fit over released page runs, then bump
//
//   - Released runs are coalesced with adjacent free runs
//   - Released pages can be handed back to the OS (decommit)
//   - Used by the mark-sweep and large object spaces
//
// MonotonePageResource: bump-only
//
//   - Pages are never released
//   - Used by the immortal space
//
// # Thread Safety
//
// Both implementations serialize GetNewPages and ReleasePages with a mutex.
// Page acquisition is the one point where mutator threads share state, and
// it is rare relative to fast-path allocation.
package pages
