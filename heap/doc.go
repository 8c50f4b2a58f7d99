// Package heap owns the virtual memory behind the managed heap.
//
// # Overview
//
// A Region is one contiguous virtual reservation made at startup. Addresses
// handed to the rest of the system are virtual: format.HeapStart maps to the
// first byte of the reservation, so zero stays free as the "none" sentinel
// and no Go pointer ever escapes into heap memory.
//
// The reservation starts inaccessible (PROT_NONE on Unix). The Mmapper
// commits whole chunks (4 MiB) on first use and can hand physical pages back
// to the OS when a page resource releases them.
//
// The VMMap carves the region into non-overlapping, chunk-aligned space
// ranges and answers "which space owns this address".
//
// # Thread Safety
//
// Region loads and stores are not synchronized; callers own disjoint
// addresses (mutators own their blocks, GC workers own disjoint objects).
// Mmapper and VMMap are safe for concurrent use.
package heap
