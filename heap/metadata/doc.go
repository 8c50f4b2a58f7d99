// Package metadata implements side metadata: out-of-band bit planes keyed by
// heap address.
//
// # Layout
//
// Every Spec declares a bit width (LogNumOfBits) and an address granularity
// (LogMinObjSize). A plane needs
//
//	(heapSize >> LogMinObjSize) << LogNumOfBits
//
// bits. Layout assigns each spec a byte offset directly after the previous
// one, so no two planes overlap; Verify rejects any set of specs that does.
//
// # Addressing
//
// For a heap address a, the granule index is (a - heapStart) >> LogMinObjSize
// and the bit index within the context is Offset*8 + granule<<LogNumOfBits.
// Bits live in a []uint32 backing store and are updated with atomic
// operations, so concurrent mark workers may set bits for distinct objects
// that share a word.
//
// # Semantics
//
// The allocator and the collector share two kinds of planes:
//
//   - the allocation bit (global): 1 = the cell at this address is in use
//   - mark bits (one per collected space): 1 = marked this cycle
//
// These bits are the only source of truth for liveness.
package metadata
