// Package alloc implements the mutator-side allocators.
//
// # Allocators
//
// FreeListAllocator: size-segregated free lists over mark-sweep blocks
//
//   - Requests are binned into size classes by word count
//   - Each class has a private chain of blocks (blocksDirect)
//   - Fast path pops one cell from the first block with a free cell
//   - Slow path acquires and carves a fresh block, then pops from it
//   - Sweep returns unmarked cells to their block's free chain
//
// BumpAllocator: pointer-bump over immortal pages
//
// LargeObjectAllocator: one page run per object in the large object space
//
// # Size Classes
//
// Binning by word count w = ceil(size/8):
//
//	w <= 1     class 1
//	w <= 8     class w
//	otherwise  class ((b << 2) + ((w-1) >> (b-2) & 3)) - 3, b = bsr(w-1)
//
// This gives one class per word up to 64 bytes, then four classes per
// power of two. A class's cell size is the largest size it covers.
// Requests above MaxSmallBytes never reach the free-list allocator.
//
// # Thread Safety
//
// An allocator belongs to one mutator and is not safe for concurrent
// allocation. Sweep work units for different size classes may run in
// parallel; each unit touches only its own chain.
package alloc
