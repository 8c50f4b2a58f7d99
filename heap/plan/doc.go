// Package plan implements the collection policy: which spaces exist, which
// allocator serves a request, when a collection is required and what work a
// collection cycle runs.
//
// # FreeListMarkSweep
//
// Spaces: a mark-sweep space of free-list blocks for small objects, an
// immortal space and a large object space. A cycle runs as ordered
// scheduler stages:
//
//	Unconstrained  stop mutators, scan roots into trace packets
//	Prepare        reset per-space mark state
//	Closure        trace: mark reachable objects, scan their edges
//	Release        release spaces, sweep every block chain
//	Final          resume mutators
//
// Status moves NotInGC -> GcPrepare -> GcProper -> NotInGC. Within
// GcProper the phase is tracing, then sweeping.
//
// # Triggering
//
// Spaces poll the plan before taking pages. The plan requires a collection
// when the heap budget would be exceeded, the space is full, or the stress
// threshold has passed. Running the collection and retrying is up to the
// caller.
package plan
