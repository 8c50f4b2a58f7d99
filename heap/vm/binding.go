// Package vm declares the callbacks the heap needs from its host runtime.
package vm

import "github.com/joshuapare/heapkit/pkg/types"

// Binding is implemented by the host runtime.
type Binding interface {
	// StopAllMutators suspends every mutator thread. It returns once no
	// mutator can touch the heap.
	StopAllMutators(tls types.Thread)

	// ResumeMutators restarts the threads stopped by StopAllMutators.
	ResumeMutators(tls types.Thread)

	// ScanRoots calls emit for every root reference. Null references may be
	// emitted and are ignored.
	ScanRoots(emit func(types.ObjectReference))

	// ScanObject calls emit for every reference field of obj.
	ScanObject(obj types.ObjectReference, emit func(types.ObjectReference))

	// BlockForGC parks tls while another thread runs a collection. The
	// binding must treat tls as stopped for the duration of wait.
	BlockForGC(tls types.Thread, wait func())
}
