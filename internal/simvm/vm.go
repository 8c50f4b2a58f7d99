// Package simvm is a small simulated runtime bound to the heap. Objects live
// in the heap itself: a header word followed by reference slots and an opaque
// payload. Threads stop at a safepoint around every heap operation, which is
// all the stop-the-world protocol needs.
//
// Object layout:
//
//	Offset  Size       Field
//	0x00    8          header (low 32 bits: ref slots, high 32 bits: payload bytes)
//	0x08    8*refs     reference slots (object reference or 0)
//	...     payload    opaque bytes, zeroed at allocation
package simvm

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/mmtk"
	"github.com/joshuapare/heapkit/pkg/types"
)

var (
	// ErrBadField indicates a reference slot index outside the object.
	ErrBadField = errors.New("simvm: field out of range")

	// ErrThreadExited indicates use of a thread after Exit.
	ErrThreadExited = errors.New("simvm: thread exited")
)

const (
	headerBytes = format.BytesInWord
	maxRefs     = 1 << 20
)

// ObjectSize returns the bytes an object with refs slots and payload bytes
// occupies.
func ObjectSize(refs int, payload uint64) uint64 {
	return headerBytes + uint64(refs)*format.BytesInWord + format.AlignWord(payload)
}

// The header word holds the slot count in its low half and the payload
// length in its high half.
func (vm *VM) writeHeader(addr types.Address, refs int, payload uint64) {
	vm.region.StoreU32(addr, uint32(refs))
	vm.region.StoreU32(addr.Add(4), uint32(payload))
}

func (vm *VM) readHeader(addr types.Address) (refs int, payload uint64) {
	return int(vm.region.LoadU32(addr)), uint64(vm.region.LoadU32(addr.Add(4)))
}

// VM owns the heap instance, the global roots and the thread registry.
type VM struct {
	mm     *mmtk.MMTK
	region *heap.Region

	mu       sync.Mutex
	cond     *sync.Cond
	threads  map[types.Thread]*Thread
	nextTLS  types.Thread
	globals  map[string]types.ObjectReference
	active   int
	stopping bool
	stopper  types.Thread

	stops   int
	blocked int
}

// New creates a VM and its heap.
func New(opts options.Options) (*VM, error) {
	vm := &VM{
		threads: make(map[types.Thread]*Thread),
		globals: make(map[string]types.ObjectReference),
		nextTLS: 1,
	}
	vm.cond = sync.NewCond(&vm.mu)

	mm, err := mmtk.New(opts, vm)
	if err != nil {
		return nil, err
	}
	vm.mm = mm
	vm.region = mm.Region()
	return vm, nil
}

// MMTK returns the heap instance.
func (vm *VM) MMTK() *mmtk.MMTK { return vm.mm }

// Close releases the heap.
func (vm *VM) Close() error { return vm.mm.Close() }

// NewThread registers a mutator thread.
func (vm *VM) NewThread() *Thread {
	vm.mu.Lock()
	tls := vm.nextTLS
	vm.nextTLS++
	vm.mu.Unlock()

	t := &Thread{vm: vm, tls: tls}
	t.mutator = vm.mm.BindMutator(tls)

	vm.mu.Lock()
	vm.threads[tls] = t
	vm.mu.Unlock()
	return t
}

// Threads returns the number of live threads.
func (vm *VM) Threads() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.threads)
}

// SetGlobal binds name to obj as a root. A null obj removes the binding.
func (vm *VM) SetGlobal(name string, obj types.ObjectReference) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if obj.IsNull() {
		delete(vm.globals, name)
		return
	}
	vm.globals[name] = obj
}

// Global returns the root bound to name.
func (vm *VM) Global(name string) types.ObjectReference {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.globals[name]
}

// Counters returns how many times the world was stopped and how many times a
// thread parked for someone else's collection.
func (vm *VM) Counters() (stops, blocked int) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stops, vm.blocked
}

// enter waits out a stopped world and marks t as running.
func (vm *VM) enter(t *Thread) {
	vm.mu.Lock()
	for vm.stopping && vm.stopper != t.tls {
		vm.cond.Wait()
	}
	vm.active++
	t.running = true
	vm.mu.Unlock()
}

func (vm *VM) leave(t *Thread) {
	vm.mu.Lock()
	vm.active--
	t.running = false
	vm.cond.Broadcast()
	vm.mu.Unlock()
}

// StopAllMutators implements vm.Binding. It waits until every thread other
// than the requester has reached a safepoint.
func (vm *VM) StopAllMutators(tls types.Thread) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.stopping = true
	vm.stopper = tls
	vm.stops++
	for vm.othersRunning(tls) > 0 {
		vm.cond.Wait()
	}
}

func (vm *VM) othersRunning(tls types.Thread) int {
	n := vm.active
	if t, ok := vm.threads[tls]; ok && t.running {
		n--
	}
	return n
}

// ResumeMutators implements vm.Binding.
func (vm *VM) ResumeMutators(types.Thread) {
	vm.mu.Lock()
	vm.stopping = false
	vm.stopper = 0
	vm.cond.Broadcast()
	vm.mu.Unlock()
}

// BlockForGC implements vm.Binding. The thread counts as stopped while it
// waits.
func (vm *VM) BlockForGC(tls types.Thread, wait func()) {
	vm.mu.Lock()
	t, ok := vm.threads[tls]
	wasRunning := ok && t.running
	if wasRunning {
		vm.active--
		t.running = false
		vm.cond.Broadcast()
	}
	vm.blocked++
	vm.mu.Unlock()

	wait()

	if wasRunning {
		vm.enter(t)
	}
}

// ScanRoots implements vm.Binding: globals, then every thread's stack.
func (vm *VM) ScanRoots(emit func(types.ObjectReference)) {
	vm.mu.Lock()
	roots := make([]types.ObjectReference, 0, len(vm.globals))
	for _, r := range vm.globals {
		roots = append(roots, r)
	}
	for _, t := range vm.threads {
		roots = append(roots, t.stack...)
	}
	vm.mu.Unlock()

	for _, r := range roots {
		emit(r)
	}
}

// ScanObject implements vm.Binding.
func (vm *VM) ScanObject(obj types.ObjectReference, emit func(types.ObjectReference)) {
	refs, _ := vm.readHeader(obj.ToAddress())
	for i := range refs {
		emit(vm.loadField(obj, i))
	}
}

func fieldAddr(obj types.ObjectReference, i int) types.Address {
	return obj.ToAddress().Add(headerBytes + uint64(i)*format.BytesInWord)
}

func (vm *VM) loadField(obj types.ObjectReference, i int) types.ObjectReference {
	return vm.region.LoadAddress(fieldAddr(obj, i)).ToObjectReference()
}

// Shape returns the slot count and payload size recorded in obj's header.
func (vm *VM) Shape(obj types.ObjectReference) (refs int, payload uint64) {
	return vm.readHeader(obj.ToAddress())
}
