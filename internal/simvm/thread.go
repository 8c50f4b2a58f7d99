package simvm

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/heap/plan"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Thread is a mutator thread. Its stack is a root set: objects it creates are
// pushed onto it and stay reachable until popped. A Thread is used by one
// goroutine at a time.
type Thread struct {
	vm      *VM
	tls     types.Thread
	mutator *plan.Mutator

	// guarded by vm.mu
	running bool
	stack   []types.ObjectReference
	exited  bool
}

// TLS returns the thread's identity.
func (t *Thread) TLS() types.Thread { return t.tls }

// Mutator returns the thread's allocation context.
func (t *Thread) Mutator() *plan.Mutator { return t.mutator }

// New allocates a default-semantics object and pushes it onto the stack.
func (t *Thread) New(refs int, payload uint64) (types.ObjectReference, error) {
	return t.NewWith(types.SemanticsDefault, refs, payload)
}

// NewWith allocates an object with the given semantics and pushes it onto
// the stack.
func (t *Thread) NewWith(kind types.AllocationSemantics, refs int, payload uint64) (types.ObjectReference, error) {
	if refs < 0 || refs > maxRefs || payload > 1<<31 {
		return types.Null, errors.Newf("simvm: bad object shape refs=%d payload=%d", refs, payload)
	}
	if err := t.check(); err != nil {
		return types.Null, err
	}

	t.vm.enter(t)
	defer t.vm.leave(t)

	size := ObjectSize(refs, payload)
	addr, err := t.vm.mm.Alloc(t.mutator, size, format.BytesInWord, 0, kind)
	if err != nil {
		return types.Null, err
	}
	t.vm.writeHeader(addr, refs, payload)
	obj := addr.ToObjectReference()

	t.vm.mu.Lock()
	t.stack = append(t.stack, obj)
	t.vm.mu.Unlock()
	return obj, nil
}

// SetField stores val into slot i of obj.
func (t *Thread) SetField(obj types.ObjectReference, i int, val types.ObjectReference) error {
	t.vm.enter(t)
	defer t.vm.leave(t)
	if err := t.checkField(obj, i); err != nil {
		return err
	}
	t.vm.region.StoreAddress(fieldAddr(obj, i), val.ToAddress())
	return nil
}

// GetField loads slot i of obj.
func (t *Thread) GetField(obj types.ObjectReference, i int) (types.ObjectReference, error) {
	t.vm.enter(t)
	defer t.vm.leave(t)
	if err := t.checkField(obj, i); err != nil {
		return types.Null, err
	}
	return t.vm.loadField(obj, i), nil
}

// Payload returns a copy of obj's payload bytes.
func (t *Thread) Payload(obj types.ObjectReference) []byte {
	t.vm.enter(t)
	defer t.vm.leave(t)
	refs, n := t.vm.Shape(obj)
	b := t.vm.region.Bytes(fieldAddr(obj, refs), n)
	return append([]byte(nil), b...)
}

// WritePayload copies p into obj's payload.
func (t *Thread) WritePayload(obj types.ObjectReference, p []byte) error {
	t.vm.enter(t)
	defer t.vm.leave(t)
	refs, n := t.vm.Shape(obj)
	if uint64(len(p)) > n {
		return errors.Newf("simvm: payload of %d bytes exceeds %d", len(p), n)
	}
	copy(t.vm.region.Bytes(fieldAddr(obj, refs), n), p)
	return nil
}

func (t *Thread) checkField(obj types.ObjectReference, i int) error {
	if !t.vm.mm.IsLive(obj) {
		return errors.Newf("simvm: %s is not a live object", obj)
	}
	refs, _ := t.vm.Shape(obj)
	if i < 0 || i >= refs {
		return errors.Wrapf(ErrBadField, "slot %d of %d", i, refs)
	}
	return nil
}

// Push adds obj to the stack.
func (t *Thread) Push(obj types.ObjectReference) {
	t.vm.mu.Lock()
	t.stack = append(t.stack, obj)
	t.vm.mu.Unlock()
}

// Pop removes and returns the top of the stack, or Null if it is empty.
func (t *Thread) Pop() types.ObjectReference {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	if len(t.stack) == 0 {
		return types.Null
	}
	top := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return top
}

// Truncate drops the stack down to n entries.
func (t *Thread) Truncate(n int) {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	if n < len(t.stack) {
		t.stack = t.stack[:n]
	}
}

// Drop removes the n oldest stack entries.
func (t *Thread) Drop(n int) {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	n = min(n, len(t.stack))
	t.stack = append(t.stack[:0], t.stack[n:]...)
}

// Depth returns the stack depth.
func (t *Thread) Depth() int {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	return len(t.stack)
}

// Collect requests an explicit collection.
func (t *Thread) Collect() bool {
	t.vm.enter(t)
	defer t.vm.leave(t)
	return t.vm.mm.HandleUserCollectionRequest(t.tls)
}

// Exit unregisters the thread and retires its mutator. Its stack stops being
// a root set.
func (t *Thread) Exit() {
	t.vm.mu.Lock()
	if t.exited {
		t.vm.mu.Unlock()
		return
	}
	t.exited = true
	t.stack = nil
	delete(t.vm.threads, t.tls)
	t.vm.mu.Unlock()

	t.vm.mm.DestroyMutator(t.mutator)
}

func (t *Thread) check() error {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	if t.exited {
		return ErrThreadExited
	}
	return nil
}
