package simvm

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/pkg/types"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	opts := options.Default()
	opts.HeapSize = 4 * format.BytesInChunk
	opts.Threads = 2
	vm, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vm.Close() })
	return vm
}

func Test_ObjectSize(t *testing.T) {
	require.Equal(t, uint64(8), ObjectSize(0, 0))
	require.Equal(t, uint64(8+16+8), ObjectSize(2, 5))
}

func Test_VM_HeaderHalves(t *testing.T) {
	vm := newTestVM(t)
	th := vm.NewThread()

	obj, err := th.New(3, 100)
	require.NoError(t, err)
	refs, payload := vm.Shape(obj)
	require.Equal(t, 3, refs)
	require.Equal(t, uint64(100), payload)

	// Slot count in the low half, payload length in the high half.
	require.Equal(t, uint64(3)|uint64(100)<<32, vm.region.LoadWord(obj.ToAddress()))
}

func Test_Thread_Fields(t *testing.T) {
	vm := newTestVM(t)
	th := vm.NewThread()

	parent, err := th.New(2, 0)
	require.NoError(t, err)
	child, err := th.New(0, 12)
	require.NoError(t, err)

	require.NoError(t, th.SetField(parent, 1, child))
	got, err := th.GetField(parent, 1)
	require.NoError(t, err)
	require.Equal(t, child, got)
	got, err = th.GetField(parent, 0)
	require.NoError(t, err)
	require.Equal(t, types.Null, got)

	err = th.SetField(parent, 2, child)
	require.True(t, errors.Is(err, ErrBadField))

	require.NoError(t, th.WritePayload(child, []byte("hello")))
	require.Equal(t, []byte("hello\x00\x00\x00\x00\x00\x00\x00"), th.Payload(child))
	require.Error(t, th.WritePayload(child, make([]byte, 13)))
}

func Test_VM_CollectKeepsReachable(t *testing.T) {
	vm := newTestVM(t)
	th := vm.NewThread()

	list, err := th.New(1, 0)
	require.NoError(t, err)
	vm.SetGlobal("list", list)
	th.Truncate(0)

	// A linked chain hanging off the global, plus garbage.
	prev := list
	var chain []types.ObjectReference
	for range 100 {
		n, err := th.New(1, 16)
		require.NoError(t, err)
		require.NoError(t, th.SetField(prev, 0, n))
		chain = append(chain, n)
		prev = n
		_, err = th.New(0, 40)
		require.NoError(t, err)
	}
	th.Truncate(0)

	require.True(t, th.Collect())
	mm := vm.MMTK()
	for _, n := range chain {
		require.True(t, mm.IsLive(n))
	}
	st := mm.Stats()
	assert.EqualValues(t, 101, st.LastCycle.Marked)
	assert.EqualValues(t, 100, st.LastCycle.FreedCells)

	vm.SetGlobal("list", types.Null)
	require.True(t, th.Collect())
	assert.False(t, mm.IsLive(list))
	assert.False(t, mm.IsLive(chain[99]))
}

func Test_VM_StackIsRoot(t *testing.T) {
	vm := newTestVM(t)
	th := vm.NewThread()

	a, err := th.New(0, 0)
	require.NoError(t, err)
	b, err := th.New(0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, th.Depth())
	require.Equal(t, b, th.Pop())

	th.Collect()
	require.True(t, vm.MMTK().IsLive(a))
	require.False(t, vm.MMTK().IsLive(b))

	c, err := th.New(0, 0)
	require.NoError(t, err)
	th.Drop(1)
	require.Equal(t, 1, th.Depth())
	require.Equal(t, c, th.Pop())
	th.Drop(5)
	require.Zero(t, th.Depth())
}

func Test_Thread_Exit(t *testing.T) {
	vm := newTestVM(t)
	th := vm.NewThread()
	obj, err := th.New(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, vm.Threads())

	th.Exit()
	th.Exit()
	require.Zero(t, vm.Threads())
	_, err = th.New(0, 0)
	require.True(t, errors.Is(err, ErrThreadExited))

	other := vm.NewThread()
	other.Collect()
	require.False(t, vm.MMTK().IsLive(obj), "exited stack is not a root")
}

// Test_VM_ConcurrentThreads runs allocating threads that keep a bounded
// live window; heap-full collections stop every thread.
func Test_VM_ConcurrentThreads(t *testing.T) {
	vm := newTestVM(t)

	const threads = 4
	var wg sync.WaitGroup
	errs := make(chan error, threads)
	for range threads {
		th := vm.NewThread()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer th.Exit()
			var prev types.ObjectReference
			for range 5000 {
				obj, err := th.New(1, 2000)
				if err != nil {
					errs <- err
					return
				}
				if !prev.IsNull() {
					if err := th.SetField(obj, 0, prev); err != nil {
						errs <- err
						return
					}
				}
				prev = obj
				if th.Depth() >= 32 {
					th.Truncate(0)
					prev = types.Null
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stops, _ := vm.Counters()
	st := vm.MMTK().Stats()
	require.Positive(t, st.GCCount)
	require.EqualValues(t, st.GCCount, stops)
	require.Zero(t, st.OutOfMemory)
	require.Equal(t, 0, vm.Threads())
}
