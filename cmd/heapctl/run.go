package main

import (
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/simvm"
	"github.com/joshuapare/heapkit/pkg/mmtk"
	"github.com/joshuapare/heapkit/pkg/types"
)

// workload describes a synthetic mutator run. Every thread keeps a FIFO
// window of its most recent objects rooted; older objects become garbage.
type workload struct {
	threads       int
	objects       int
	live          int
	refs          int
	minSize       uint64
	maxSize       uint64
	largeEvery    int
	immortalEvery int
	collectEvery  int
	seed          uint64
}

var runFlags workload

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic allocation workload",
		Long: `The run command starts mutator threads in a simulated runtime. Each
thread allocates objects with random payload sizes, links them to its recent
objects and keeps only a window of them rooted, so the heap collects as it
fills.

Example:
  heapctl run
  heapctl run --threads 8 --objects 200000 --live 1024
  heapctl run --heap-size 16M --large-every 500 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(runFlags)
		},
	}
	f := cmd.Flags()
	f.IntVar(&runFlags.threads, "threads", 2, "Mutator threads")
	f.IntVar(&runFlags.objects, "objects", 100_000, "Objects allocated per thread")
	f.IntVar(&runFlags.live, "live", 256, "Objects each thread keeps rooted")
	f.IntVar(&runFlags.refs, "refs", 2, "Reference slots per object")
	f.Uint64Var(&runFlags.minSize, "min-size", 8, "Minimum payload bytes")
	f.Uint64Var(&runFlags.maxSize, "max-size", 256, "Maximum payload bytes")
	f.IntVar(&runFlags.largeEvery, "large-every", 0, "Allocate a large object every N objects (0 disables)")
	f.IntVar(&runFlags.immortalEvery, "immortal-every", 0, "Allocate an immortal object every N objects (0 disables)")
	f.IntVar(&runFlags.collectEvery, "collect-every", 0, "Request a collection every N objects (0 disables)")
	f.Uint64Var(&runFlags.seed, "seed", 1, "Random seed")
	return cmd
}

func (w workload) validate() error {
	switch {
	case w.threads <= 0:
		return errors.Newf("--threads %d: must be positive", w.threads)
	case w.objects < 0:
		return errors.Newf("--objects %d: must not be negative", w.objects)
	case w.live <= 0:
		return errors.Newf("--live %d: must be positive", w.live)
	case w.refs < 0:
		return errors.Newf("--refs %d: must not be negative", w.refs)
	case w.minSize > w.maxSize:
		return errors.Newf("--min-size %d above --max-size %d", w.minSize, w.maxSize)
	}
	return nil
}

func runRun(w workload) error {
	if err := w.validate(); err != nil {
		return err
	}
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	vm, err := simvm.New(opts)
	if err != nil {
		return err
	}
	defer vm.Close()

	printVerbose("Heap: %s budget, %d GC threads, plan %s\n",
		formatBytes(opts.HeapSize), opts.Threads, opts.Plan)

	start := time.Now()
	if err := w.run(vm); err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := vm.MMTK().Stats()
	if jsonOut {
		return st.WriteJSON(os.Stdout)
	}
	printRunSummary(w, st, elapsed)
	return nil
}

func (w workload) run(vm *simvm.VM) error {
	var wg sync.WaitGroup
	errs := make([]error, w.threads)
	for i := range w.threads {
		th := vm.NewThread()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer th.Exit()
			errs[i] = w.mutate(th, i)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// mutate runs one thread. Links always point from an older window member to
// the new object, which keeps the live set bounded by the window.
func (w workload) mutate(th *simvm.Thread, id int) error {
	rng := rand.New(rand.NewPCG(w.seed, uint64(id)))
	window := make([]types.ObjectReference, 0, w.live+1)

	for i := range w.objects {
		kind := types.SemanticsDefault
		payload := w.minSize + rng.Uint64N(w.maxSize-w.minSize+1)
		switch {
		case w.largeEvery > 0 && i%w.largeEvery == w.largeEvery-1:
			kind = types.SemanticsLos
			payload = 4 * format.BytesInPage
		case w.immortalEvery > 0 && i%w.immortalEvery == w.immortalEvery-1:
			kind = types.SemanticsImmortal
		}

		obj, err := th.NewWith(kind, w.refs, payload)
		if err != nil {
			return errors.Wrapf(err, "thread %d object %d", id, i)
		}
		if w.refs > 0 && len(window) > 0 {
			from := window[rng.IntN(len(window))]
			if err := th.SetField(from, rng.IntN(w.refs), obj); err != nil {
				return errors.Wrapf(err, "thread %d object %d", id, i)
			}
		}

		window = append(window, obj)
		if len(window) > w.live {
			th.Drop(1)
			window = window[1:]
		}
		if w.collectEvery > 0 && i%w.collectEvery == w.collectEvery-1 {
			th.Collect()
		}
	}
	return nil
}

func printRunSummary(w workload, st mmtk.Stats, elapsed time.Duration) {
	total := w.threads * w.objects
	printInfo("Workload: %d threads x %d objects (%d total) in %s\n", w.threads, w.objects, total, elapsed.Round(time.Millisecond))
	if secs := elapsed.Seconds(); secs > 0 {
		printInfo("  Rate: %.0f objects/s\n", float64(total)/secs)
	}
	printInfo("Collections: %d (%d heap full, %d requested)\n", st.GCCount, st.HeapFullTriggers, st.UserTriggers)
	printInfo("  Retries: %d, out of memory: %d\n", st.Retries, st.OutOfMemory)
	printInfo("Heap: %s used of %s budget (%d mapped chunks)\n",
		formatBytes(st.UsedBytes()), formatBytes(st.BudgetBytes()), st.MappedChunks)
	for _, sp := range st.Spaces {
		printInfo("  %-9s %d pages\n", sp.Name, sp.ReservedPages)
	}
	a := st.Alloc
	printInfo("Allocation: %d calls, %d fast path, %d slow path, %d blocks acquired\n",
		a.AllocCalls, a.FastPathHits, a.SlowPathCalls, a.BlocksAcquired)
	printInfo("  Bytes: %s, cells freed: %d, blocks released: %d, retained: %d\n",
		formatBytes(uint64(a.BytesAllocated)), a.CellsFreed, a.BlocksReleased, a.BlocksRetained)
	if st.GCCount > 0 {
		c := st.LastCycle
		printInfo("Last cycle #%d: %d roots, %d marked, %d live cells, %d freed cells\n",
			c.Cycle, c.Roots, c.Marked, c.LiveCells, c.FreedCells)
	}
}
