package scheduler

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/pkg/types"
)

// Stage orders work within a collection cycle.
type Stage int

const (
	// Unconstrained runs first, before the world is fully stopped.
	Unconstrained Stage = iota
	// Prepare resets per-cycle state.
	Prepare
	// Closure runs the transitive trace.
	Closure
	// Release sweeps and frees.
	Release
	// Final resumes mutators.
	Final

	numStages
)

func (s Stage) String() string {
	switch s {
	case Unconstrained:
		return "unconstrained"
	case Prepare:
		return "prepare"
	case Closure:
		return "closure"
	case Release:
		return "release"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// Work is one unit of collection work.
type Work interface {
	Do(w *Worker)
}

// WorkFunc adapts a function to Work.
type WorkFunc func(w *Worker)

// Do implements Work.
func (f WorkFunc) Do(w *Worker) { f(w) }

// Worker is the context passed to running work.
type Worker struct {
	ID    int
	TLS   types.Thread
	sched *Scheduler
}

// AddWork queues more work. Work may only target the running stage or a
// later one.
func (w *Worker) AddWork(stage Stage, work Work) { w.sched.AddWork(stage, work) }

// Scheduler holds the stage buckets and the worker pool size.
type Scheduler struct {
	threads int

	mu        sync.Mutex
	cond      *sync.Cond
	buckets   [numStages][]Work
	active    Stage
	running   bool
	busy      int
	finalizer Work
	executed  [numStages]int
}

// New creates a scheduler with threads workers.
func New(threads int) *Scheduler {
	if threads < 1 {
		threads = 1
	}
	s := &Scheduler{threads: threads}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Threads returns the worker count.
func (s *Scheduler) Threads() int { return s.threads }

// AddWork queues work on stage.
func (s *Scheduler) AddWork(stage Stage, work Work) {
	if stage < 0 || stage >= numStages {
		panic(errors.AssertionFailedf("scheduler: invalid stage %d", stage))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && stage < s.active {
		panic(errors.AssertionFailedf("scheduler: work added to closed stage %s during %s", stage, s.active))
	}
	s.buckets[stage] = append(s.buckets[stage], work)
	s.cond.Signal()
}

// SetFinalizer sets work to run on the calling goroutine after the final
// stage. It is cleared once run.
func (s *Scheduler) SetFinalizer(work Work) {
	s.mu.Lock()
	s.finalizer = work
	s.mu.Unlock()
}

// Executed returns how many items ran in stage during the last Execute.
func (s *Scheduler) Executed(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed[stage]
}

// Execute runs every queued stage to completion, then the finalizer.
func (s *Scheduler) Execute(tls types.Thread) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		panic(errors.AssertionFailedf("scheduler: Execute while already running"))
	}
	s.running = true
	s.active = Unconstrained
	s.executed = [numStages]int{}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := range s.threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.workerLoop(&Worker{ID: i, TLS: tls, sched: s})
		}()
	}
	wg.Wait()

	s.mu.Lock()
	fin := s.finalizer
	s.finalizer = nil
	s.mu.Unlock()
	if fin != nil {
		fin.Do(&Worker{ID: -1, TLS: tls, sched: s})
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// workerLoop pulls work from the active stage until every stage is done.
func (s *Scheduler) workerLoop(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.active >= numStages {
			return
		}
		bucket := s.buckets[s.active]
		if n := len(bucket); n > 0 {
			work := bucket[n-1]
			bucket[n-1] = nil
			s.buckets[s.active] = bucket[:n-1]
			s.busy++
			s.executed[s.active]++
			s.mu.Unlock()

			work.Do(w)

			s.mu.Lock()
			s.busy--
			if s.busy == 0 && len(s.buckets[s.active]) == 0 {
				s.cond.Broadcast()
			}
			continue
		}
		if s.busy == 0 {
			logger.L.Debug("stage complete", "stage", s.active.String(), "items", s.executed[s.active])
			s.active++
			s.cond.Broadcast()
			continue
		}
		s.cond.Wait()
	}
}
