package rt

import (
	"encoding/json"
	"fmt"

	"github.com/JoshMcguigan/loom/trail"
)

// Bounds are the static limits one execution runs under. MaxThreads and
// MaxMemory are hard bounds: exceeding them is a configuration violation.
// MaxBranches and PreemptionBound are soft: they cut a run short and leave a
// smaller, still sound, explored subtree.
type Bounds struct {
	MaxThreads  int
	MaxMemory   int
	MaxBranches int

	// PreemptionBound caps the number of context switches taken while the
	// previously running thread was still runnable. Negative means
	// unbounded.
	PreemptionBound int
}

// An Execution is the state of one complete simulated run: the logical
// threads, the shared-location histories, the decision trail being replayed
// or extended, and the run-scoped counters. Threads and memory state are
// created fresh for every permutation; only the trail is carried forward.
type Execution struct {
	bounds Bounds
	trail  *trail.Trail

	// Log enables per-decision trace output.
	Log bool

	threads   []*thread
	locations []*Location

	// activeTid is the thread currently holding the wake token.
	activeTid int

	preemptions int
	memBytes    int

	// bounded is set when a soft bound cut this run short.
	bounded bool

	// stopping tells parked threads to unwind instead of resuming.
	stopping bool

	// schedCh carries control from the running thread back to the
	// scheduler at every decision point and thread exit.
	schedCh chan threadEvent
}

// A threadEvent hands control from a thread goroutine to the scheduler:
// either the thread reached a decision point (or blocked), or it exited.
type threadEvent struct {
	tid      int
	exited   bool
	fatal    error
	panicked bool
	panicVal any
}

// NewExecution creates the state for one run driven by the given trail. The
// trail may hold a prefix from an earlier permutation, which the scheduler
// will replay exactly.
func NewExecution(b Bounds, tr *trail.Trail, logging bool) *Execution {
	return &Execution{
		bounds:    b,
		trail:     tr,
		Log:       logging,
		activeTid: -1,
		schedCh:   make(chan threadEvent),
	}
}

// Step consumes the completed execution and produces its successor: a fresh
// execution whose trail has been advanced to the next unexplored
// permutation. It returns nil when the search space is exhausted.
func (e *Execution) Step() *Execution {
	if !e.trail.Advance() {
		return nil
	}
	return NewExecution(e.bounds, e.trail, e.Log)
}

// Trail exposes the decision trail for checkpointing.
func (e *Execution) Trail() *trail.Trail {
	return e.trail
}

// Bounded reports whether a soft bound cut the run short, making the
// explored subtree smaller than the full state space.
func (e *Execution) Bounded() bool {
	return e.bounded
}

func (e *Execution) currentThread() *thread {
	return e.threads[e.activeTid]
}

// mustBranch resolves a decision point from a thread context. Soft branch
// exhaustion aborts the run as a bounded leaf; replay mismatches and memory
// bound violations unwind as panics for the scheduler to classify.
func (e *Execution) mustBranch(kind trail.Kind, options []int) int {
	if !e.trail.Replaying() && e.trail.Len() >= e.bounds.MaxBranches {
		e.bounded = true
		e.stopping = true
		panic(errAborted)
	}
	choice, created, err := e.trail.Next(kind, options)
	if err != nil {
		panic(err)
	}
	if created {
		e.mustNoteMem(branchCost + 8*len(options))
	}
	return choice
}

// noteMem charges n bytes against the bookkeeping budget.
func (e *Execution) noteMem(n int) error {
	e.memBytes += n
	if e.memBytes > e.bounds.MaxMemory {
		return &BoundError{Bound: "max_memory", Limit: e.bounds.MaxMemory}
	}
	return nil
}

func (e *Execution) mustNoteMem(n int) {
	if err := e.noteMem(n); err != nil {
		panic(err)
	}
}

// failure wraps a tested-program failure together with the serialized trail
// of the permutation that produced it.
func (e *Execution) failure(value any) error {
	witness, err := json.Marshal(e.trail)
	if err != nil {
		witness = []byte(fmt.Sprintf("unserializable trail: %v", err))
	}
	return &FailureError{Value: value, Trail: string(witness)}
}

// asFatal extracts hard, non-reproducibility errors that must surface as-is
// rather than being wrapped as a tested-program failure.
func asFatal(err error) error {
	switch err.(type) {
	case *BoundError, *trail.NonDeterminismError:
		return err
	}
	return nil
}

// runnableIDs returns the ids of every runnable thread in id order, which
// keeps schedule option sets deterministic across replays.
func (e *Execution) runnableIDs() []int {
	ids := []int{}
	for _, t := range e.threads {
		if t.status == statusRunnable {
			ids = append(ids, t.id)
		}
	}
	return ids
}

// liveCount returns the number of threads that have not terminated.
func (e *Execution) liveCount() int {
	n := 0
	for _, t := range e.threads {
		if t.status != statusTerminated {
			n++
		}
	}
	return n
}
