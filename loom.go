// Package loom deterministically explores the possible executions of a
// concurrent test program.
//
// Testing concurrent code by running it in loops and hoping an unlucky
// interleaving shows up is not reliable, and when an iteration does fail
// the cause is gone. Loom instead controls every scheduling decision and
// simulates a relaxed memory model, so an atomic load returning an old
// value is an ordinary permutation rather than a probabilistic rarity, and
// any failure can be replayed from its recorded decision trail.
//
// Tests wrap their body in Model and build their shared state inside the
// closure using the mock primitives from loom/sync and loom/sync/atomic:
//
//	loom.Model(func() {
//		v := atomic.New(int32(0))
//		h := loom.Go(func() {
//			v.Store(1, atomic.SeqCst)
//		})
//		if v.Load(atomic.SeqCst) != 0 {
//			// reachable: the store may have run first
//		}
//		h.Join()
//	})
//
// The closure must be repeatable: no randomness, clock reads, or I/O that
// the engine does not mediate. Fairness is the test author's concern, to be
// expressed with explicit Yield points.
package loom

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/JoshMcguigan/loom/rt"
	"github.com/JoshMcguigan/loom/trail"
)

const (
	DefaultMaxThreads         = 4
	DefaultMaxMemory          = 4096 << 14
	DefaultMaxBranches        = 1000
	DefaultCheckpointInterval = 20000
)

// A Builder configures one model check. It is read-only during exploration:
// the engine itself never consults the environment or any other ambient
// state.
type Builder struct {
	// MaxThreads is the maximum number of logical threads, including the
	// one running the closure itself. This should be set as low as
	// possible since it bounds the width of every schedule decision.
	MaxThreads int

	// MaxMemory bounds the bytes of bookkeeping metadata (write histories,
	// decision records) one execution may accumulate.
	MaxMemory int

	// MaxBranches is the maximum number of decision points per
	// permutation. A run that grows past it is cut short as a bounded
	// leaf.
	MaxBranches int

	// MaxPermutations caps the number of permutations explored. Zero
	// means unbounded.
	MaxPermutations int

	// MaxDuration caps the wall-clock time spent checking. Zero means
	// unbounded.
	MaxDuration time.Duration

	// PreemptionBound caps the preemptive context switches per
	// permutation. Negative means unbounded.
	PreemptionBound int

	// CheckpointFile, when set, stores and resumes exploration progress
	// so an exhaustive search can span process lifetimes. Concurrent
	// checks against the same path are the caller's problem.
	CheckpointFile string

	// CheckpointInterval is the number of iterations between checkpoint
	// writes.
	CheckpointInterval int

	// Log enables per-decision trace output.
	Log bool
}

// NewBuilder creates a Builder with default values, applying LOOM_*
// environment overrides at this boundary only. A malformed override fails
// immediately.
func NewBuilder() *Builder {
	b := &Builder{
		MaxThreads:         DefaultMaxThreads,
		MaxMemory:          DefaultMaxMemory,
		MaxBranches:        DefaultMaxBranches,
		PreemptionBound:    -1,
		CheckpointInterval: DefaultCheckpointInterval,
	}
	if v, ok := os.LookupEnv("LOOM_MAX_BRANCHES"); ok {
		b.MaxBranches = mustInt("LOOM_MAX_BRANCHES", v)
	}
	if v, ok := os.LookupEnv("LOOM_CHECKPOINT_INTERVAL"); ok {
		b.CheckpointInterval = mustInt("LOOM_CHECKPOINT_INTERVAL", v)
	}
	if v, ok := os.LookupEnv("LOOM_MAX_PERMUTATIONS"); ok {
		b.MaxPermutations = mustInt("LOOM_MAX_PERMUTATIONS", v)
	}
	if v, ok := os.LookupEnv("LOOM_MAX_DURATION"); ok {
		b.MaxDuration = time.Duration(mustInt("LOOM_MAX_DURATION", v)) * time.Second
	}
	if v, ok := os.LookupEnv("LOOM_MAX_PREEMPTIONS"); ok {
		b.PreemptionBound = mustInt("LOOM_MAX_PREEMPTIONS", v)
	}
	if _, ok := os.LookupEnv("LOOM_LOG"); ok {
		b.Log = true
	}
	return b
}

func mustInt(name, v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Panicf("loom: invalid value for %v: %q", name, v)
	}
	return n
}

// WithCheckpointFile sets the checkpoint path.
func (b *Builder) WithCheckpointFile(path string) *Builder {
	b.CheckpointFile = path
	return b
}

// A Result describes how an exploration ended.
type Result struct {
	// Iterations is the number of permutations that were run.
	Iterations int

	// Exhausted reports whether the whole state space was covered, as
	// opposed to a permutation or duration cap cutting the search short.
	Exhausted bool

	// Bounded reports whether any run was cut short by a soft bound
	// (MaxBranches or PreemptionBound), making the covered space smaller
	// than the program's full state space.
	Bounded bool
}

// Check runs f under every meaningfully distinct permutation of scheduling
// and memory-ordering decisions, within the configured bounds.
//
// A panic inside f is not retried: it ends the whole check as a
// *rt.FailureError carrying the decision trail of the failing permutation,
// which replays the failure exactly. Hard bound violations and checkpoint
// I/O failures are likewise returned as errors.
func (b *Builder) Check(f func()) (Result, error) {
	var res Result

	tr := trail.New()
	if b.CheckpointFile != "" {
		loaded, err := loadTrail(b.CheckpointFile)
		if err != nil {
			return res, err
		}
		if loaded != nil {
			tr = loaded
		}
		// An unwritable path must surface now, not at the first interval
		// boundary a long search may never reach.
		if err := storeTrail(tr, b.CheckpointFile); err != nil {
			return res, err
		}
	}

	exec := rt.NewExecution(rt.Bounds{
		MaxThreads:      b.MaxThreads,
		MaxMemory:       b.MaxMemory,
		MaxBranches:     b.MaxBranches,
		PreemptionBound: b.PreemptionBound,
	}, tr, b.Log)
	sched := rt.NewScheduler()

	start := time.Now()
	for {
		res.Iterations++

		if b.Log {
			log.Printf("loom: ================== iteration %v ==================", res.Iterations)
		}
		if b.CheckpointFile != "" && b.CheckpointInterval > 0 && res.Iterations%b.CheckpointInterval == 0 {
			if err := storeTrail(exec.Trail(), b.CheckpointFile); err != nil {
				return res, err
			}
		}

		if err := sched.Run(exec, f); err != nil {
			if b.Log {
				log.Printf("loom: failing execution:\n%v", spew.Sdump(exec.Trail()))
			}
			return res, err
		}
		if exec.Bounded() {
			res.Bounded = true
		}

		exec = exec.Step()
		if exec == nil {
			res.Exhausted = true
			log.Printf("loom: completed in %v iterations", res.Iterations)
			return res, nil
		}

		capped := b.MaxPermutations > 0 && res.Iterations >= b.MaxPermutations ||
			b.MaxDuration > 0 && time.Since(start) >= b.MaxDuration
		if capped {
			// Persist the next unexplored permutation so a resumed check
			// picks up exactly where this one stopped, regardless of the
			// interval.
			if b.CheckpointFile != "" {
				if err := storeTrail(exec.Trail(), b.CheckpointFile); err != nil {
					return res, err
				}
			}
			return res, nil
		}
	}
}

// Model runs all concurrent permutations of f with the default
// configuration, panicking on any failure so it can be dropped straight
// into a test.
func Model(f func()) {
	if _, err := NewBuilder().Check(f); err != nil {
		log.Panicf("loom: model failed: %v", err)
	}
}

// Go spawns a new logical thread running f inside a model run and returns
// a handle to join it, mirroring the `go` statement.
func Go(f func()) *Handle {
	return &Handle{tid: rt.Spawn(f)}
}

// A Handle identifies a spawned logical thread.
type Handle struct {
	tid int
}

// Join blocks until the thread terminates. Everything the thread did is
// visible after Join returns.
func (h *Handle) Join() {
	rt.Join(h.tid)
}

// Yield marks an explicit scheduling point. Spin loops in tested code must
// yield, both to bound the state space and to express the fairness the
// test relies on.
func Yield() {
	rt.Yield()
}
