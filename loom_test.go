package loom_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JoshMcguigan/loom"
	"github.com/JoshMcguigan/loom/rt"
	"github.com/JoshMcguigan/loom/sync/atomic"
)

func TestCheckExploresStoreVisibility(t *testing.T) {
	seen := map[int32]bool{}
	res, err := loom.NewBuilder().Check(func() {
		v := atomic.New(int32(0))
		h := loom.Go(func() {
			v.Store(1, atomic.Relaxed)
		})
		seen[v.Load(atomic.Relaxed)] = true
		h.Join()
	})
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if !res.Exhausted {
		t.Errorf("Expected the state space to be exhausted")
	}
	if !seen[0] || !seen[1] {
		t.Errorf("Expected both the initial value and the store to be observed. Got: %v", seen)
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	run := func() (loom.Result, map[[2]int32]bool) {
		outcomes := map[[2]int32]bool{}
		res, err := loom.NewBuilder().Check(func() {
			v := atomic.New(int32(0))
			var r1 int32
			w := loom.Go(func() { v.Store(1, atomic.Relaxed) })
			a := loom.Go(func() { r1 = v.Load(atomic.Relaxed) })
			w.Join()
			a.Join()
			outcomes[[2]int32{r1, v.Load(atomic.Relaxed)}] = true
		})
		if err != nil {
			t.Fatalf("Did not expect to receive an error. Got %v", err)
		}
		return res, outcomes
	}
	res1, out1 := run()
	res2, out2 := run()
	if res1.Iterations != res2.Iterations {
		t.Errorf("Expected both explorations to take the same number of iterations. Got: %v and %v", res1.Iterations, res2.Iterations)
	}
	if len(out1) != len(out2) {
		t.Errorf("Expected both explorations to reach the same outcomes. Got: %v and %v", out1, out2)
	}
}

func TestCheckSurfacesPanicsWithTrail(t *testing.T) {
	_, err := loom.NewBuilder().Check(func() {
		v := atomic.New(int32(0))
		h := loom.Go(func() { v.Store(1, atomic.Relaxed) })
		if v.Load(atomic.Relaxed) == 1 {
			panic("observed the store")
		}
		h.Join()
	})
	var fe *rt.FailureError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a FailureError. Got: %v", err)
	}
	if fe.Value != "observed the store" {
		t.Errorf("Expected the panic value to be preserved. Got: %v", fe.Value)
	}
	if fe.Trail == "" {
		t.Errorf("Expected the failing trail to accompany the report")
	}
}

func TestCheckReportsThreadBound(t *testing.T) {
	b := loom.NewBuilder()
	b.MaxThreads = 2
	_, err := b.Check(func() {
		loom.Go(func() {})
		loom.Go(func() {})
	})
	var be *rt.BoundError
	if !errors.As(err, &be) {
		t.Fatalf("Expected a BoundError. Got: %v", err)
	}
	if be.Bound != "max_threads" {
		t.Errorf("Expected the max_threads bound to trip. Got: %v", be.Bound)
	}
}

func TestMaxPermutationsStopsEarly(t *testing.T) {
	b := loom.NewBuilder()
	b.MaxPermutations = 1
	res, err := b.Check(func() {
		v := atomic.New(int32(0))
		h := loom.Go(func() { v.Store(1, atomic.Relaxed) })
		v.Load(atomic.Relaxed)
		h.Join()
	})
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("Expected a single iteration. Got: %v", res.Iterations)
	}
	if res.Exhausted {
		t.Errorf("Expected a capped search not to be reported as exhausted")
	}
}

func TestCheckpointResumeCoversSameSpace(t *testing.T) {
	prog := func(seen map[int32]bool) func() {
		return func() {
			v := atomic.New(int32(0))
			h := loom.Go(func() { v.Store(1, atomic.Relaxed) })
			seen[v.Load(atomic.Relaxed)] = true
			h.Join()
		}
	}

	uninterrupted := map[int32]bool{}
	full, err := loom.NewBuilder().Check(prog(uninterrupted))
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}

	// Run the same program in two-permutation chunks, resuming from a
	// checkpoint file each time. A chunk boundary may replay the
	// permutation the checkpoint captured, so iteration counts can exceed
	// the uninterrupted run, but the covered space must match.
	path := filepath.Join(t.TempDir(), "loom.json")
	chunked := map[int32]bool{}
	total := 0
	for {
		b := loom.NewBuilder().WithCheckpointFile(path)
		b.CheckpointInterval = 1
		b.MaxPermutations = 2
		res, err := b.Check(prog(chunked))
		if err != nil {
			t.Fatalf("Did not expect to receive an error. Got %v", err)
		}
		total += res.Iterations
		if res.Exhausted {
			break
		}
		if total > 10*full.Iterations+10 {
			t.Fatalf("Chunked exploration did not terminate")
		}
	}
	if len(chunked) != len(uninterrupted) {
		t.Errorf("Expected the chunked search to cover the same space. Got: %v, want: %v", chunked, uninterrupted)
	}
	for v := range uninterrupted {
		if !chunked[v] {
			t.Errorf("Value %v was only observed by the uninterrupted search", v)
		}
	}
}

func TestMaxDurationStopsEarly(t *testing.T) {
	prog := func() {
		v := atomic.New(int32(0))
		a := loom.Go(func() { v.Store(1, atomic.Relaxed); v.Store(2, atomic.Relaxed) })
		b := loom.Go(func() { v.Store(3, atomic.Relaxed); v.Store(4, atomic.Relaxed) })
		a.Join()
		b.Join()
	}
	full, err := loom.NewBuilder().Check(prog)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	b := loom.NewBuilder()
	b.MaxDuration = time.Nanosecond
	res, err := b.Check(prog)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	if res.Exhausted {
		t.Errorf("Expected a capped search not to be reported as exhausted")
	}
	if res.Iterations >= full.Iterations {
		t.Errorf("Expected the duration cap to stop the search early. Got: %v of %v", res.Iterations, full.Iterations)
	}
}

func TestUnwritableCheckpointFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "loom.json")
	ran := false
	res, err := loom.NewBuilder().WithCheckpointFile(path).Check(func() {
		ran = true
	})
	if err == nil {
		t.Fatalf("Expected an unwritable checkpoint path to be an error")
	}
	if res.Iterations != 0 || ran {
		t.Errorf("Expected the check to fail before exploring. Got: %v iterations", res.Iterations)
	}
}

func TestCappedRunPersistsCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.json")
	b := loom.NewBuilder().WithCheckpointFile(path)
	b.MaxPermutations = 1
	_, err := b.Check(func() {
		v := atomic.New(int32(0))
		h := loom.Go(func() { v.Store(1, atomic.Relaxed) })
		v.Load(atomic.Relaxed)
		h.Join()
	})
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	// The default interval is far beyond one iteration; the cap itself must
	// leave a resumable checkpoint behind.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected a checkpoint to be written when the cap stopped the search. Got: %v", err)
	}
}

func TestModelPanicsOnFailure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected Model to panic on a failing closure")
		}
	}()
	loom.Model(func() {
		v := atomic.New(int32(0))
		h := loom.Go(func() { v.Store(1, atomic.Relaxed) })
		h.Join()
		if v.Load(atomic.Acquire) != 1 {
			panic("join must publish the store")
		}
		panic("always fails")
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOOM_MAX_BRANCHES", "7")
	t.Setenv("LOOM_CHECKPOINT_INTERVAL", "500")
	t.Setenv("LOOM_MAX_PERMUTATIONS", "3")
	t.Setenv("LOOM_MAX_PREEMPTIONS", "1")
	t.Setenv("LOOM_MAX_DURATION", "10")
	t.Setenv("LOOM_LOG", "1")
	b := loom.NewBuilder()
	if b.MaxBranches != 7 {
		t.Errorf("Expected LOOM_MAX_BRANCHES to apply. Got: %v", b.MaxBranches)
	}
	if b.CheckpointInterval != 500 {
		t.Errorf("Expected LOOM_CHECKPOINT_INTERVAL to apply. Got: %v", b.CheckpointInterval)
	}
	if b.MaxPermutations != 3 {
		t.Errorf("Expected LOOM_MAX_PERMUTATIONS to apply. Got: %v", b.MaxPermutations)
	}
	if b.PreemptionBound != 1 {
		t.Errorf("Expected LOOM_MAX_PREEMPTIONS to apply. Got: %v", b.PreemptionBound)
	}
	if b.MaxDuration != 10*time.Second {
		t.Errorf("Expected LOOM_MAX_DURATION to apply. Got: %v", b.MaxDuration)
	}
	if !b.Log {
		t.Errorf("Expected LOOM_LOG to enable logging")
	}
}

func TestMalformedEnvOverridePanics(t *testing.T) {
	t.Setenv("LOOM_MAX_BRANCHES", "many")
	defer func() {
		if recover() == nil {
			t.Errorf("Expected a malformed override to panic at construction")
		}
	}()
	loom.NewBuilder()
}
