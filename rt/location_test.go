package rt

import (
	"testing"

	"golang.org/x/exp/slices"

	"github.com/JoshMcguigan/loom/trail"
)

// newTestExec installs a bare execution as the active one so location state
// can be driven directly, without the scheduler.
func newTestExec(t *testing.T, numThreads int) *Execution {
	t.Helper()
	e := NewExecution(Bounds{
		MaxThreads:      4,
		MaxMemory:       1 << 20,
		MaxBranches:     1000,
		PreemptionBound: -1,
	}, trail.New(), false)
	active = e
	t.Cleanup(func() { active = nil })
	for i := 0; i < numThreads; i++ {
		thr := e.newThread()
		thr.causality.Inc(thr.id)
	}
	return e
}

func TestRelaxedLoadMayObserveOldWrites(t *testing.T) {
	e := newTestExec(t, 2)
	l := NewLocation()
	reader, writer := e.threads[0], e.threads[1]

	l.recordStore(e, writer, Relaxed)

	got := l.eligible(reader, Relaxed)
	if !slices.Equal(got, []int{0, 1}) {
		t.Errorf("Expected both the initial and the new write to be eligible. Got: %v", got)
	}
}

func TestCoherenceFloorNeverMovesBackwards(t *testing.T) {
	e := newTestExec(t, 2)
	l := NewLocation()
	reader, writer := e.threads[0], e.threads[1]

	l.recordStore(e, writer, Relaxed)
	l.commitLoad(reader, 1, Relaxed)

	got := l.eligible(reader, Relaxed)
	if !slices.Equal(got, []int{1}) {
		t.Errorf("Expected the initial write to be superseded after observing the newer one. Got: %v", got)
	}

	// Another thread's view is unaffected.
	other := l.eligible(writer, Relaxed)
	if !slices.Equal(other, []int{1}) {
		t.Errorf("Expected the writer to only see its own write. Got: %v", other)
	}
}

func TestReleaseAcquireMessagePassing(t *testing.T) {
	e := newTestExec(t, 2)
	data := NewLocation()
	flag := NewLocation()
	reader, writer := e.threads[0], e.threads[1]

	// Writer publishes data with a relaxed store, then releases the flag.
	data.recordStore(e, writer, Relaxed)
	flag.recordStore(e, writer, Release)

	// Before synchronizing, the reader may still observe the old data.
	if got := data.eligible(reader, Relaxed); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("Expected both data writes eligible before synchronization. Got: %v", got)
	}

	// An acquire load of the released flag brings the data write into the
	// reader's happens-before view, superseding the initial write.
	flag.commitLoad(reader, 1, Acquire)
	if got := data.eligible(reader, Relaxed); !slices.Equal(got, []int{1}) {
		t.Errorf("Expected only the published data write after acquire. Got: %v", got)
	}
}

func TestRelaxedStoreDoesNotSynchronize(t *testing.T) {
	e := newTestExec(t, 2)
	data := NewLocation()
	flag := NewLocation()
	reader, writer := e.threads[0], e.threads[1]

	data.recordStore(e, writer, Relaxed)
	flag.recordStore(e, writer, Relaxed)

	// Observing a relaxed store, even with an acquire load, publishes
	// nothing: the write carries no release clock.
	flag.commitLoad(reader, 1, Acquire)
	if got := data.eligible(reader, Relaxed); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("Expected no synchronization through a relaxed store. Got: %v", got)
	}
}

func TestSeqCstLoadFlooredAtNewestSeqCstWrite(t *testing.T) {
	e := newTestExec(t, 3)
	l := NewLocation()
	reader, w1, w2 := e.threads[0], e.threads[1], e.threads[2]

	l.recordStore(e, w1, SeqCst)  // write 1
	l.recordStore(e, w2, Relaxed) // write 2

	// An SC load participates in the global SC order: it cannot observe
	// anything older than the newest SC write.
	if got := l.eligible(reader, SeqCst); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Expected the SC load to be floored at the SC write. Got: %v", got)
	}
	// A relaxed load of the same location is not.
	if got := l.eligible(reader, Relaxed); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("Expected the relaxed load to see the full history. Got: %v", got)
	}
}

func TestEligibleNeverEmpty(t *testing.T) {
	e := newTestExec(t, 1)
	l := NewLocation()
	if got := l.eligible(e.threads[0], SeqCst); !slices.Equal(got, []int{0}) {
		t.Errorf("Expected the initializing write to be eligible. Got: %v", got)
	}
}

func TestMemoryBoundIsFatal(t *testing.T) {
	e := newTestExec(t, 1)
	// Room for the location itself but not for a release store.
	e.bounds.MaxMemory = writeCost + 8*e.bounds.MaxThreads + 10
	defer func() {
		r := recover()
		if _, ok := r.(*BoundError); !ok {
			t.Errorf("Expected a BoundError. Got: %v", r)
		}
	}()
	l := NewLocation()
	l.recordStore(e, e.threads[0], Release)
	t.Errorf("Expected recording past the memory budget to panic")
}
