// Package rt is the exploration engine behind loom: it simulates a relaxed
// memory model, drives the tested program's logical threads one decision
// point at a time, and enumerates the remaining interleavings depth first.
//
// The façade packages (loom/sync, loom/sync/atomic) register every
// observable operation here and otherwise delegate; the engine itself holds
// all state inside the active Execution.
package rt

import (
	"golang.org/x/exp/slices"

	"github.com/JoshMcguigan/loom/trail"
	"github.com/JoshMcguigan/loom/vclock"
)

// Spawn starts a new logical thread running body and returns its id. The
// child begins with the parent's happens-before view. Spawning more than
// the configured maximum number of threads is a hard configuration
// violation, never a silent truncation.
func Spawn(body func()) int {
	e := mustActive()
	if len(e.threads) >= e.bounds.MaxThreads {
		panic(&BoundError{Bound: "max_threads", Limit: e.bounds.MaxThreads})
	}
	parent := e.currentThread()
	t := e.newThread()
	t.causality.Join(parent.causality)
	t.causality.Inc(t.id)
	e.startThread(t, func() {
		body()
		ThreadDone()
	})
	e.branchPoint(access{kind: accessSpawn})
	return t.id
}

// Join blocks the running thread until the thread with the given id
// terminates, then joins its happens-before view: everything the joined
// thread did is visible to the joiner.
func Join(tid int) {
	e := mustActive()
	e.branchPoint(access{kind: accessJoin})
	t := e.currentThread()
	target := e.threads[tid]
	if target.status != statusTerminated {
		target.joiners = append(target.joiners, t)
		e.blockCurrent("join")
	}
	t.causality.Join(target.causality)
}

// Yield gives up the token at an explicit decision point without performing
// any operation. Test authors use it to express the fairness they rely on.
func Yield() {
	e := mustActive()
	e.branchPoint(access{kind: accessYield})
}

// ThreadDone marks the running logical thread as terminated and wakes its
// joiners. It is called automatically when a thread body returns.
func ThreadDone() {
	e := mustActive()
	e.markDone(e.currentThread())
}

// MutexState is the engine-side state of one mutex façade. Ownership is
// transferred directly to a waiter chosen at a decision point, and the
// release clock carries the happens-before edge from each unlock to the
// next lock.
type MutexState struct {
	holder  int
	waiters []int
	clock   vclock.VClock
}

// NewMutexState registers a fresh mutex with the active execution. Like
// locations, mutex state is only valid for the run that created it.
func NewMutexState() *MutexState {
	mustActive()
	return &MutexState{holder: -1}
}

// MutexAcquire locks the mutex for the running thread, blocking while
// another thread holds it.
func MutexAcquire(m *MutexState) {
	e := mustActive()
	e.branchPoint(access{kind: accessLock})
	e.lockSlow(m)
}

// lockSlow takes the mutex or enqueues and blocks. On wake the ownership
// has already been transferred by the releasing thread.
func (e *Execution) lockSlow(m *MutexState) {
	t := e.currentThread()
	if m.holder < 0 {
		m.holder = t.id
	} else {
		m.waiters = append(m.waiters, t.id)
		e.blockCurrent("mutex")
	}
	if m.clock != nil {
		t.causality.Join(m.clock)
	}
}

// MutexRelease unlocks the mutex. When threads are waiting, the successor
// is a decision point outcome: each waiter is a distinct permutation.
// Unlocking a mutex the thread does not hold is a tested-program bug.
func MutexRelease(m *MutexState) {
	e := mustActive()
	e.branchPoint(access{kind: accessUnlock})
	e.unlockSlow(m)
}

func (e *Execution) unlockSlow(m *MutexState) {
	t := e.currentThread()
	if m.holder != t.id {
		panic("sync: unlock of a mutex not held by this thread")
	}
	t.causality.Inc(t.id)
	m.clock = t.causality.Clone()
	if len(m.waiters) == 0 {
		m.holder = -1
		return
	}
	next := e.mustBranch(trail.Pick, slices.Clone(m.waiters))
	for i, tid := range m.waiters {
		if tid == next {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			break
		}
	}
	m.holder = next
	w := e.threads[next]
	w.status = statusRunnable
	w.blockReason = ""
}

// CondState is the engine-side state of one condition variable façade.
type CondState struct {
	waiters []int
}

// NewCondState registers a fresh condition variable with the active
// execution.
func NewCondState() *CondState {
	mustActive()
	return &CondState{}
}

// CondWait atomically releases the mutex and blocks the running thread
// until it is notified, then reacquires the mutex before returning. A
// notification delivered before the wait starts is lost, exactly like the
// real primitive: that is the defect class this engine exists to surface.
func CondWait(c *CondState, m *MutexState) {
	e := mustActive()
	e.branchPoint(access{kind: accessWait})
	t := e.currentThread()
	c.waiters = append(c.waiters, t.id)
	e.unlockSlow(m)
	e.blockCurrent("cond wait")
	e.lockSlow(m)
}

// CondNotify wakes one waiter, chosen at a decision point, or every waiter
// when all is set. Notifying with no waiters is a no-op.
func CondNotify(c *CondState, all bool) {
	e := mustActive()
	e.branchPoint(access{kind: accessNotify})
	if len(c.waiters) == 0 {
		return
	}
	if all {
		for _, tid := range c.waiters {
			w := e.threads[tid]
			w.status = statusRunnable
			w.blockReason = ""
		}
		c.waiters = nil
		return
	}
	next := e.mustBranch(trail.Pick, slices.Clone(c.waiters))
	for i, tid := range c.waiters {
		if tid == next {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	w := e.threads[next]
	w.status = statusRunnable
	w.blockReason = ""
}
