package rt

import (
	"fmt"
	"log"

	"github.com/JoshMcguigan/loom/trail"
)

// active is the execution currently being driven by Scheduler.Run. Exactly
// one execution is live at a time and exactly one logical thread runs
// between any two decision points, so this needs no locking: it is written
// by Run before any thread starts and read only by the thread holding the
// wake token.
var active *Execution

func mustActive() *Execution {
	if active == nil {
		panic("rt: loom primitive used outside of a model run")
	}
	return active
}

// The Scheduler drives one run of the tested closure to completion,
// cooperating with the execution's decision trail to resolve every decision
// point deterministically: recorded outcomes are replayed exactly, and new
// decision points record their full outcome set before committing to the
// first option.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Run executes f to completion under the execution's control. It returns
// nil when every logical thread terminated (including runs cut short by a
// soft bound), a *FailureError when the tested program panicked, misused a
// primitive, or deadlocked, and a hard error when a configuration bound was
// violated or the program replayed non-deterministically.
func (s *Scheduler) Run(e *Execution, f func()) error {
	active = e
	defer func() { active = nil }()

	main := e.newThread()
	main.causality.Inc(main.id)
	e.startThread(main, func() {
		f()
		ThreadDone()
	})

	for {
		runnable := e.runnableIDs()
		if len(runnable) == 0 {
			if e.liveCount() == 0 {
				return nil
			}
			err := e.failure(fmt.Sprintf("deadlock: %v threads blocked: %v", e.liveCount(), e.blockedSummary()))
			s.stopAll(e)
			return err
		}

		options := e.scheduleOptions(runnable)
		if !e.trail.Replaying() && e.trail.Len() >= e.bounds.MaxBranches {
			e.bounded = true
			s.stopAll(e)
			return nil
		}
		tid, created, err := e.trail.Next(trail.Schedule, options)
		if err != nil {
			s.stopAll(e)
			return err
		}
		if created {
			if err := e.noteMem(branchCost + 8*len(options)); err != nil {
				s.stopAll(e)
				return err
			}
		}
		if e.activeTid >= 0 && tid != e.activeTid && e.threads[e.activeTid].status == statusRunnable {
			e.preemptions++
		}

		t := e.threads[tid]
		if e.Log {
			log.Printf("loom: %v runs %v (options %v)", t, t.pending, options)
		}
		e.activeTid = tid
		t.wake <- struct{}{}

		ev := <-e.schedCh
		if ev.exited {
			if ev.fatal != nil {
				s.stopAll(e)
				return ev.fatal
			}
			if ev.panicked {
				failure := e.failure(ev.panicVal)
				s.stopAll(e)
				return failure
			}
		}
		if e.stopping {
			// A thread hit a soft bound and aborted the run.
			s.stopAll(e)
			return nil
		}
	}
}

// scheduleOptions narrows the runnable set to the outcomes worth exploring.
//
// Equivalence pruning: two threads whose pending operations are both loads
// of the same location are interchangeable, because a load never changes
// anything another thread can observe; only the first is kept as the
// representative. Any other pair of operations is conservatively treated as
// dependent and explored.
//
// Preemption bounding: once the preemption budget is spent, the running
// thread keeps the token as long as it stays runnable.
func (e *Execution) scheduleOptions(runnable []int) []int {
	if e.bounds.PreemptionBound >= 0 && e.preemptions >= e.bounds.PreemptionBound &&
		e.activeTid >= 0 && e.threads[e.activeTid].status == statusRunnable {
		if len(runnable) > 1 {
			e.bounded = true
		}
		return []int{e.activeTid}
	}

	options := make([]int, 0, len(runnable))
	reading := map[*Location]bool{}
	for _, tid := range runnable {
		p := e.threads[tid].pending
		if p.kind == accessLoad && p.loc != nil {
			if reading[p.loc] {
				continue
			}
			reading[p.loc] = true
		}
		options = append(options, tid)
	}
	return options
}

// stopAll unwinds every live thread goroutine so the run leaves nothing
// behind. Each thread is woken in turn, observes the stopping flag, and
// reports its exit.
func (s *Scheduler) stopAll(e *Execution) {
	e.stopping = true
	for _, t := range e.threads {
		if t.status == statusTerminated {
			continue
		}
		t.wake <- struct{}{}
		<-e.schedCh
	}
}

func (e *Execution) blockedSummary() []string {
	blocked := []string{}
	for _, t := range e.threads {
		if t.status == statusBlocked {
			blocked = append(blocked, fmt.Sprintf("%v (%v)", t, t.blockReason))
		}
	}
	return blocked
}
