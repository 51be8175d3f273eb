package rt

import (
	"fmt"

	"github.com/JoshMcguigan/loom/vclock"
)

type threadStatus int

const (
	statusRunnable threadStatus = iota
	statusBlocked
	statusTerminated
)

// A thread is one logical thread of the tested program. It is backed by a
// real goroutine, but the goroutine only ever runs while it holds the wake
// token, so exactly one logical thread executes between any two decision
// points.
type thread struct {
	id     int
	status threadStatus
	wake   chan struct{}

	// causality is the thread's happens-before view, advanced by its own
	// writes and joined with release clocks it observes.
	causality vclock.VClock

	// pending is the operation announced at the thread's current decision
	// point. Consulted by the scheduler while the thread is parked.
	pending access

	// blockReason is set while status is statusBlocked, for deadlock
	// reports.
	blockReason string

	// joiners are threads blocked waiting for this thread to terminate.
	joiners []*thread
}

func (t *thread) String() string {
	return fmt.Sprintf("t%d", t.id)
}

// newThread allocates the next logical thread. The caller is responsible for
// checking the thread bound and seeding the causality clock.
func (e *Execution) newThread() *thread {
	t := &thread{
		id:        len(e.threads),
		wake:      make(chan struct{}),
		causality: vclock.New(e.bounds.MaxThreads),
	}
	e.threads = append(e.threads, t)
	return t
}

// startThread launches the goroutine backing t. The goroutine parks until
// the scheduler first selects the thread, runs body to completion, and
// reports its exit on the scheduler channel.
func (e *Execution) startThread(t *thread, body func()) {
	go func() {
		defer func() {
			e.finishThread(t, recover())
		}()
		<-t.wake
		if e.stopping {
			return
		}
		body()
	}()
}

// finishThread marks t terminated and hands control back to the scheduler,
// classifying any recovered panic.
func (e *Execution) finishThread(t *thread, recovered any) {
	e.markDone(t)
	ev := threadEvent{tid: t.id, exited: true}
	switch r := recovered.(type) {
	case nil:
	case error:
		if r == errAborted {
			break
		}
		if fatal := asFatal(r); fatal != nil {
			ev.fatal = fatal
		} else {
			ev.panicked = true
			ev.panicVal = r
		}
	default:
		ev.panicked = true
		ev.panicVal = r
	}
	e.schedCh <- ev
}

// markDone transitions t to terminated and makes its joiners runnable. It is
// idempotent so an explicit ThreadDone followed by the goroutine's own exit
// path is harmless.
func (e *Execution) markDone(t *thread) {
	if t.status == statusTerminated {
		return
	}
	t.status = statusTerminated
	for _, j := range t.joiners {
		j.status = statusRunnable
		j.blockReason = ""
	}
	t.joiners = nil
}

// blockCurrent parks the running thread until another thread makes it
// runnable and the scheduler selects it again.
func (e *Execution) blockCurrent(reason string) {
	t := e.currentThread()
	t.status = statusBlocked
	t.blockReason = reason
	e.schedCh <- threadEvent{tid: t.id}
	<-t.wake
	if e.stopping {
		panic(errAborted)
	}
}

// branchPoint announces the operation the running thread is about to
// perform and yields to the scheduler for a schedule decision. The thread
// resumes once it is selected again, which may be immediately.
func (e *Execution) branchPoint(a access) {
	t := e.currentThread()
	t.pending = a
	e.schedCh <- threadEvent{tid: t.id}
	<-t.wake
	if e.stopping {
		panic(errAborted)
	}
}
