// Package sync provides mock synchronization primitives for use inside a
// loom model. Each type mirrors its standard library counterpart but
// registers every operation with the exploration engine, so lock handoffs
// and wake-ups become decision points the engine can permute.
//
// Primitives must be created inside the tested closure: each permutation
// runs against fresh engine state, and a primitive outlives its run only as
// garbage.
package sync

import "github.com/JoshMcguigan/loom/rt"

// A Mutex is a mock mutual exclusion lock. When several threads contend,
// the thread that acquires the lock next is a decision point outcome: every
// handoff order is explored.
//
// The zero value is ready to use.
type Mutex struct {
	st *rt.MutexState
}

func (m *Mutex) state() *rt.MutexState {
	if m.st == nil {
		m.st = rt.NewMutexState()
	}
	return m.st
}

// Lock acquires the mutex, blocking the logical thread while another
// thread holds it. Everything the previous holder did before unlocking is
// visible after Lock returns.
func (m *Mutex) Lock() {
	rt.MutexAcquire(m.state())
}

// Unlock releases the mutex. Unlocking a mutex held by another thread is a
// tested-program bug and fails the check.
func (m *Mutex) Unlock() {
	rt.MutexRelease(m.state())
}
