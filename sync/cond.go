package sync

import "github.com/JoshMcguigan/loom/rt"

// A Cond is a mock condition variable. Wait and Signal are decision points,
// which is what lets the engine reliably reproduce lost wake-ups: the
// permutation where Signal fires before Wait starts is explored like any
// other.
type Cond struct {
	// L is the mutex released while waiting and reacquired before Wait
	// returns.
	L *Mutex

	st *rt.CondState
}

func NewCond(l *Mutex) *Cond {
	return &Cond{L: l}
}

func (c *Cond) state() *rt.CondState {
	if c.st == nil {
		c.st = rt.NewCondState()
	}
	return c.st
}

// Wait atomically releases c.L and blocks the logical thread until it is
// woken, then reacquires c.L. As with the real primitive, callers must
// recheck their condition in a loop.
func (c *Cond) Wait() {
	rt.CondWait(c.state(), c.L.state())
}

// Signal wakes one waiting thread, chosen at a decision point. Signaling
// with no waiters does nothing.
func (c *Cond) Signal() {
	rt.CondNotify(c.state(), false)
}

// Broadcast wakes every waiting thread.
func (c *Cond) Broadcast() {
	rt.CondNotify(c.state(), true)
}
