// Package atomic provides mock atomic cells for use inside a loom model.
//
// Unlike the standard library, every operation takes an explicit memory
// ordering, and a load may observe a write older than the most recent one
// when the ordering rules allow it. The engine enumerates every valid
// choice across permutations, which is how stale reads that stress testing
// almost never hits become ordinary, reproducible test failures.
package atomic

import (
	"golang.org/x/exp/constraints"

	"github.com/JoshMcguigan/loom/rt"
)

// Re-exported orderings, so test code only imports this package.
const (
	Relaxed = rt.Relaxed
	Acquire = rt.Acquire
	Release = rt.Release
	AcqRel  = rt.AcqRel
	SeqCst  = rt.SeqCst
)

// Ordering classifies an atomic operation under the simulated memory model.
type Ordering = rt.Ordering

// An Atomic is a mock atomic cell holding a value of any integer type. The
// engine tracks the write history and visibility; the cell keeps the
// values, indexed by write id.
type Atomic[T constraints.Integer] struct {
	loc  *rt.Location
	vals []T
}

// New creates an atomic cell initialized to v. It must be called inside the
// tested closure.
func New[T constraints.Integer](v T) *Atomic[T] {
	return &Atomic[T]{
		loc:  rt.NewLocation(),
		vals: []T{v},
	}
}

// Load returns a value the cell may hold from this thread's point of view.
// Which eligible write is observed is a decision point outcome.
func (a *Atomic[T]) Load(o Ordering) T {
	return a.vals[a.loc.Load(o)]
}

// Store appends v to the cell's write history.
func (a *Atomic[T]) Store(v T, o Ordering) {
	a.loc.Store(o)
	a.vals = append(a.vals, v)
}

// Swap atomically replaces the newest value with v and returns the value it
// replaced.
func (a *Atomic[T]) Swap(v T, o Ordering) T {
	old := a.vals[a.loc.RMWLoad(o)]
	a.loc.RMWStore(o)
	a.vals = append(a.vals, v)
	return old
}

// Add atomically adds delta to the newest value and returns the new value.
func (a *Atomic[T]) Add(delta T, o Ordering) T {
	v := a.vals[a.loc.RMWLoad(o)] + delta
	a.loc.RMWStore(o)
	a.vals = append(a.vals, v)
	return v
}

// CompareAndSwap atomically replaces the newest value with new if it equals
// old, reporting whether the swap happened. A failed swap degrades to a
// load of the newest value.
func (a *Atomic[T]) CompareAndSwap(old, new T, o Ordering) bool {
	if a.vals[a.loc.RMWLoad(o)] != old {
		return false
	}
	a.loc.RMWStore(o)
	a.vals = append(a.vals, new)
	return true
}
