package rt

import (
	"github.com/JoshMcguigan/loom/trail"
	"github.com/JoshMcguigan/loom/vclock"
)

// A Location is one atomically accessed memory cell. The engine tracks only
// write metadata; the façade owning the location keeps the actual values,
// indexed by the write ids returned from Load and RMWLoad.
//
// Every location starts with a synthetic initial write (id 0) so a load
// always has at least one eligible write to observe.
type Location struct {
	id     int
	writes []write

	// lastSeen is the per-thread coherence floor: the newest write id each
	// thread has observed. A thread never re-reads anything older.
	lastSeen []int

	// seqCstIdx is the id of the newest sequentially consistent write, or
	// 0 while none exists. SC loads do not observe anything older: all SC
	// operations share a single global total order.
	seqCstIdx int
}

// A write records one store: who wrote, at what logical time, and the
// release clock published for acquire loads to join. The write's position in
// the history is its id.
type write struct {
	thread   int
	stamp    uint32
	ordering Ordering
	release  vclock.VClock
}

const (
	writeCost  = 48
	branchCost = 32
)

// NewLocation registers a fresh shared location with the active execution.
// It must be called from inside a model run, and the returned location is
// only valid for the run that created it.
func NewLocation() *Location {
	e := mustActive()
	l := &Location{
		id:       len(e.locations),
		writes:   []write{{thread: -1}},
		lastSeen: make([]int, e.bounds.MaxThreads),
	}
	e.locations = append(e.locations, l)
	e.mustNoteMem(writeCost + len(l.lastSeen)*8)
	return l
}

// knownTo reports whether thread t's causality already covers the store
// event of the write with the given id.
func (l *Location) knownTo(id int, t *thread) bool {
	w := l.writes[id]
	return w.thread >= 0 && t.causality.Get(w.thread) >= w.stamp
}

// eligible returns the ids of every write the given thread may observe with
// a load of ordering o: everything from the newest write the thread is aware
// of (through its own reads or through happens-before) up to the newest
// write in the history. SC loads are additionally floored at the newest SC
// write.
func (l *Location) eligible(t *thread, o Ordering) []int {
	floor := l.lastSeen[t.id]
	for id := floor + 1; id < len(l.writes); id++ {
		if l.knownTo(id, t) {
			floor = id
		}
	}
	if o == SeqCst && l.seqCstIdx > floor {
		floor = l.seqCstIdx
	}
	ids := make([]int, 0, len(l.writes)-floor)
	for id := floor; id < len(l.writes); id++ {
		ids = append(ids, id)
	}
	return ids
}

// commitLoad records that t observed the given write, raising its coherence
// floor and joining the write's release clock when the load acquires.
func (l *Location) commitLoad(t *thread, id int, o Ordering) {
	if id > l.lastSeen[t.id] {
		l.lastSeen[t.id] = id
	}
	w := l.writes[id]
	if o.acquires() && w.release != nil {
		t.causality.Join(w.release)
	}
}

// recordStore appends a new write by t to the history and updates the
// happens-before bookkeeping.
func (l *Location) recordStore(e *Execution, t *thread, o Ordering) {
	t.causality.Inc(t.id)
	w := write{
		thread:   t.id,
		stamp:    t.causality.Get(t.id),
		ordering: o,
	}
	cost := writeCost
	if o.releases() {
		w.release = t.causality.Clone()
		cost += 4 * len(w.release)
	}
	id := len(l.writes)
	l.writes = append(l.writes, w)
	l.lastSeen[t.id] = id
	if o == SeqCst {
		l.seqCstIdx = id
	}
	e.mustNoteMem(cost)
}

// Load resolves one atomic load: a schedule decision point followed by a
// visibility decision point when more than one write is eligible. It returns
// the id of the observed write.
func (l *Location) Load(o Ordering) int {
	e := mustActive()
	e.branchPoint(access{kind: accessLoad, loc: l})
	t := e.currentThread()
	id := e.mustBranch(trail.Load, l.eligible(t, o))
	l.commitLoad(t, id, o)
	return id
}

// Store resolves one atomic store. A store is decision free beyond its
// schedule point: it always appends to the end of the history.
func (l *Location) Store(o Ordering) {
	e := mustActive()
	e.branchPoint(access{kind: accessStore, loc: l})
	l.recordStore(e, e.currentThread(), o)
}

// RMWLoad begins an atomic read-modify-write. Unlike a plain load it is
// decision free: an RMW always observes the newest write in the history.
// The caller performs the modification and commits it with RMWStore before
// reaching any other decision point, which keeps the pair atomic.
func (l *Location) RMWLoad(o Ordering) int {
	e := mustActive()
	e.branchPoint(access{kind: accessRMW, loc: l})
	t := e.currentThread()
	id := len(l.writes) - 1
	l.commitLoad(t, id, o)
	return id
}

// RMWStore commits the write half of a read-modify-write. A failed compare
// and swap simply never calls it, degrading the RMW to a load.
func (l *Location) RMWStore(o Ordering) {
	e := mustActive()
	l.recordStore(e, e.currentThread(), o)
}
