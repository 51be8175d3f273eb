package rt

import "fmt"

// Ordering classifies an atomic operation under the simulated memory model.
// The set of orderings is closed: each carries its own visibility and
// synchronization rule in the location logic.
type Ordering int

const (
	Relaxed Ordering = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

func (o Ordering) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case AcqRel:
		return "acq-rel"
	case SeqCst:
		return "seq-cst"
	}
	return fmt.Sprintf("ordering(%d)", int(o))
}

// acquires reports whether a load with this ordering synchronizes with the
// release clock of the write it observes.
func (o Ordering) acquires() bool {
	return o == Acquire || o == AcqRel || o == SeqCst
}

// releases reports whether a store with this ordering publishes the writer's
// causality for later acquire loads to join.
func (o Ordering) releases() bool {
	return o == Release || o == AcqRel || o == SeqCst
}

// accessKind classifies the operation a logical thread is about to perform.
// The scheduler uses it for equivalence pruning and trace output.
type accessKind int

const (
	accessNone accessKind = iota
	accessLoad
	accessStore
	accessRMW
	accessSpawn
	accessJoin
	accessLock
	accessUnlock
	accessWait
	accessNotify
	accessYield
)

func (k accessKind) String() string {
	switch k {
	case accessNone:
		return "start"
	case accessLoad:
		return "load"
	case accessStore:
		return "store"
	case accessRMW:
		return "rmw"
	case accessSpawn:
		return "spawn"
	case accessJoin:
		return "join"
	case accessLock:
		return "lock"
	case accessUnlock:
		return "unlock"
	case accessWait:
		return "wait"
	case accessNotify:
		return "notify"
	case accessYield:
		return "yield"
	}
	return fmt.Sprintf("access(%d)", int(k))
}

// An access is the pending operation a thread announced at its last decision
// point. loc is nil for operations that do not touch a shared location.
type access struct {
	kind accessKind
	loc  *Location
}

func (a access) String() string {
	if a.loc == nil {
		return a.kind.String()
	}
	return fmt.Sprintf("%v x%d", a.kind, a.loc.id)
}
