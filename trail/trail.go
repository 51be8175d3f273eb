package trail

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// The kind of outcome recorded at a decision point.
type Kind int

const (
	// Schedule selects which runnable thread proceeds next.
	Schedule Kind = iota
	// Load selects which recorded write an atomic load observes.
	Load
	// Pick selects which blocked thread a wake-up is delivered to.
	Pick
)

func (k Kind) String() string {
	switch k {
	case Schedule:
		return "schedule"
	case Load:
		return "load"
	case Pick:
		return "pick"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// A Branch records one decision point: the full set of legal outcomes that
// were available when the point was first reached, and the outcome taken on
// the current permutation. Options holds domain identifiers (thread ids or
// write ids), so a branch can be replayed without consulting any other state.
type Branch struct {
	Kind    Kind  `json:"kind"`
	Options []int `json:"options"`
	Chosen  int   `json:"chosen"`
}

// A Trail is the ordered record of every decision made during one run,
// together with the bookkeeping needed to enumerate the remaining
// permutations depth first. It is pure data: the scheduler replays it to
// reproduce a prefix bit for bit and extends it when it runs past the end.
type Trail struct {
	Branches []Branch `json:"branches"`

	// Position of the next decision point in the current run. Not
	// serialized: a loaded trail always starts a fresh run.
	pos int
}

func New() *Trail {
	return &Trail{}
}

// Len returns the number of decision points recorded so far.
func (t *Trail) Len() int {
	return len(t.Branches)
}

// Replaying reports whether the next decision point has a recorded outcome.
func (t *Trail) Replaying() bool {
	return t.pos < len(t.Branches)
}

// Next resolves the decision point at the current position. If the trail has
// a recorded outcome at this position it is replayed; otherwise a new branch
// holding the full option set is appended and the first option is committed.
// The returned value is the chosen option, not its index.
//
// During replay the recomputed option set must match the recorded one
// exactly. A mismatch means the tested program made a choice outside the
// engine's control and the whole check is invalid.
func (t *Trail) Next(kind Kind, options []int) (choice int, created bool, err error) {
	if len(options) == 0 {
		return 0, false, fmt.Errorf("trail: decision point with no legal outcome")
	}
	if t.pos < len(t.Branches) {
		b := t.Branches[t.pos]
		if b.Kind != kind || !slices.Equal(b.Options, options) {
			return 0, false, &NonDeterminismError{
				Detail: fmt.Sprintf("replay expected %v over %v, program offered %v over %v",
					b.Kind, b.Options, kind, options),
			}
		}
		t.pos++
		return b.Options[b.Chosen], false, nil
	}
	t.Branches = append(t.Branches, Branch{
		Kind:    kind,
		Options: slices.Clone(options),
	})
	t.pos++
	return options[0], true, nil
}

// Advance moves the trail to the next unexplored permutation: the deepest
// branch with an untried option takes its next option and everything after
// it is discarded, since a different earlier choice invalidates the suffix.
// It returns false when every option of every branch has been tried.
func (t *Trail) Advance() bool {
	for i := len(t.Branches) - 1; i >= 0; i-- {
		b := &t.Branches[i]
		if b.Chosen+1 < len(b.Options) {
			b.Chosen++
			t.Branches = t.Branches[:i+1]
			t.pos = 0
			return true
		}
	}
	return false
}

// Rewind resets the replay position so the trail drives a fresh run.
func (t *Trail) Rewind() {
	t.pos = 0
}

// NonDeterminismError reports that the tested program behaved differently
// during replay than it did when a prefix was first explored.
type NonDeterminismError struct {
	Detail string
}

func (e *NonDeterminismError) Error() string {
	return "trail: non-determinism detected: " + e.Detail
}
