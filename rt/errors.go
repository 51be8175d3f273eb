package rt

import (
	"errors"
	"fmt"
)

// errAborted unwinds thread goroutines when a run is cut short, either by a
// soft bound or because another thread failed. It never escapes the engine.
var errAborted = errors.New("rt: run aborted")

// A BoundError reports that the tested program exceeded a hard configuration
// bound. This is not a finding about the program's correctness: the test
// exceeds what the engine was configured to analyze. It is fatal and the
// check is never retried.
type BoundError struct {
	Bound string
	Limit int
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("rt: exceeded configured %v bound (%d)", e.Bound, e.Limit)
}

// A FailureError is the outcome of a check whose tested program failed: a
// panic inside the closure, a misused primitive, or a deadlock. It carries
// the serialized decision trail of the failing permutation so the failure
// can be reproduced exactly.
type FailureError struct {
	Value any
	Trail string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("rt: tested program failed: %v\nreproducible trail: %v", e.Value, e.Trail)
}
