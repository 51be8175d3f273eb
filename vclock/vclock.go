package vclock

import "golang.org/x/exp/slices"

// A VClock is a fixed-width vector clock with one slot per logical thread.
//
// The width is fixed at the maximum number of threads configured for an
// execution, so clocks can be compared and joined without reallocating.
type VClock []uint32

// New creates a zeroed vector clock with one slot per thread.
func New(width int) VClock {
	return make(VClock, width)
}

// Get returns the logical time recorded for the given thread.
func (vc VClock) Get(tid int) uint32 {
	return vc[tid]
}

// Inc advances the logical time of the given thread by one.
func (vc VClock) Inc(tid int) {
	vc[tid]++
}

// Join sets the clock to the pairwise maximum of itself and other.
func (vc VClock) Join(other VClock) {
	for i, v := range other {
		if v > vc[i] {
			vc[i] = v
		}
	}
}

// HappensBefore reports whether every component of the clock is less than
// or equal to the corresponding component of other.
func (vc VClock) HappensBefore(other VClock) bool {
	for i, v := range vc {
		if v > other[i] {
			return false
		}
	}
	return true
}

// Equals reports whether the two clocks record identical logical times.
func (vc VClock) Equals(other VClock) bool {
	return slices.Equal(vc, other)
}

// Clone returns an independent copy of the clock.
func (vc VClock) Clone() VClock {
	return slices.Clone(vc)
}
