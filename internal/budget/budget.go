// Package budget tracks the wall-clock allowance shared by an action, its
// post-action wait, and the vision call that may follow. The vision call gets
// whatever is left of the total deadline, but never less than the floor: a
// truncated vision call is worse than none, so below the floor the call is
// skipped outright.
package budget

import "time"

const (
	// DefaultTotal is the overall deadline for one invocation.
	DefaultTotal = 130 * time.Second
	// DefaultFloor is the minimum allowance a vision call must receive.
	DefaultFloor = 10 * time.Second
)

// Budget is a pure remaining-time calculator. Callers must recompute after
// every phase that consumes wall-clock time; the value is never cached.
type Budget struct {
	Total time.Duration
	Floor time.Duration
}

// New returns a Budget, substituting defaults for non-positive inputs.
func New(total, floor time.Duration) Budget {
	if total <= 0 {
		total = DefaultTotal
	}
	if floor <= 0 {
		floor = DefaultFloor
	}
	return Budget{Total: total, Floor: floor}
}

// Remaining reports the time available for the next phase. ok is false when
// less than the floor is left, meaning the vision call must be skipped, not
// shortened. When ok is true the result is always >= Floor.
func (b Budget) Remaining(elapsed time.Duration) (time.Duration, bool) {
	left := b.Total - elapsed
	if left < b.Floor {
		return 0, false
	}
	return left, true
}
