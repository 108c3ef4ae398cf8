// Package schedule decides whether booking windows conflict and which
// resources remain free for a window.
package schedule

import (
	"errors"
	"sort"
)

// ErrNoneAvailable is returned by Pick when every resource is taken.
var ErrNoneAvailable = errors.New("no resource available")

// Window is a half-open interval [Start, End) in minutes since midnight.
type Window struct {
	Start int
	End   int
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return w.Start < w.End
}

// Within reports whether the window lies inside [open, close].
func (w Window) Within(open, close int) bool {
	return w.Valid() && w.Start >= open && w.End <= close
}

// Hours is the window length rounded down to whole hours.
func (w Window) Hours() int {
	return (w.End - w.Start) / 60
}

// Overlaps reports whether two windows share any minute. Touching windows
// do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && w.End > o.Start
}

// HasOverlap reports whether candidate overlaps any existing window.
func HasOverlap(existing []Window, candidate Window) bool {
	for _, w := range existing {
		if w.Overlaps(candidate) {
			return true
		}
	}
	return false
}

// Available returns the ids in all that are not in taken, in ascending order.
func Available(all, taken []int64) []int64 {
	busy := make(map[int64]struct{}, len(taken))
	for _, id := range taken {
		busy[id] = struct{}{}
	}
	free := make([]int64, 0, len(all))
	for _, id := range all {
		if _, ok := busy[id]; !ok {
			free = append(free, id)
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	return free
}

// Intn is the random source used by Pick. *rand.Rand from math/rand/v2
// satisfies it.
type Intn interface {
	IntN(n int) int
}

// Pick chooses uniformly from available.
func Pick(r Intn, available []int64) (int64, error) {
	if len(available) == 0 {
		return 0, ErrNoneAvailable
	}
	return available[r.IntN(len(available))], nil
}

// Range returns the ids 1..n.
func Range(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}
