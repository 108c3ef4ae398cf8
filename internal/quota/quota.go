// Package quota tracks accumulated usage hours per student against daily
// and weekly limits.
//
// Every function is pure: it takes a Usage value and returns the next one.
// Callers load the value, transform it, and persist the result.
package quota

import (
	"errors"
	"time"
)

var (
	ErrDailyExceeded  = errors.New("daily usage limit exceeded")
	ErrWeeklyExceeded = errors.New("weekly usage limit exceeded")
)

// Usage is one student's counters for one resource kind. Day and WeekStart
// are the reset watermarks; a zero value means the counter was never used.
type Usage struct {
	Daily     int
	Weekly    int
	Day       time.Time
	WeekStart time.Time
}

// Limits is the quota policy of a resource kind. A zero Weekly means the
// kind has no weekly quota and the weekly counter is left untouched.
type Limits struct {
	Daily  int
	Weekly int
}

// WeekStart returns the Monday of the week containing day.
func WeekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	y, m, d := day.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TracksWeekly reports whether the weekly counter is maintained.
func (l Limits) TracksWeekly() bool {
	return l.Weekly > 0
}

// Reset zeroes every counter whose watermark does not match day, and moves
// that watermark to day (or its Monday for the weekly counter).
func (l Limits) Reset(u Usage, day time.Time) Usage {
	if u.Day.IsZero() || !sameDay(u.Day, day) {
		u.Daily = 0
		u.Day = day
	}
	if l.TracksWeekly() {
		monday := WeekStart(day)
		if u.WeekStart.IsZero() || !sameDay(u.WeekStart, monday) {
			u.Weekly = 0
			u.WeekStart = monday
		}
	}
	return u
}

// Check reports whether hours more usage fits within the limits. u must
// already be reset for the day being booked.
func (l Limits) Check(u Usage, hours int) error {
	if u.Daily+hours > l.Daily {
		return ErrDailyExceeded
	}
	if l.TracksWeekly() && u.Weekly+hours > l.Weekly {
		return ErrWeeklyExceeded
	}
	return nil
}

// Apply adds delta to the daily counter and, when tracked, the weekly one.
// A counter that would go negative is clamped to zero and clamped is true.
func (l Limits) Apply(u Usage, delta int) (next Usage, clamped bool) {
	u.Daily, clamped = add(u.Daily, delta)
	if l.TracksWeekly() {
		var wc bool
		u.Weekly, wc = add(u.Weekly, delta)
		clamped = clamped || wc
	}
	return u, clamped
}

// Settle applies delta on behalf of a reservation held on day. Only the
// counters whose watermark covers day are changed; a counter already rolled
// over to another window reads as zero for day and is left as is.
func (l Limits) Settle(u Usage, day time.Time, delta int) (next Usage, clamped bool) {
	if !u.Day.IsZero() && sameDay(u.Day, day) {
		var c bool
		u.Daily, c = add(u.Daily, delta)
		clamped = clamped || c
	}
	if l.TracksWeekly() && !u.WeekStart.IsZero() && sameDay(u.WeekStart, WeekStart(day)) {
		var c bool
		u.Weekly, c = add(u.Weekly, delta)
		clamped = clamped || c
	}
	return u, clamped
}

func add(counter, delta int) (int, bool) {
	n := counter + delta
	if n < 0 {
		return 0, true
	}
	return n, false
}
