package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the wire and storage format of a civil date.
const DateLayout = "2006-01-02"

// clockRegex matches a 24h wall-clock time such as 09:00 or 9:30.
var clockRegex = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// Date parses a YYYY-MM-DD civil date. The result is midnight UTC so that
// dates compare and subtract without zone effects.
func Date(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DateOf returns the civil date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clock parses an HH:MM wall-clock time into minutes since midnight.
func Clock(s string) (int, error) {
	m := clockRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return h*60 + mm, nil
}

// FormatClock renders minutes since midnight as zero-padded HH:MM.
// 24:00 is allowed so that a window may end at midnight.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// At combines a civil date and a minute-of-day into an instant in loc.
func At(date time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(minutes) * time.Minute)
}
