package client

import (
	"fmt"
	"strings"
	"time"
)

// timeOfDayLayout accepts an optional fractional second (".500", ".5", ".500000").
const timeOfDayLayout = "15:04:05"

// TargetInstant is an absolute fire time in Unix milliseconds.
type TargetInstant int64

// Time returns the instant in the local zone.
func (t TargetInstant) Time() time.Time {
	return time.UnixMilli(int64(t))
}

// ResolveTarget turns a "HH:MM:SS.mmm" time of day into the next instant
// strictly after now. The time is placed on now's calendar date in now's
// location; an instant at or before now moves to the following day.
func ResolveTarget(timeOfDay string, now time.Time) (TargetInstant, error) {
	s := strings.TrimSpace(timeOfDay)
	if strings.Count(s, ":") != 2 {
		return 0, fmt.Errorf("%w: %q, expected HH:MM:SS.mmm", ErrParse, timeOfDay)
	}
	tod, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q, expected HH:MM:SS.mmm", ErrParse, timeOfDay)
	}

	y, m, d := now.Date()
	at := func(day int) time.Time {
		t := time.Date(y, m, day, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), now.Location())
		return t.Round(time.Millisecond)
	}

	target := at(d)
	if !target.After(now) {
		target = at(d + 1)
	}
	return TargetInstant(target.UnixMilli()), nil
}
