package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/light-controller/internal/device"
)

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTime resolves a timer time against now. Inputs containing 'T' are
// ISO-8601: a zone suffix (Z or an offset) is honoured, otherwise the time is
// taken in now's location. Anything else is a wall-clock HH:MM or HH:MM:SS on
// now's calendar day.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: time is required", device.ErrValidation)
	}

	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: invalid time format %q", device.ErrValidation, s)
	}

	for _, layout := range []string{"15:04", "15:04:05"} {
		clock, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		y, m, d := now.Date()
		return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid time format %q, want ISO-8601 or HH:MM", device.ErrValidation, s)
}

// NextFire returns the occurrence after t for a recurring rule. Days are
// added on the wall clock, so a 07:00 timer stays at 07:00 across DST.
// For RepeatOnce it returns t unchanged.
func NextFire(t time.Time, r Repeat) time.Time {
	switch r {
	case RepeatDaily:
		return t.AddDate(0, 0, 1)
	case RepeatWeekdays:
		next := t.AddDate(0, 0, 1)
		for isWeekend(next.Weekday()) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case RepeatWeekends:
		next := t.AddDate(0, 0, 1)
		for !isWeekend(next.Weekday()) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	return t
}

// rollForward advances t by the rule until it is strictly after now.
func rollForward(t time.Time, r Repeat, now time.Time) time.Time {
	if r == RepeatOnce {
		return t
	}
	next := NextFire(t, r)
	for !next.After(now) {
		next = NextFire(next, r)
	}
	return next
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
