// Package civiltime converts absolute instants into wall-clock days and hours of a
// civil timezone that follows the EU daylight-saving rule.
//
// Summer time starts on the last Sunday of March at 01:00 UTC and ends on the
// last Sunday of October at 01:00 UTC. Everything here is pure: callers read
// the clock once and pass the instant in.
package civiltime

import (
	"time"
)

// Clock returns the current instant.
type Clock func() time.Time

// Zone is a civil timezone described by its winter and summer UTC offsets in minutes.
type Zone struct {
	Name         string
	WinterOffset int
	SummerOffset int
	WinterAbbrev string
	SummerAbbrev string
}

// Warsaw is the zone the studio operates in.
var Warsaw = Zone{
	Name:         "Europe/Warsaw",
	WinterOffset: 60,
	SummerOffset: 120,
	WinterAbbrev: "CET",
	SummerAbbrev: "CEST",
}

// Window is a half-open interval [Start, End) with a category label.
type Window struct {
	Start time.Time
	End   time.Time
	Label string
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration is the absolute length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// lastSunday returns 01:00 UTC on the last Sunday of month.
func lastSunday(year int, month time.Month) time.Time {
	// day 0 of the following month is the last day of month
	last := time.Date(year, month+1, 0, 1, 0, 0, 0, time.UTC)
	return last.AddDate(0, 0, -int(last.Weekday()))
}

// SummerTimeBounds returns the UTC instants at which summer time starts and ends in year.
func SummerTimeBounds(year int) (start, end time.Time) {
	return lastSunday(year, time.March), lastSunday(year, time.October)
}

// OffsetMinutesFor returns the UTC offset in minutes in effect at t.
func (z Zone) OffsetMinutesFor(t time.Time) int {
	u := t.UTC()
	start, end := SummerTimeBounds(u.Year())
	if !u.Before(start) && u.Before(end) {
		return z.SummerOffset
	}
	return z.WinterOffset
}

func (z Zone) location(offset int) *time.Location {
	name := z.WinterAbbrev
	if offset == z.SummerOffset && z.SummerOffset != z.WinterOffset {
		name = z.SummerAbbrev
	}
	return time.FixedZone(name, offset*60)
}

// In expresses t in the zone's wall clock. The instant is unchanged.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.location(z.OffsetMinutesFor(t)))
}

// Now reads clock once and returns the instant in the zone.
func (z Zone) Now(clock Clock) time.Time {
	if clock == nil {
		clock = time.Now
	}
	return z.In(clock())
}

// Date builds the instant for a wall-clock time. Out-of-range values are
// normalized the way time.Date does. A time that occurs twice resolves to the
// first occurrence; a time skipped by the spring change resolves with the
// winter offset.
func (z Zone) Date(year int, month time.Month, day, hour, minute int) time.Time {
	naive := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	for _, off := range []int{z.SummerOffset, z.WinterOffset} {
		t := naive.Add(-time.Duration(off) * time.Minute)
		if z.OffsetMinutesFor(t) == off {
			return z.In(t)
		}
	}
	return z.In(naive.Add(-time.Duration(z.WinterOffset) * time.Minute))
}

// AtWallClock returns hour:minute on the civil date of ref.
func (z Zone) AtWallClock(ref time.Time, hour, minute int) time.Time {
	y, m, d := z.In(ref).Date()
	return z.Date(y, m, d, hour, minute)
}

// AddDays returns hour:minute on the civil date of ref shifted by days.
func (z Zone) AddDays(ref time.Time, days, hour, minute int) time.Time {
	y, m, d := z.In(ref).Date()
	return z.Date(y, m, d+days, hour, minute)
}

// StartOfDay returns civil midnight of the day ref falls on.
func (z Zone) StartOfDay(ref time.Time) time.Time {
	return z.AtWallClock(ref, 0, 0)
}

// DayWindow returns the civil day ref+dayOffset as [midnight, next midnight).
// On transition days the window is 23h or 25h long.
func (z Zone) DayWindow(ref time.Time, dayOffset int, label string) Window {
	return Window{
		Start: z.AddDays(ref, dayOffset, 0, 0),
		End:   z.AddDays(ref, dayOffset+1, 0, 0),
		Label: label,
	}
}

// NextDaily returns the next hour:minute after now: today if still ahead, else tomorrow.
func (z Zone) NextDaily(now time.Time, hour, minute int) time.Time {
	next := z.AtWallClock(now, hour, minute)
	if !next.After(now) {
		next = z.AddDays(now, 1, hour, minute)
	}
	return next
}

// NextWeekly returns the next weekday at hour:minute strictly after now.
func (z Zone) NextWeekly(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	days := (int(weekday) - int(z.In(now).Weekday()) + 7) % 7
	next := z.AddDays(now, days, hour, minute)
	if !next.After(now) {
		next = z.AddDays(now, days+7, hour, minute)
	}
	return next
}

// FormatDate renders the civil date as dd.mm.
func (z Zone) FormatDate(t time.Time) string {
	return z.In(t).Format("02.01")
}

// FormatClock renders the civil time as HH:MM.
func (z Zone) FormatClock(t time.Time) string {
	return z.In(t).Format("15:04")
}
