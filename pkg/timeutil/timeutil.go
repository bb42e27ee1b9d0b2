// Package timeutil provides calendar helpers for practice tracking.
// Days and weeks are computed in the school's timezone, which defaults to UTC
// and is set once at startup from configuration.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

var zone atomic.Pointer[time.Location]

func init() {
	zone.Store(time.UTC)
}

// SetZone sets the timezone used for day and week boundaries.
func SetZone(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	zone.Store(loc)
}

// LoadZone resolves an IANA zone name and installs it.
func LoadZone(name string) error {
	if name == "" {
		SetZone(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("timeutil: load zone %q: %w", name, err)
	}
	SetZone(loc)
	return nil
}

// Zone returns the active timezone.
func Zone() *time.Location {
	return zone.Load()
}

// Now returns the current time in the active timezone.
func Now() time.Time {
	return time.Now().In(Zone())
}

// Local converts a time to the active timezone.
func Local(t time.Time) time.Time {
	return t.In(Zone())
}

// Date creates midnight of the given date in the active timezone.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, Zone())
}

// StartOfDay returns 00:00:00 of the day containing t.
func StartOfDay(t time.Time) time.Time {
	l := Local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfWeek returns Monday 00:00:00 of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	l := Local(t)
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(l.AddDate(0, 0, -(weekday - 1)))
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := Local(t1), Local(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// IsSameWeek checks if two times fall in the same Monday-based week.
func IsSameWeek(t1, t2 time.Time) bool {
	return StartOfWeek(t1).Equal(StartOfWeek(t2))
}

// DaysBetween calculates the number of whole days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d := StartOfDay(t2).Sub(StartOfDay(t1))
	days := int((d + 12*time.Hour) / (24 * time.Hour)) // DST-safe rounding
	if days < 0 {
		days = -days
	}
	return days
}

// FormatDate is the ISO date layout (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// FormatDateStr formats a time as an ISO date in the active timezone.
func FormatDateStr(t time.Time) string {
	return Local(t).Format(FormatDate)
}

// ParseDate parses an ISO date as midnight in the active timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, Zone())
}
