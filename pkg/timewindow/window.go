// Package timewindow converts calendar days in a fixed local zone into
// absolute UTC intervals and computes the backward-stepping windows used by
// historical backfill.
package timewindow

import (
	"strings"
	"time"
)

// DayFormat is the wire format for calendar days (ISO 8601 date).
const DayFormat = "2006-01-02"

// ParseDay parses an ISO date string into a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return Day{}, err
	}

	return Day{Year: t.Year(), Month: t.Month(), DayOfMonth: t.Day()}, nil
}

// DayOf returns the calendar day of t in the given zone.
func DayOf(t time.Time, loc *time.Location) Day {
	local := t.In(loc)

	return Day{Year: local.Year(), Month: local.Month(), DayOfMonth: local.Day()}
}

// Day is a calendar date with no time-of-day or zone attached.
type Day struct {
	Year       int
	Month      time.Month
	DayOfMonth int
}

// String formats the day as an ISO date.
func (d Day) String() string {
	return d.midnight(time.UTC).Format(DayFormat)
}

// AddDays returns the day shifted by n calendar days (n may be negative).
func (d Day) AddDays(n int) Day {
	t := d.midnight(time.UTC).AddDate(0, 0, n)

	return Day{Year: t.Year(), Month: t.Month(), DayOfMonth: t.Day()}
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.midnight(time.UTC).Before(other.midnight(time.UTC))
}

// Equal reports whether two days are the same calendar date.
func (d Day) Equal(other Day) bool {
	return d == other
}

// UTCMidnight returns the UTC instant of midnight on this calendar date,
// ignoring any local zone. Used as the canonical DATE value when persisting.
func (d Day) UTCMidnight() time.Time {
	return d.midnight(time.UTC)
}

func (d Day) midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.DayOfMonth, 0, 0, 0, 0, loc)
}

// MarshalJSON renders the day as a quoted ISO date.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses a quoted ISO date.
func (d *Day) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)

	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}

// LocalDayWindow returns the UTC instants bounding the local day: midnight
// (inclusive) and the last representable instant of the day (inclusive).
// The zone's offset is resolved from its rules at call time, never hardcoded.
func LocalDayWindow(d Day, loc *time.Location) (startUTC, endUTC time.Time) {
	start := d.midnight(loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	return start.UTC(), end.UTC()
}

// BackwardWindow returns the inclusive window of the given number of
// calendar days ending at anchor.
func BackwardWindow(anchor Day, days int) (start, end Day) {
	return anchor.AddDays(-(days - 1)), anchor
}

// BackwardWeek returns the inclusive 7-calendar-day window ending at anchor.
func BackwardWeek(anchor Day) (start, end Day) {
	return BackwardWindow(anchor, 7)
}

// DaysInWindow enumerates the calendar days from start to end inclusive, in
// ascending order.
func DaysInWindow(start, end Day) []Day {
	var days []Day
	for d := start; !end.Before(d); d = d.AddDays(1) {
		days = append(days, d)
	}

	return days
}
