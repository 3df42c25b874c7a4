package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire and storage form of a calendar day.
const Layout = "2006-01-02"

const hoursPerDay = 24

// ErrInvalidDay indicates that a value is not a YYYY-MM-DD calendar day.
var ErrInvalidDay = errors.New("calendar: invalid day")

// Day is a date without a time component. Days compare by calendar equality.
type Day struct {
	year  int
	month time.Month
	day   int
}

// ParseDay validates raw input in YYYY-MM-DD form.
func ParseDay(rawInput string) (Day, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) != len(Layout) {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, rawInput)
	}
	parsed, err := time.Parse(Layout, trimmed)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, rawInput)
	}
	return DayOf(parsed, time.UTC), nil
}

// NewDay normalizes the supplied components, so 2024-02-30 becomes 2024-03-01.
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DayOf returns the calendar day of the instant as observed in loc.
func DayOf(instant time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := instant.In(loc).Date()
	return Day{year: year, month: month, day: day}
}

// Today returns the current calendar day in loc according to clock.
func Today(clock func() time.Time, loc *time.Location) Day {
	if clock == nil {
		clock = time.Now
	}
	return DayOf(clock(), loc)
}

// IsZero reports whether the day is the zero value.
func (d Day) IsZero() bool {
	return d == Day{}
}

// Year returns the calendar year.
func (d Day) Year() int {
	return d.year
}

// Month returns the calendar month.
func (d Day) Month() time.Month {
	return d.month
}

// Day returns the day of the month.
func (d Day) Day() int {
	return d.day
}

// AddDays returns the day n days after d; n may be negative.
func (d Day) AddDays(n int) Day {
	return NewDay(d.year, d.month, d.day+n)
}

// DaysSince returns the number of whole calendar days from earlier to d.
func (d Day) DaysSince(earlier Day) int {
	return int(d.midnight().Sub(earlier.midnight()).Hours()) / hoursPerDay
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.midnight().Before(other.midnight())
}

// After reports whether d is strictly later than other.
func (d Day) After(other Day) bool {
	return d.midnight().After(other.midnight())
}

// String renders the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.midnight().Format(Layout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(text []byte) error {
	parsed, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Day) midnight() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the first and last day of the given month.
func MonthRange(year int, month time.Month) (Day, Day) {
	first := NewDay(year, month, 1)
	last := NewDay(year, month+1, 0)
	return first, last
}
