// Package datetime wraps calendar date arithmetic and the fixed German
// output patterns used by the calendar renderers.
package datetime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	LayoutISODate   = "2006-01-02"
	LayoutClock     = "15:04"
	LayoutGerman    = "02.01.2006"
	LayoutGermanDay = "02.01."
)

// ErrInvalidDate is returned (wrapped) for malformed date or time strings.
var ErrInvalidDate = errors.New("invalid date")

var weekdayNames = [7]string{
	"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag",
}

var weekdayShort = [7]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}

var monthNames = [12]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// DateTime is a single calendar date and time in a fixed location.
type DateTime struct {
	t time.Time
}

// Location used for parsing and "now". Set once at startup from config.
var Location = time.Local

func New(t time.Time) DateTime {
	return DateTime{t: t}
}

// Date builds a midnight DateTime in Location.
func Date(year int, month time.Month, day int) DateTime {
	return DateTime{t: time.Date(year, month, day, 0, 0, 0, 0, Location)}
}

// Parse parses a YYYY-MM-DD date at midnight.
func Parse(date string) (DateTime, error) {
	return ParseWithTime(date, "")
}

// ParseWithTime parses a YYYY-MM-DD date and an optional HH:MM clock time.
func ParseWithTime(date, clock string) (DateTime, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	d, err := time.ParseInLocation(LayoutISODate, date, Location)
	if err != nil {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if clock == "" {
		return DateTime{t: d}, nil
	}
	c, err := ParseClock(clock)
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{t: d.Add(c)}, nil
}

// ParseClock parses HH:MM (seconds tolerated) into an offset from midnight.
func ParseClock(clock string) (time.Duration, error) {
	clock = strings.TrimSpace(clock)
	layout := LayoutClock
	if strings.Count(clock, ":") == 2 {
		layout = "15:04:05"
	}
	c, err := time.Parse(layout, clock)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidDate, clock)
	}
	return time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute + time.Duration(c.Second())*time.Second, nil
}

func (d DateTime) Time() time.Time { return d.t }
func (d DateTime) IsZero() bool    { return d.t.IsZero() }

// Midnight drops the clock part.
func (d DateTime) Midnight() DateTime {
	y, m, day := d.t.Date()
	return DateTime{t: time.Date(y, m, day, 0, 0, 0, 0, d.t.Location())}
}

func (d DateTime) ISODate() string         { return d.t.Format(LayoutISODate) }
func (d DateTime) GermanDate() string      { return d.t.Format(LayoutGerman) }
func (d DateTime) GermanShortDate() string { return d.t.Format(LayoutGermanDay) }
func (d DateTime) Clock() string           { return d.t.Format(LayoutClock) }
func (d DateTime) WeekdayName() string     { return weekdayNames[d.t.Weekday()] }
func (d DateTime) WeekdayShort() string    { return weekdayShort[d.t.Weekday()] }
func (d DateTime) MonthName() string       { return monthNames[d.t.Month()-1] }

// MonthYear renders e.g. "Januar 2020".
func (d DateTime) MonthYear() string {
	return fmt.Sprintf("%s %d", d.MonthName(), d.t.Year())
}

// AddDays uses calendar arithmetic, so DST shifts do not move the clock.
func (d DateTime) AddDays(n int) DateTime {
	return DateTime{t: d.t.AddDate(0, 0, n)}
}

func (d DateTime) SubDays(n int) DateTime {
	return d.AddDays(-n)
}

func (d DateTime) SubMinutes(n int) DateTime {
	return DateTime{t: d.t.Add(-time.Duration(n) * time.Minute)}
}

func (d DateTime) SameDay(o DateTime) bool {
	y1, m1, d1 := d.t.Date()
	y2, m2, d2 := o.t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (d DateTime) SameMonth(o DateTime) bool {
	return d.t.Year() == o.t.Year() && d.t.Month() == o.t.Month()
}

// IsBefore compares full timestamps.
func (d DateTime) IsBefore(o DateTime) bool { return d.t.Before(o.t) }

// IsAfter compares full timestamps.
func (d DateTime) IsAfter(o DateTime) bool { return d.t.After(o.t) }

// DateBefore compares dates only.
func (d DateTime) DateBefore(o DateTime) bool { return d.dayKey() < o.dayKey() }

// DateAfter compares dates only.
func (d DateTime) DateAfter(o DateTime) bool { return d.dayKey() > o.dayKey() }

// InRange reports whether d's date lies within [from, to], inclusive.
func (d DateTime) InRange(from, to DateTime) bool {
	k := d.dayKey()
	return k >= from.dayKey() && k <= to.dayKey()
}

// DaysUntil counts calendar days from d to o (negative if o is earlier).
func (d DateTime) DaysUntil(o DateTime) int {
	a := time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(o.t.Year(), o.t.Month(), o.t.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (d DateTime) IsMonday() bool { return d.t.Weekday() == time.Monday }
func (d DateTime) IsSunday() bool { return d.t.Weekday() == time.Sunday }

func (d DateTime) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// LastMonday returns the Monday on or before d, at midnight.
func LastMonday(d DateTime) DateTime {
	back := (int(d.t.Weekday()) + 6) % 7
	return d.Midnight().SubDays(back)
}

// NextMonday returns the first Monday strictly after now, at midnight.
func NextMonday(now DateTime) DateTime {
	return LastMonday(now).AddDays(7)
}

func (d DateTime) FirstOfMonth() DateTime {
	return DateTime{t: time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, d.t.Location())}
}

func (d DateTime) LastOfMonth() DateTime {
	return d.FirstOfMonth().NextMonth().SubDays(1)
}

// NextMonth returns the first day of the following month.
func (d DateTime) NextMonth() DateTime {
	first := d.FirstOfMonth()
	return DateTime{t: first.t.AddDate(0, 1, 0)}
}

func (d DateTime) String() string {
	return d.t.Format("2006-01-02 15:04")
}

func (d DateTime) dayKey() int {
	y, m, day := d.t.Date()
	return y*10000 + int(m)*100 + day
}

// Clock abstracts time.Now() for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the wall clock in Location.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().In(Location)
}

// Today returns midnight of the clock's current date.
func Today(c Clock) DateTime {
	return New(c.Now()).Midnight()
}
