package summary

import (
	"fmt"
	"time"
)

const (
	ModeMonth  FilterMode = "month"
	ModeYear   FilterMode = "year"
	ModeCustom FilterMode = "custom"
)

// FilterMode selects how the reporting window is derived.
type FilterMode string

// FilterSelection is the user's filter choice. Only the fields belonging to
// Mode are meaningful: Year+Month for month, Year for year, Start/End for custom.
type FilterSelection struct {
	Mode  FilterMode `json:"mode"`
	Year  int        `json:"year,omitempty"`
	Month int        `json:"month"` // 0-11, January is 0
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Interval is a reporting window. A nil bound is unbounded on that side.
// Start after End is allowed and simply matches nothing.
type Interval struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Month selects one month of year. month is 0-indexed: January is 0.
func Month(year, month int) FilterSelection {
	return FilterSelection{Mode: ModeMonth, Year: year, Month: month}
}

// Year selects a whole calendar year.
func Year(year int) FilterSelection {
	return FilterSelection{Mode: ModeYear, Year: year}
}

// Custom selects [start, end]. A nil bound leaves that side open.
func Custom(start, end *time.Time) FilterSelection {
	return FilterSelection{Mode: ModeCustom, Start: start, End: end}
}

// Key identifies the selection, for cache keys and logs.
func (f FilterSelection) Key() string {
	switch f.Mode {
	case ModeMonth:
		return fmt.Sprintf("month:%04d-%02d", f.Year, f.Month)
	case ModeYear:
		return fmt.Sprintf("year:%04d", f.Year)
	case ModeCustom:
		return "custom:" + boundKey(f.Start) + ".." + boundKey(f.End)
	default:
		return string(f.Mode)
	}
}

func boundKey(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format(time.RFC3339)
}

// Resolve turns a filter selection into a concrete interval in loc.
// Month and year windows end at 23:59:59 of their last day; custom bounds pass through.
func Resolve(sel FilterSelection, loc *time.Location) Interval {
	if loc == nil {
		loc = time.UTC
	}
	switch sel.Mode {
	case ModeYear:
		start := time.Date(sel.Year, time.January, 1, 0, 0, 0, 0, loc)
		end := time.Date(sel.Year, time.December, 31, 23, 59, 59, 0, loc)
		return Interval{Start: &start, End: &end}
	case ModeCustom:
		return Interval{Start: sel.Start, End: sel.End}
	default:
		m := time.Month(sel.Month + 1)
		start := time.Date(sel.Year, m, 1, 0, 0, 0, 0, loc)
		// day 0 of the next month is the last day of this one
		last := time.Date(sel.Year, m+1, 0, 0, 0, 0, 0, loc)
		end := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, 0, loc)
		return Interval{Start: &start, End: &end}
	}
}

// Contains reports whether t lies inside the interval, both ends inclusive.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil && t.After(*iv.End) {
		return false
	}
	return true
}

// Bounded reports whether both ends are present.
func (iv Interval) Bounded() bool {
	return iv.Start != nil && iv.End != nil
}
