// Package schedule contains the slot computation engine: generating
// candidate booking slots from availability windows and annotating them
// against already-reserved intervals. All arithmetic is done on
// minute-of-day integers; "HH:MM" strings appear only at the boundary.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrInvalidDate     = errors.New("invalid date format")
	ErrInvalidTime     = errors.New("invalid time format")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Window is an open interval of a doctor's day, in minutes from midnight.
type Window struct {
	Start int
	End   int
}

// Interval is a half-open reserved range [Start, End) in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

// Slot is one candidate booking time, annotated with availability.
// Slots are computed per request and never persisted.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	if _, err := ParseDate(dateStr, loc); err != nil {
		return time.Time{}, err
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}

	return parsed, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	startToday := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

// Overlaps reports whether two half-open intervals intersect.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// OverlapsAny reports whether the interval intersects any reserved interval.
func OverlapsAny(current Interval, reserved []Interval) bool {
	for _, r := range reserved {
		if Overlaps(current, r) {
			return true
		}
	}
	return false
}

// GenerateSlots partitions each window into duration-sized slot starts,
// beginning exactly at the window start. A start is emitted only when the
// full duration fits before the window end; trailing remainders are
// dropped. Overlapping windows are not merged: they yield duplicate
// starts, which the caller annotates independently.
func GenerateSlots(windows []Window, duration int) ([]int, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	starts := make([]int, 0)
	for _, w := range windows {
		for cursor := w.Start; cursor+duration <= w.End; cursor += duration {
			starts = append(starts, cursor)
		}
	}

	sort.Ints(starts)
	return starts, nil
}

// AnnotateSlots marks each candidate start available or not. A slot is
// unavailable when it begins strictly before now, or when its interval
// overlaps a reserved interval. No slot is dropped: the caller always
// receives the complete grid for the day.
func AnnotateSlots(dateStr string, starts []int, duration int, reserved []Interval, loc *time.Location, now time.Time) ([]Slot, error) {
	day, err := ParseDate(dateStr, loc)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		begin := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
		available := !begin.Before(now.In(loc))
		if available && OverlapsAny(Interval{Start: start, End: start + duration}, reserved) {
			available = false
		}
		slots = append(slots, Slot{Time: MinutesToClock(start), Available: available})
	}

	return slots, nil
}

// ContainsStart reports whether the candidate starts include the given
// minute-of-day, i.e. whether a requested time lies on the slot grid.
func ContainsStart(starts []int, start int) bool {
	for _, s := range starts {
		if s == start {
			return true
		}
	}
	return false
}

// WindowsForDate filters availability windows down to those applying to
// the given calendar date: non-blocked entries recurring on its weekday,
// plus non-blocked entries pinned to the exact date. Both kinds may apply
// at once; duplicates are preserved.
type WindowSource struct {
	DayOfWeek    int
	SpecificDate string
	StartTime    string
	EndTime      string
	IsBlocked    bool
}

func WindowsForDate(sources []WindowSource, dateStr string, loc *time.Location) ([]Window, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return nil, err
	}
	dayOfWeek := int(date.Weekday())

	windows := make([]Window, 0, len(sources))
	for _, src := range sources {
		if src.IsBlocked {
			continue
		}
		recurring := src.SpecificDate == "" && src.DayOfWeek == dayOfWeek
		pinned := src.SpecificDate == dateStr
		if !recurring && !pinned {
			continue
		}
		start, err := ParseClockToMinutes(src.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := ParseClockToMinutes(src.EndTime)
		if err != nil {
			return nil, err
		}
		windows = append(windows, Window{Start: start, End: end})
	}

	return windows, nil
}
