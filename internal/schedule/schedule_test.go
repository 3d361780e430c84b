package schedule

import (
	"reflect"
	"testing"
	"time"
)

func mustLoadLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func clockSlots(t *testing.T, slots []Slot) []string {
	t.Helper()
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time)
	}
	return out
}

func TestGenerateSlotsFullDay(t *testing.T) {
	windows := []Window{{Start: 9 * 60, End: 17 * 60}}
	starts, err := GenerateSlots(windows, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(starts) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(starts))
	}
	if MinutesToClock(starts[0]) != "09:00" || MinutesToClock(starts[len(starts)-1]) != "16:30" {
		t.Fatalf("unexpected boundary slots: %v", starts)
	}
}

func TestGenerateSlotsDropsTrailingRemainder(t *testing.T) {
	// 09:00-09:50 with 30 minute slots: 09:30+30 would run past the end.
	windows := []Window{{Start: 9 * 60, End: 9*60 + 50}}
	starts, err := GenerateSlots(windows, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(starts) != 1 || MinutesToClock(starts[0]) != "09:00" {
		t.Fatalf("expected only 09:00, got %v", starts)
	}
}

func TestGenerateSlotsNoWindows(t *testing.T) {
	starts, err := GenerateSlots(nil, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(starts) != 0 {
		t.Fatalf("expected 0 slots, got %d", len(starts))
	}
}

func TestGenerateSlotsInvalidDuration(t *testing.T) {
	if _, err := GenerateSlots([]Window{{Start: 540, End: 600}}, 0); err != ErrInvalidDuration {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestGenerateSlotsPreservesDuplicateWindows(t *testing.T) {
	// A recurring window and a same-date window overlap; duplicates stay.
	windows := []Window{
		{Start: 9 * 60, End: 10 * 60},
		{Start: 9 * 60, End: 10 * 60},
	}
	starts, err := GenerateSlots(windows, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	want := []int{540, 540, 570, 570}
	if !reflect.DeepEqual(starts, want) {
		t.Fatalf("expected %v, got %v", want, starts)
	}
}

func TestGenerateSlotsSortedAcrossWindows(t *testing.T) {
	windows := []Window{
		{Start: 14 * 60, End: 15 * 60},
		{Start: 9 * 60, End: 10 * 60},
	}
	starts, err := GenerateSlots(windows, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	for i := 1; i < len(starts); i++ {
		if starts[i-1] > starts[i] {
			t.Fatalf("slots out of order: %v", starts)
		}
	}
	if MinutesToClock(starts[0]) != "09:00" {
		t.Fatalf("unexpected first slot: %v", starts)
	}
}

func TestGenerateSlotsIdempotent(t *testing.T) {
	windows := []Window{{Start: 9 * 60, End: 12 * 60}, {Start: 14 * 60, End: 17 * 60}}
	first, err := GenerateSlots(windows, 15)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	second, err := GenerateSlots(windows, 15)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output, got %v then %v", first, second)
	}
}

func TestAnnotateSlotsConflict(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 9, 7, 8, 0, 0, 0, loc)
	starts, err := GenerateSlots([]Window{{Start: 9 * 60, End: 17 * 60}}, 30)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}

	// One confirmed appointment at 10:00 for 30 minutes.
	reserved := []Interval{{Start: 10 * 60, End: 10*60 + 30}}
	slots, err := AnnotateSlots("2026-09-07", starts, 30, reserved, loc, now)
	if err != nil {
		t.Fatalf("AnnotateSlots error: %v", err)
	}

	byTime := make(map[string]bool, len(slots))
	for _, s := range slots {
		byTime[s.Time] = s.Available
	}
	if byTime["10:00"] {
		t.Fatalf("expected 10:00 to be unavailable")
	}
	if !byTime["09:30"] || !byTime["10:30"] {
		t.Fatalf("expected adjacent slots to be available: %v", slots)
	}
}

func TestAnnotateSlotsPastRule(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 9, 7, 10, 15, 0, 0, loc)
	starts := []int{10 * 60, 10*60 + 15, 10*60 + 30}
	slots, err := AnnotateSlots("2026-09-07", starts, 15, nil, loc, now)
	if err != nil {
		t.Fatalf("AnnotateSlots error: %v", err)
	}
	// 10:00 already started, 10:15 begins exactly now, 10:30 is future.
	if slots[0].Available {
		t.Fatalf("expected 10:00 to be unavailable")
	}
	if !slots[1].Available || !slots[2].Available {
		t.Fatalf("unexpected annotation: %v", slots)
	}
}

func TestAnnotateSlotsKeepsFullGrid(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 9, 7, 8, 0, 0, 0, loc)
	starts := []int{540, 570, 600}
	reserved := []Interval{{Start: 540, End: 600}}
	slots, err := AnnotateSlots("2026-09-07", starts, 30, reserved, loc, now)
	if err != nil {
		t.Fatalf("AnnotateSlots error: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected full grid of 3 slots, got %d", len(slots))
	}
	if got := clockSlots(t, slots); !reflect.DeepEqual(got, []string{"09:00", "09:30", "10:00"}) {
		t.Fatalf("unexpected grid: %v", got)
	}
	if slots[0].Available || slots[1].Available || !slots[2].Available {
		t.Fatalf("unexpected annotation: %v", slots)
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint before", Interval{540, 570}, Interval{570, 600}, false},
		{"disjoint after", Interval{600, 630}, Interval{540, 600}, false},
		{"identical", Interval{540, 570}, Interval{540, 570}, true},
		{"partial", Interval{540, 570}, Interval{555, 585}, true},
		{"contained", Interval{540, 600}, Interval{555, 570}, true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: Overlaps(%v, %v) = %v, want %v", tc.name, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWindowsForDate(t *testing.T) {
	loc := mustLoadLoc(t)
	sources := []WindowSource{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},                             // recurring Monday
		{DayOfWeek: 2, StartTime: "09:00", EndTime: "17:00"},                             // recurring Tuesday
		{SpecificDate: "2026-09-07", DayOfWeek: 1, StartTime: "18:00", EndTime: "20:00"}, // pinned to same Monday
		{DayOfWeek: 1, StartTime: "08:00", EndTime: "09:00", IsBlocked: true},            // blocked
	}

	// 2026-09-07 is a Monday.
	windows, err := WindowsForDate(sources, "2026-09-07", loc)
	if err != nil {
		t.Fatalf("WindowsForDate error: %v", err)
	}
	want := []Window{
		{Start: 9 * 60, End: 17 * 60},
		{Start: 18 * 60, End: 20 * 60},
	}
	if !reflect.DeepEqual(windows, want) {
		t.Fatalf("expected %v, got %v", want, windows)
	}
}

func TestWindowsForDateNone(t *testing.T) {
	loc := mustLoadLoc(t)
	sources := []WindowSource{{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"}}

	// 2026-09-06 is a Sunday.
	windows, err := WindowsForDate(sources, "2026-09-06", loc)
	if err != nil {
		t.Fatalf("WindowsForDate error: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("expected no windows, got %v", windows)
	}
}

func TestParseClockRoundTrip(t *testing.T) {
	min, err := ParseClockToMinutes("16:30")
	if err != nil {
		t.Fatalf("ParseClockToMinutes error: %v", err)
	}
	if min != 990 {
		t.Fatalf("expected 990, got %d", min)
	}
	if MinutesToClock(min) != "16:30" {
		t.Fatalf("round trip failed: %s", MinutesToClock(min))
	}
}

func TestIsDatePast(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 9, 7, 10, 0, 0, 0, loc)
	past, err := IsDatePast("2026-09-06", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected date to be past")
	}

	past, err = IsDatePast("2026-09-07", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if past {
		t.Fatalf("expected today to be not past")
	}
}
