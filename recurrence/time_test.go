package recurrence_test

import (
	"testing"
	"time"

	"github.com/warp/recurrence-engine/recurrence"
)

func TestTimePoint_NormalizesToWholeDays(t *testing.T) {
	// Two instants on the same calendar day compare equal.
	morning := recurrence.FromTime(time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC))
	evening := recurrence.FromTime(time.Date(2025, time.March, 10, 23, 59, 59, 0, time.UTC))

	if !morning.Equal(evening) {
		t.Errorf("instants on the same day compare unequal: %s vs %s", morning, evening)
	}
}

func TestParseDate(t *testing.T) {
	got, err := recurrence.ParseDate("2025-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2025, time.March, 10)) {
		t.Errorf("ParseDate = %s, want 2025-03-10", got)
	}

	for _, bad := range []string{"", "10/03/2025", "2025-13-01", "not a date"} {
		if _, err := recurrence.ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) accepted malformed input", bad)
		}
	}
}

func TestDaysIn(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2025, time.January, 31},
		{2025, time.February, 28},
		{2024, time.February, 29},
		{2100, time.February, 28}, // century non-leap
		{2000, time.February, 29}, // 400-year leap
		{2025, time.April, 30},
		{2025, time.December, 31},
	}
	for _, tt := range tests {
		if got := recurrence.DaysIn(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysIn(%d, %s) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestTimePoint_Ordering(t *testing.T) {
	a := date(2025, time.March, 10)
	b := date(2025, time.March, 11)

	if !a.Before(b) || !b.After(a) {
		t.Error("basic ordering broken")
	}
	if !a.BeforeOrEqual(a) || !a.AfterOrEqual(a) {
		t.Error("reflexive ordering broken")
	}
	if a.IsZero() {
		t.Error("real date reported as zero")
	}
	if !(recurrence.TimePoint{}).IsZero() {
		t.Error("zero value not reported as zero")
	}
}
