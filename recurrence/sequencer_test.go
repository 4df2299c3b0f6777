package recurrence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurrence"
)

func monthlyRecurrence(anchor recurrence.TimePoint, policy recurrence.WeekendPolicy) recurrence.Recurrence {
	return recurrence.Recurrence{
		ID:         "rec-001",
		Title:      "Rent",
		AnchorDate: anchor,
		Active:     true,
		EndCondition: recurrence.EndCondition{
			Type: recurrence.EndNever,
		},
		Rule: recurrence.RepetitionRule{
			PeriodType:    recurrence.PeriodMonthly,
			Skip:          0,
			WeekendPolicy: policy,
		},
		Template: recurrence.TransactionTemplate{
			Description:     "Monthly rent",
			Amount:          decimal.RequireFromString("1200.00"),
			CurrencyCode:    "EUR",
			Kind:            recurrence.KindExpense,
			SourceAccountID: "acct-checking",
		},
	}
}

func assertDates(t *testing.T, got []recurrence.TimePoint, want ...recurrence.TimePoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// =============================================================================
// CATCH-UP CONTRACT
// =============================================================================

func TestDueOccurrences_CatchUpReturnsAllMissed(t *testing.T) {
	// GIVEN a monthly recurrence anchored on Jan 15 that has never run
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)

	// WHEN the batch is computed ten months later
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.November, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN every missed occurrence is in the batch, anchor included
	if len(due) != 11 {
		t.Fatalf("got %d occurrences, want 11: %v", len(due), due)
	}
	if !due[0].Equal(rec.AnchorDate) {
		t.Errorf("first occurrence = %s, want the anchor %s", due[0], rec.AnchorDate)
	}
	for i := 1; i < len(due); i++ {
		if !due[i].After(due[i-1]) {
			t.Errorf("occurrences not strictly increasing at [%d]: %s then %s", i, due[i-1], due[i])
		}
	}
}

func TestDueOccurrences_WatermarkResumesAfterLastMaterialized(t *testing.T) {
	// GIVEN six occurrences already materialized through Jun 15
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)
	watermark := date(2025, time.June, 15)

	// WHEN the batch is computed as of Nov 15
	due, err := recurrence.DueOccurrences(rec, &watermark, date(2025, time.November, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN only the occurrences strictly after the watermark are due
	assertDates(t, due,
		date(2025, time.July, 15),
		date(2025, time.August, 15),
		date(2025, time.September, 15),
		date(2025, time.October, 15),
		date(2025, time.November, 15),
	)
}

func TestDueOccurrences_NothingDueBeforeAnchor(t *testing.T) {
	rec := monthlyRecurrence(date(2025, time.June, 1), recurrence.WeekendKeep)

	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.May, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("got %v, want no occurrences before the anchor", due)
	}
}

// =============================================================================
// END CONDITIONS
// =============================================================================

func TestDueOccurrences_EndOnDateCutsOff(t *testing.T) {
	// GIVEN a monthly recurrence ending on Apr 30
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)
	rec.EndCondition = recurrence.EndCondition{
		Type: recurrence.EndOnDate,
		Date: date(2025, time.April, 30),
	}

	// WHEN the batch is computed well past the end date
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.December, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN nothing after the end date materializes
	assertDates(t, due,
		date(2025, time.January, 15),
		date(2025, time.February, 15),
		date(2025, time.March, 15),
		date(2025, time.April, 15),
	)
}

func TestDueOccurrences_EndAfterCountStops(t *testing.T) {
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)
	rec.EndCondition = recurrence.EndCondition{
		Type:  recurrence.EndAfterCount,
		Count: 3,
	}

	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.December, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDates(t, due,
		date(2025, time.January, 15),
		date(2025, time.February, 15),
		date(2025, time.March, 15),
	)
}

func TestDueOccurrences_SkippedSlotsCountTowardOccurrenceLimit(t *testing.T) {
	// GIVEN a daily recurrence over a weekend with skip_occurrence, capped at
	// four occurrences. 2025-03-07 is a Friday.
	rec := monthlyRecurrence(date(2025, time.March, 7), recurrence.WeekendSkip)
	rec.Rule.PeriodType = recurrence.PeriodDaily
	rec.EndCondition = recurrence.EndCondition{
		Type:  recurrence.EndAfterCount,
		Count: 4,
	}

	// WHEN the batch is computed past the cap
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.March, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the dropped Saturday and Sunday slots consumed two of the four
	// occurrences, so only Friday and Monday materialize
	assertDates(t, due,
		date(2025, time.March, 7),
		date(2025, time.March, 10),
	)
}

func TestDueOccurrences_ExhaustedRecurrenceYieldsEmptyBatch(t *testing.T) {
	// GIVEN an after_count recurrence whose occurrences all materialized
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)
	rec.EndCondition = recurrence.EndCondition{
		Type:  recurrence.EndAfterCount,
		Count: 2,
	}
	watermark := date(2025, time.February, 15)

	// WHEN any later batch runs
	due, err := recurrence.DueOccurrences(rec, &watermark, date(2026, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the batch is empty, forever
	if len(due) != 0 {
		t.Errorf("exhausted recurrence produced %v", due)
	}
}

// =============================================================================
// WEEKEND POLICY INTERACTION
// =============================================================================

func TestDueOccurrences_MondayMoveDoesNotDriftTheGrid(t *testing.T) {
	// GIVEN a monthly recurrence on the 15th with move_to_monday.
	// 2025-02-15 and 2025-03-15 are Saturdays; 2025-04-15 is a Tuesday.
	rec := monthlyRecurrence(date(2025, time.February, 15), recurrence.WeekendMoveToMonday)

	// WHEN three months are due
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.April, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the relocated Mondays do not pull the schedule off the 15th
	assertDates(t, due,
		date(2025, time.February, 17),
		date(2025, time.March, 17),
		date(2025, time.April, 15),
	)
}

func TestDueOccurrences_AdjustedWatermarkDoesNotCorruptTheGrid(t *testing.T) {
	// GIVEN the previous run left the watermark on a relocated Monday
	rec := monthlyRecurrence(date(2025, time.February, 15), recurrence.WeekendMoveToMonday)
	watermark := date(2025, time.February, 17)

	// WHEN the next batch runs
	due, err := recurrence.DueOccurrences(rec, &watermark, date(2025, time.April, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the grid is still the 15th of every month, not the 17th
	assertDates(t, due,
		date(2025, time.March, 17),
		date(2025, time.April, 15),
	)
}

func TestDueOccurrences_AdjustmentPastHorizonIsDeferred(t *testing.T) {
	// GIVEN a Saturday occurrence whose Monday relocation is past asOf
	rec := monthlyRecurrence(date(2025, time.February, 15), recurrence.WeekendMoveToMonday)

	// WHEN the batch runs on the Sunday in between
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.February, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("occurrence materialized before its relocated date: %v", due)
	}

	// THEN the occurrence shows up once the Monday arrives
	due, err = recurrence.DueOccurrences(rec, nil, date(2025, time.February, 17))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDates(t, due, date(2025, time.February, 17))
}

func TestDueOccurrences_FridayMoveCollapseStaysStrictlyIncreasing(t *testing.T) {
	// GIVEN a daily recurrence with move_to_friday: Saturday and Sunday both
	// collapse onto the Friday already emitted
	rec := monthlyRecurrence(date(2025, time.March, 7), recurrence.WeekendMoveToFriday)
	rec.Rule.PeriodType = recurrence.PeriodDaily

	// WHEN Friday through Monday are due
	due, err := recurrence.DueOccurrences(rec, nil, date(2025, time.March, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the collapsed weekend slots are not re-emitted
	assertDates(t, due,
		date(2025, time.March, 7),
		date(2025, time.March, 10),
	)
}

// =============================================================================
// BOUNDS AND VALIDATION
// =============================================================================

func TestDueOccurrences_LongNeglectIsTruncatedNotUnbounded(t *testing.T) {
	// GIVEN a daily recurrence neglected for three decades
	rec := monthlyRecurrence(date(2000, time.January, 1), recurrence.WeekendKeep)
	rec.Rule.PeriodType = recurrence.PeriodDaily

	due, err := recurrence.DueOccurrences(rec, nil, date(2030, time.January, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN the batch is capped; the watermark advance lets the next run
	// pick up the remainder
	if len(due) != 10000 {
		t.Errorf("got %d occurrences, want the 10000 cap", len(due))
	}
}

func TestDueOccurrences_RejectsInvalidRule(t *testing.T) {
	rec := monthlyRecurrence(date(2025, time.January, 15), recurrence.WeekendKeep)
	rec.Rule.Skip = -2

	if _, err := recurrence.DueOccurrences(rec, nil, date(2025, time.June, 1)); !errors.Is(err, recurrence.ErrInvalidRepetitionRule) {
		t.Errorf("got %v, want ErrInvalidRepetitionRule", err)
	}
}
