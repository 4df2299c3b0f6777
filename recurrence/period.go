/*
period.go - Period arithmetic for recurrence schedules

PURPOSE:
  Computes the next occurrence date from a previous one given a period type
  and a skip multiplier. This is the calendar heart of the engine: all
  scheduling correctness (catch-up, termination, idempotency) rests on this
  function producing a stable, strictly increasing grid of candidate dates.

PERIOD TYPES:
  daily      +1 day per unit
  weekly     +7 days per unit
  monthly    +1 calendar month per unit
  quarterly  +3 calendar months per unit
  half_year  +6 calendar months per unit
  yearly     +12 calendar months per unit

SKIP MULTIPLIER:
  skip=0 means every period, skip=N means every (N+1) periods.
  Example: skip=1 on monthly -> bi-monthly.

MONTH-END CLAMPING:
  Month-based addition preserves the day-of-month when the target month has
  that day, and clamps to the target month's last day otherwise:

    Jan 31 + 1 month -> Feb 28 (Feb 29 in leap years), NEVER Mar 2/3.

  Go's time.AddDate overflows short months (Jan 31 + 1 month = Mar 2/3),
  which silently shifts a "last day of month" schedule into the next month.
  That is a correctness bug for financial schedules, so month addition is
  implemented here without AddDate.

SEE ALSO:
  - weekend.go: Policy applied to the dates this file produces
  - sequencer.go: Drives this calculator to build the occurrence sequence
*/
package recurrence

import "time"

// =============================================================================
// PERIOD TYPE
// =============================================================================

// PeriodType is the calendar unit of repetition.
type PeriodType string

const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodHalfYear  PeriodType = "half_year"
	PeriodYearly    PeriodType = "yearly"
)

// Valid reports whether p is a recognized period type.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodHalfYear, PeriodYearly:
		return true
	}
	return false
}

// monthsPerUnit returns how many calendar months one unit of p spans,
// and false for day-based period types.
func (p PeriodType) monthsPerUnit() (int, bool) {
	switch p {
	case PeriodMonthly:
		return 1, true
	case PeriodQuarterly:
		return 3, true
	case PeriodHalfYear:
		return 6, true
	case PeriodYearly:
		return 12, true
	}
	return 0, false
}

// =============================================================================
// PERIOD CALCULATOR
// =============================================================================

// Next returns the occurrence date following `date` for the given period type
// and skip multiplier. Adds (skip+1) periods. Never returns a date <= date.
func Next(date TimePoint, period PeriodType, skip int) (TimePoint, error) {
	if skip < 0 {
		return TimePoint{}, &InvalidRepetitionRuleError{
			Field:  "skip",
			Reason: "must not be negative",
		}
	}
	units := skip + 1

	var next TimePoint
	switch period {
	case PeriodDaily:
		next = date.AddDays(units)
	case PeriodWeekly:
		next = date.AddDays(7 * units)
	case PeriodMonthly, PeriodQuarterly, PeriodHalfYear, PeriodYearly:
		months, _ := period.monthsPerUnit()
		next = addMonthsClamped(date, months*units)
	default:
		return TimePoint{}, &InvalidRepetitionRuleError{
			Field:  "periodType",
			Reason: "unrecognized period type " + string(period),
		}
	}

	// Guard against zero-length periods: the sequence must strictly advance.
	if !next.After(date) {
		next = date.AddDays(1)
	}
	return next, nil
}

// addMonthsClamped adds calendar months to a date, preserving the day-of-month
// where possible and clamping to the last day of the target month otherwise.
func addMonthsClamped(tp TimePoint, months int) TimePoint {
	// Zero-based month index so integer division carries years correctly.
	total := tp.Year()*12 + int(tp.Month()) - 1 + months
	year := total / 12
	month := time.Month(total%12 + 1)

	day := tp.Day()
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return NewTimePoint(year, month, day)
}
