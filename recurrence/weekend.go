/*
weekend.go - Weekend adjustment policy

PURPOSE:
  Relocates (or discards) an occurrence that lands on a Saturday or Sunday.
  The policy applies to the candidate date the period calculator produced;
  it never shifts the underlying period grid, so a monthly schedule on the
  15th stays on the 15th even after one occurrence moved to a Monday.

POLICIES:
  keep             Materialize on the weekend day as-is.
  move_to_monday   Saturday -> +2 days, Sunday -> +1 day.
  move_to_friday   Saturday -> -1 day, Sunday -> -2 days.
  skip_occurrence  Drop the occurrence entirely. The calendar slot still
                   counts toward an occurrence-count end condition.

Weekday dates pass through unchanged under every policy.
*/
package recurrence

import "time"

// WeekendPolicy is the rule for occurrences landing on a non-business day.
type WeekendPolicy string

const (
	WeekendKeep         WeekendPolicy = "keep"
	WeekendMoveToMonday WeekendPolicy = "move_to_monday"
	WeekendMoveToFriday WeekendPolicy = "move_to_friday"
	WeekendSkip         WeekendPolicy = "skip_occurrence"
)

// Valid reports whether p is a recognized weekend policy.
func (p WeekendPolicy) Valid() bool {
	switch p {
	case WeekendKeep, WeekendMoveToMonday, WeekendMoveToFriday, WeekendSkip:
		return true
	}
	return false
}

// Adjust applies the weekend policy to a candidate occurrence date.
// It returns the (possibly relocated) date, and drop=true when the occurrence
// must not be materialized at all.
func Adjust(date TimePoint, policy WeekendPolicy) (adjusted TimePoint, drop bool) {
	if !date.IsWeekend() {
		return date, false
	}

	switch policy {
	case WeekendMoveToMonday:
		if date.Weekday() == time.Saturday {
			return date.AddDays(2), false
		}
		return date.AddDays(1), false

	case WeekendMoveToFriday:
		if date.Weekday() == time.Saturday {
			return date.AddDays(-1), false
		}
		return date.AddDays(-2), false

	case WeekendSkip:
		return TimePoint{}, true

	default:
		// keep, and any unvalidated policy, leaves the date untouched
		return date, false
	}
}
