/*
sequencer.go - Due-occurrence computation (catch-up batch)

PURPOSE:
  Combines the period calculator and the weekend policy into an ordered
  sequence of occurrence dates, and answers the question the batch driver
  asks: "which occurrences of this recurrence are due as of now?"

THE CATCH-UP CONTRACT:
  If the driving job has not run for many periods, ALL missed occurrences
  are returned, not just the nearest one. Combined with the watermark this
  makes the engine safe to invoke at any cadence: daily, hourly, or after a
  two-week outage, the set of materialized transactions converges to the
  same result.

GRID ANCHORING:
  The candidate grid is always regenerated from the anchor date by repeated
  Next() calls, then filtered against the watermark. Seeding the grid from
  the watermark itself would drift whenever a weekend policy relocated an
  occurrence (a monthly 15th moved to Monday the 17th must not turn the
  schedule into "the 17th of every month"). Regenerating from the anchor
  also makes occurrence-count termination a pure computation: the sequencer
  counts calendar slots from the very first occurrence, with no need to ask
  the ledger how many transactions exist.

GUARANTEES (for the returned slice):
  - strictly increasing, all dates <= asOf
  - every date is strictly after the watermark
  - skip_occurrence slots removed, but still counted toward after_count
  - nothing after an on_date end condition
*/
package recurrence

// maxSequenceLength bounds one catch-up computation. A daily recurrence
// neglected for 27 years still fits; anything longer is truncated and the
// remainder picked up by the following run, since the watermark advances.
const maxSequenceLength = 10000

// DueOccurrences returns the ordered catch-up batch for one recurrence:
// every occurrence date strictly after the watermark and due by asOf.
// A nil watermark means no occurrence has been materialized yet, so the
// anchor date itself is eligible.
func DueOccurrences(rec Recurrence, watermark *TimePoint, asOf TimePoint) ([]TimePoint, error) {
	if err := rec.Rule.Validate(); err != nil {
		return nil, err
	}

	var (
		due     []TimePoint
		emitted = watermark // high-water mark of what exists or was emitted
		counted = 0         // calendar slots consumed, including skipped ones
		cursor  = rec.AnchorDate
	)

	for i := 0; i < maxSequenceLength; i++ {
		candidate := cursor

		if rec.EndCondition.Type == EndAfterCount && counted >= rec.EndCondition.Count {
			break
		}
		if rec.EndCondition.Type == EndOnDate && candidate.After(rec.EndCondition.Date) {
			break
		}
		if candidate.After(asOf) {
			break
		}

		adjusted, drop := Adjust(candidate, rec.Rule.WeekendPolicy)
		if drop {
			// The calendar slot happened even though nothing materializes.
			counted++
			next, err := Next(candidate, rec.Rule.PeriodType, rec.Rule.Skip)
			if err != nil {
				return nil, err
			}
			cursor = next
			continue
		}

		// A move_to_monday adjustment can land past the horizon; the slot is
		// deferred untouched to the next run, so don't count it yet.
		if adjusted.After(asOf) {
			break
		}
		// An adjustment past the end date terminates the recurrence.
		if rec.EndCondition.Type == EndOnDate && adjusted.After(rec.EndCondition.Date) {
			break
		}

		counted++

		// Pre-watermark slots were materialized by earlier runs; a
		// move_to_friday adjustment can also collapse onto the previously
		// emitted date. Either way the date is already accounted for.
		if emitted == nil || adjusted.After(*emitted) {
			due = append(due, adjusted)
			e := adjusted
			emitted = &e
		}

		next, err := Next(candidate, rec.Rule.PeriodType, rec.Rule.Skip)
		if err != nil {
			return nil, err
		}
		cursor = next
	}

	return due, nil
}
