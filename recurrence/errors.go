/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Failures in this engine are expected, recoverable, per-recurrence outcomes,
  so every component signals them with explicit error values rather than
  panics; the batch driver catches them at the per-recurrence boundary.

ERROR CATEGORIES:
  1. Rule errors      - Invalid repetition rules (rejected at creation time)
  2. Watermark errors - Optimistic-lock conflicts on advance
  3. Ledger errors    - Duplicate transactions, dangling template references

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, recurrence.ErrStaleWatermark) {
        // another run already advanced past this occurrence; retry next run
    }
*/
package recurrence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRepetitionRule is returned when a repetition rule has a
	// negative skip or an unrecognized period type or weekend policy.
	// Rules are validated at creation time; the scheduler never sees this.
	ErrInvalidRepetitionRule = errors.New("invalid repetition rule")

	// ErrInvalidRecurrence is returned when a recurrence definition is
	// malformed (zero anchor date, contradictory end condition).
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrStaleWatermark is returned when a watermark advance is not strictly
	// greater than the stored value. This is the optimistic lock that guards
	// against concurrent double-processing of the same recurrence.
	ErrStaleWatermark = errors.New("stale watermark")

	// ErrDuplicateTransaction is returned by the ledger when a transaction
	// for the same (recurrence, occurrence date) already exists. Callers
	// treat it as an idempotent no-op, not a failure.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTemplateReference is returned when a transaction template points
	// at an account or category that no longer exists.
	ErrTemplateReference = errors.New("dangling template reference")

	// ErrRecurrenceNotFound is returned when a referenced recurrence
	// doesn't exist.
	ErrRecurrenceNotFound = errors.New("recurrence not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRepetitionRuleError describes why a repetition rule was rejected.
type InvalidRepetitionRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRepetitionRuleError) Error() string {
	return fmt.Sprintf("invalid repetition rule: %s %s", e.Field, e.Reason)
}

func (e *InvalidRepetitionRuleError) Unwrap() error {
	return ErrInvalidRepetitionRule
}

// StaleWatermarkError provides details about a rejected watermark advance.
type StaleWatermarkError struct {
	RecurrenceID RecurrenceID
	Stored       TimePoint
	Attempted    TimePoint
}

func (e *StaleWatermarkError) Error() string {
	return fmt.Sprintf("stale watermark for %s: stored %s, attempted %s",
		e.RecurrenceID, e.Stored, e.Attempted)
}

func (e *StaleWatermarkError) Unwrap() error {
	return ErrStaleWatermark
}

// TemplateReferenceError identifies the dangling reference in a template.
type TemplateReferenceError struct {
	RecurrenceID RecurrenceID
	Kind         string // "account", "category", "budget", "bill"
	Reference    string
}

func (e *TemplateReferenceError) Error() string {
	return fmt.Sprintf("recurrence %s references unknown %s %q",
		e.RecurrenceID, e.Kind, e.Reference)
}

func (e *TemplateReferenceError) Unwrap() error {
	return ErrTemplateReference
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the occurrence will be retried on the next
// batch run rather than being permanently failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleWatermark)
}
