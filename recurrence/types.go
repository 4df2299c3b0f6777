/*
Package recurrence provides the calendar core of the recurring-transaction
scheduling engine.

PURPOSE:
  Given a recurrence definition (a template transaction plus a periodic
  repetition rule), this package computes which occurrence dates are due as
  of a point in time. It is pure: no I/O, no clocks, no storage. The
  schedule package drives it against real collaborators.

KEY CONCEPTS IN THIS FILE (types.go):
  - Recurrence: A named definition of a repeating financial event
  - RepetitionRule: Period type + skip multiplier + weekend policy
  - TransactionTemplate: The shape of the transaction to materialize
  - MaterializedTransaction: A concrete ledger entry produced by the engine

DESIGN PRINCIPLES:
  1. Precision: amounts use decimal.Decimal, never float64
  2. Type safety: distinct ID types prevent mixing recurrence/account IDs
  3. Ownership: a recurrence owns exactly ONE rule and ONE template; the 1:1
     relationship is structural, not a convention over a collection
  4. Whole-day granularity: occurrence dates are TimePoints, not instants

SEE ALSO:
  - period.go: Period arithmetic
  - weekend.go: Weekend adjustment policy
  - sequencer.go: Due-occurrence computation
*/
package recurrence

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecurrenceID string
type AccountID string
type TransactionID string

// =============================================================================
// REPETITION RULE - The period specification
// =============================================================================

// RepetitionRule describes how a recurrence repeats.
type RepetitionRule struct {
	PeriodType PeriodType

	// Skip is the skip multiplier: 0 means every period, N means every
	// (N+1) periods. skip=1 on monthly -> bi-monthly.
	Skip int

	WeekendPolicy WeekendPolicy
}

// Validate rejects malformed rules. Called at recurrence creation time so
// the scheduler only ever sees well-formed rules.
func (r RepetitionRule) Validate() error {
	if !r.PeriodType.Valid() {
		return &InvalidRepetitionRuleError{Field: "periodType", Reason: "unrecognized period type " + string(r.PeriodType)}
	}
	if r.Skip < 0 {
		return &InvalidRepetitionRuleError{Field: "skip", Reason: "must not be negative"}
	}
	if !r.WeekendPolicy.Valid() {
		return &InvalidRepetitionRuleError{Field: "weekendPolicy", Reason: "unrecognized weekend policy " + string(r.WeekendPolicy)}
	}
	return nil
}

// =============================================================================
// END CONDITION - Termination of a recurrence
// =============================================================================

type EndConditionType string

const (
	// EndNever: the recurrence repeats indefinitely.
	EndNever EndConditionType = "never"
	// EndOnDate: no occurrence strictly after Date is ever materialized.
	EndOnDate EndConditionType = "on_date"
	// EndAfterCount: at most Count calendar occurrences happen. Occurrences
	// dropped by the skip_occurrence weekend policy count toward this limit.
	EndAfterCount EndConditionType = "after_count"
)

// EndCondition terminates a recurrence. The variants are mutually exclusive:
// exactly one of Date/Count is meaningful, selected by Type.
type EndCondition struct {
	Type  EndConditionType
	Date  TimePoint // valid when Type == EndOnDate
	Count int       // valid when Type == EndAfterCount
}

func (e EndCondition) Validate() error {
	switch e.Type {
	case EndNever:
		if !e.Date.IsZero() || e.Count != 0 {
			return fmt.Errorf("%w: end condition 'never' must not carry a date or count", ErrInvalidRecurrence)
		}
	case EndOnDate:
		if e.Date.IsZero() {
			return fmt.Errorf("%w: end condition 'on_date' requires a date", ErrInvalidRecurrence)
		}
		if e.Count != 0 {
			return fmt.Errorf("%w: end condition 'on_date' must not carry a count", ErrInvalidRecurrence)
		}
	case EndAfterCount:
		if e.Count <= 0 {
			return fmt.Errorf("%w: end condition 'after_count' requires a positive count", ErrInvalidRecurrence)
		}
		if !e.Date.IsZero() {
			return fmt.Errorf("%w: end condition 'after_count' must not carry a date", ErrInvalidRecurrence)
		}
	default:
		return fmt.Errorf("%w: unrecognized end condition type %q", ErrInvalidRecurrence, e.Type)
	}
	return nil
}

// =============================================================================
// TRANSACTION TEMPLATE - Shape of the transaction to materialize
// =============================================================================

type TransactionKind string

const (
	KindIncome   TransactionKind = "income"
	KindExpense  TransactionKind = "expense"
	KindTransfer TransactionKind = "transfer"
)

// TransactionTemplate is the blueprint stamped onto every materialized
// transaction. Immutable once a materialized transaction references it.
type TransactionTemplate struct {
	Description          string
	Amount               decimal.Decimal
	CurrencyCode         string
	Kind                 TransactionKind
	SourceAccountID      AccountID
	DestinationAccountID AccountID

	// Optional references
	CategoryID string
	BudgetID   string
	BillID     string

	// Optional foreign-currency amount
	ForeignAmount       *decimal.Decimal
	ForeignCurrencyCode string
}

// =============================================================================
// RECURRENCE - A repeating financial event
// =============================================================================

// Recurrence is a user-owned definition of a repeating financial event.
// It owns exactly one RepetitionRule and one TransactionTemplate.
type Recurrence struct {
	ID         RecurrenceID
	Title      string
	AnchorDate TimePoint // date of the first occurrence; immutable once materialized

	EndCondition EndCondition

	// Active recurrences are scheduled; inactive ones never are.
	Active bool

	// ApplyDownstreamRules is forwarded to materialized transactions for the
	// rule-matching collaborator. This engine never interprets it.
	ApplyDownstreamRules bool

	Rule     RepetitionRule
	Template TransactionTemplate
}

// Validate rejects malformed recurrence definitions at creation time.
func (r Recurrence) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecurrence)
	}
	if r.AnchorDate.IsZero() {
		return fmt.Errorf("%w: missing anchor date", ErrInvalidRecurrence)
	}
	if err := r.Rule.Validate(); err != nil {
		return err
	}
	if err := r.EndCondition.Validate(); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// MATERIALIZED TRANSACTION - Concrete ledger entry
// =============================================================================

// MaterializedTransaction is the ledger entry created for one due occurrence.
// Once created it is owned by the ledger; the engine never mutates or deletes
// it. The (RecurrenceID, OccurrenceDate) pair is unique in the ledger, which
// is what makes materialization idempotent.
type MaterializedTransaction struct {
	ID             TransactionID
	RecurrenceID   RecurrenceID
	OccurrenceDate TimePoint // the occurrence date, NOT the wall-clock time of the run

	Description          string
	Amount               decimal.Decimal
	CurrencyCode         string
	Kind                 TransactionKind
	SourceAccountID      AccountID
	DestinationAccountID AccountID
	CategoryID           string
	BudgetID             string
	BillID               string
	ForeignAmount        *decimal.Decimal
	ForeignCurrencyCode  string

	// ApplyRules is forwarded to the rule-matching collaborator.
	ApplyRules bool

	CreatedAt time.Time
}
