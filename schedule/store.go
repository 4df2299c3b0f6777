/*
store.go - Collaborator interfaces consumed by the scheduling engine

PURPOSE:
  Defines the narrow interfaces between the engine and the services it
  calls into: the recurrence store, the watermark store, the ledger, and
  the clock. Everything here is injected; the engine never reaches for a
  global client, which lets tests substitute in-memory fakes.

IDEMPOTENCY CONTRACT:
  The ledger MUST enforce uniqueness on (RecurrenceID, OccurrenceDate) and
  report violations as recurrence.ErrDuplicateTransaction. That constraint
  is what turns the engine's at-least-once delivery into exactly-once
  effect: if a watermark advance fails after a successful ledger write, the
  retry on the next run hits the duplicate check instead of double-booking.

WATERMARK CONTRACT:
  Advance must be atomic and reject any date not strictly greater than the
  stored value with recurrence.ErrStaleWatermark. Each recurrence's
  watermark is row-level isolated, so no cross-recurrence locking exists.

IMPLEMENTATIONS:
  - store/sqlite:        production persistence
  - schedule/store:      in-memory, for tests and dev mode
*/
package schedule

import (
	"context"
	"time"

	"github.com/warp/recurrence-engine/recurrence"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RecurrenceStore supplies recurrence definitions. Read-only from the
// engine's point of view: user edits happen elsewhere.
type RecurrenceStore interface {
	// ListActive returns all recurrences with Active=true.
	ListActive(ctx context.Context) ([]recurrence.Recurrence, error)

	// Get returns one recurrence, or recurrence.ErrRecurrenceNotFound.
	Get(ctx context.Context, id recurrence.RecurrenceID) (*recurrence.Recurrence, error)
}

// WatermarkStore persists the latest materialized date per recurrence.
type WatermarkStore interface {
	// Latest returns the latest materialized date, or nil if no occurrence
	// has been materialized yet.
	Latest(ctx context.Context, id recurrence.RecurrenceID) (*recurrence.TimePoint, error)

	// Advance moves the watermark forward. Fails with
	// recurrence.ErrStaleWatermark unless date is strictly greater than the
	// stored value. This is the optimistic lock against concurrent runs.
	Advance(ctx context.Context, id recurrence.RecurrenceID, date recurrence.TimePoint) error
}

// Ledger is the transaction sink. Writes are append-only; the engine never
// mutates or deletes a transaction it created.
type Ledger interface {
	// CreateTransaction persists one materialized transaction. Returns
	// recurrence.ErrDuplicateTransaction if the (recurrence, occurrence
	// date) pair already exists, and recurrence.ErrTemplateReference if the
	// template points at a missing account or category.
	CreateTransaction(ctx context.Context, tx recurrence.MaterializedTransaction) error

	// TransactionsByRecurrence returns all transactions materialized for a
	// recurrence, ordered by occurrence date.
	TransactionsByRecurrence(ctx context.Context, id recurrence.RecurrenceID) ([]recurrence.MaterializedTransaction, error)
}

// Clock supplies "now". Injectable so tests can pin the calendar.
type Clock interface {
	Now() recurrence.TimePoint
}

// SystemClock is the wall-clock implementation.
type SystemClock struct{}

func (SystemClock) Now() recurrence.TimePoint { return recurrence.Today() }

// =============================================================================
// RUN RECORDS - Bookkeeping for batch runs
// =============================================================================

// BatchRun records one RunBatch invocation for audit and UI display.
type BatchRun struct {
	ID           string
	AsOf         recurrence.TimePoint
	StartedAt    time.Time
	FinishedAt   time.Time
	Materialized int
	Failed       int
}

// RunRecorder persists batch-run records. Optional: a nil recorder disables
// run bookkeeping without affecting scheduling.
type RunRecorder interface {
	RecordRun(ctx context.Context, run BatchRun) error
}
