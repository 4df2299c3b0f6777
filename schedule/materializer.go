/*
materializer.go - Turning one due occurrence into a ledger transaction

PURPOSE:
  The unit of idempotency. Materialize() writes exactly one ledger
  transaction for one occurrence date and then durably advances the
  watermark. The ordering is fixed: write-then-advance, never the reverse.
  An unadvanced watermark after a failed write means the occurrence is
  retried on the next run; an advanced watermark without a write would mean
  a silently lost transaction.

RECOVERY:
  If a previous run crashed between the ledger write and the watermark
  advance, the retry hits the ledger's (recurrence, occurrence date)
  uniqueness check. ErrDuplicateTransaction is treated as success: the
  watermark is advanced to match and nothing is re-created. That is the
  at-least-once-delivery / exactly-once-effect guarantee of this layer.
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/recurrence-engine/recurrence"
)

// Materializer creates ledger transactions for due occurrences.
type Materializer struct {
	Ledger     Ledger
	Watermarks WatermarkStore
}

func NewMaterializer(ledger Ledger, watermarks WatermarkStore) *Materializer {
	return &Materializer{Ledger: ledger, Watermarks: watermarks}
}

// Materialize creates the ledger transaction for one occurrence and advances
// the watermark. created=false means the ledger already held the transaction
// from an earlier, partially completed run; the watermark is still advanced.
func (m *Materializer) Materialize(ctx context.Context, rec recurrence.Recurrence, date recurrence.TimePoint) (tx recurrence.MaterializedTransaction, created bool, err error) {
	tx = buildTransaction(rec, date)

	created = true
	if err := m.Ledger.CreateTransaction(ctx, tx); err != nil {
		if !errors.Is(err, recurrence.ErrDuplicateTransaction) {
			return recurrence.MaterializedTransaction{}, false, fmt.Errorf("create transaction for %s on %s: %w", rec.ID, date, err)
		}
		// Already written by a run that failed before advancing the
		// watermark. Idempotent no-op: just catch the watermark up.
		created = false
	}

	if err := m.Watermarks.Advance(ctx, rec.ID, date); err != nil {
		if errors.Is(err, recurrence.ErrStaleWatermark) && !created {
			// Both the transaction and the watermark were already in place.
			return tx, false, nil
		}
		return tx, created, fmt.Errorf("advance watermark for %s to %s: %w", rec.ID, date, err)
	}
	return tx, created, nil
}

// buildTransaction stamps the template onto a concrete transaction. The
// transaction date is the occurrence date, never "now".
func buildTransaction(rec recurrence.Recurrence, date recurrence.TimePoint) recurrence.MaterializedTransaction {
	t := rec.Template

	tx := recurrence.MaterializedTransaction{
		ID:                   recurrence.TransactionID(uuid.NewString()),
		RecurrenceID:         rec.ID,
		OccurrenceDate:       date,
		Description:          t.Description,
		Amount:               t.Amount,
		CurrencyCode:         t.CurrencyCode,
		Kind:                 t.Kind,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		CategoryID:           t.CategoryID,
		BudgetID:             t.BudgetID,
		BillID:               t.BillID,
		ForeignCurrencyCode:  t.ForeignCurrencyCode,
		ApplyRules:           rec.ApplyDownstreamRules,
		CreatedAt:            time.Now().UTC(),
	}
	if t.ForeignAmount != nil {
		fa := *t.ForeignAmount
		tx.ForeignAmount = &fa
	}
	return tx
}
