/*
driver.go - Batch driver: the sole entry point of the engine

PURPOSE:
  RunBatch iterates all active recurrences, asks the sequencer which
  occurrences are due by asOf, and materializes them. It is designed to be
  invoked at any cadence - a daily timer, a manual trigger, or a catch-up
  after days of downtime - and to be safely re-run at any time.

FAILURE ISOLATION:
  Each recurrence is processed independently. A failure on one occurrence
  aborts further processing of THAT recurrence for this run (occurrence
  N+1 must never materialize before occurrence N) but never touches other
  recurrences. All errors are accumulated into the BatchResult; nothing
  escapes RunBatch except a failure to list the recurrences at all.

CONCURRENCY:
  Distinct recurrences share no state, so they are fanned out across a
  bounded worker pool. Occurrences WITHIN one recurrence stay strictly
  sequential: each watermark advance gates the next candidate.

CANCELLATION:
  Cooperative, at recurrence and occurrence boundaries only - never in the
  middle of a single materialization, which would break the
  write-then-advance atomicity.
*/
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/warp/recurrence-engine/recurrence"
)

// DefaultPoolSize bounds recurrence fan-out when no size is configured.
const DefaultPoolSize = 4

// Driver runs scheduling batches.
type Driver struct {
	Recurrences  RecurrenceStore
	Materializer *Materializer
	Watermarks   WatermarkStore
	Clock        Clock

	// Runs is optional; nil disables batch-run bookkeeping.
	Runs RunRecorder

	// PoolSize bounds the worker pool; <=0 selects DefaultPoolSize.
	PoolSize int
}

func NewDriver(recurrences RecurrenceStore, watermarks WatermarkStore, ledger Ledger) *Driver {
	return &Driver{
		Recurrences:  recurrences,
		Materializer: NewMaterializer(ledger, watermarks),
		Watermarks:   watermarks,
		Clock:        SystemClock{},
	}
}

// Failure reports one recurrence that could not be (fully) processed.
type Failure struct {
	RecurrenceID recurrence.RecurrenceID
	Err          error
}

// BatchResult summarizes one RunBatch invocation.
type BatchResult struct {
	// Materialized counts newly created ledger transactions. Recovered
	// duplicates from earlier partial runs are not counted, which is what
	// makes an immediate re-run report zero.
	Materialized int
	Failures     []Failure
}

// RunBatch processes every active recurrence once. A zero asOf means "now".
func (d *Driver) RunBatch(ctx context.Context, asOf recurrence.TimePoint) (BatchResult, error) {
	if asOf.IsZero() {
		asOf = d.clock().Now()
	}

	recs, err := d.Recurrences.ListActive(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list active recurrences: %w", err)
	}

	pool, err := ants.NewPool(d.poolSize())
	if err != nil {
		return BatchResult{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu     sync.Mutex
		result BatchResult
		wg     sync.WaitGroup
	)
	started := time.Now().UTC()

	for _, rec := range recs {
		// Checkpoint between recurrences: a cancelled batch stops fanning
		// out; recurrences already submitted run to completion.
		if ctx.Err() != nil {
			break
		}

		rec := rec
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			created, procErr := d.processRecurrence(ctx, rec, asOf)

			mu.Lock()
			defer mu.Unlock()
			result.Materialized += created
			if procErr != nil {
				result.Failures = append(result.Failures, Failure{RecurrenceID: rec.ID, Err: procErr})
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Failures = append(result.Failures, Failure{RecurrenceID: rec.ID, Err: submitErr})
			mu.Unlock()
		}
	}
	wg.Wait()

	// Deterministic failure order for logs and tests.
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].RecurrenceID < result.Failures[j].RecurrenceID
	})

	if d.Runs != nil {
		run := BatchRun{
			ID:           uuid.NewString(),
			AsOf:         asOf,
			StartedAt:    started,
			FinishedAt:   time.Now().UTC(),
			Materialized: result.Materialized,
			Failed:       len(result.Failures),
		}
		if recErr := d.Runs.RecordRun(ctx, run); recErr != nil {
			return result, fmt.Errorf("record batch run: %w", recErr)
		}
	}
	return result, nil
}

// processRecurrence materializes every due occurrence of one recurrence, in
// ascending date order. The first failure aborts the rest of this
// recurrence's batch so that later occurrences never land out of order.
func (d *Driver) processRecurrence(ctx context.Context, rec recurrence.Recurrence, asOf recurrence.TimePoint) (int, error) {
	watermark, err := d.Watermarks.Latest(ctx, rec.ID)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}

	due, err := recurrence.DueOccurrences(rec, watermark, asOf)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, date := range due {
		// Checkpoint between occurrences, never mid-materialization.
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, wasCreated, err := d.Materializer.Materialize(ctx, rec, date)
		if err != nil {
			return created, err
		}
		if wasCreated {
			created++
		}
	}
	return created, nil
}

func (d *Driver) clock() Clock {
	if d.Clock == nil {
		return SystemClock{}
	}
	return d.Clock
}

func (d *Driver) poolSize() int {
	if d.PoolSize <= 0 {
		return DefaultPoolSize
	}
	return d.PoolSize
}
