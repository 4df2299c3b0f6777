/*
scheduler.go - Automatic batch cadence

PURPOSE:
  Invokes the batch driver on a configurable interval so due occurrences
  are materialized without manual triggers. The engine itself tolerates any
  cadence - daily is typical - and the catch-up contract means a stopped
  scheduler loses nothing: the next run picks up every missed occurrence.

DESIGN:
  - One background goroutine with a ticker; runs once immediately on Start
  - Start/Stop are idempotent and safe from any goroutine
  - Batch outcomes are logged; failures inside a batch never stop the loop

USAGE:
  sched := api.NewBatchScheduler(driver)
  sched.Start()
  defer sched.Stop()
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
)

// BatchScheduler runs scheduling batches on a fixed interval.
type BatchScheduler struct {
	Driver   *schedule.Driver
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBatchScheduler creates a scheduler with a daily cadence.
func NewBatchScheduler(driver *schedule.Driver) *BatchScheduler {
	return &BatchScheduler{
		Driver:   driver,
		Interval: 24 * time.Hour,
		Enabled:  true,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (bs *BatchScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	bs.ticker = time.NewTicker(bs.Interval)
	bs.wg.Add(1)
	go bs.run()

	log.Printf("[Scheduler] Started with interval: %v", bs.Interval)
}

// Stop stops the scheduler and waits for an in-flight batch to finish.
func (bs *BatchScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		bs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (bs *BatchScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start, then on every tick.
	bs.runOnce()

	for {
		select {
		case <-bs.ticker.C:
			bs.runOnce()
		case <-bs.stop:
			return
		}
	}
}

func (bs *BatchScheduler) runOnce() {
	asOf := recurrence.Today()
	log.Printf("[Scheduler] Running batch as of %s", asOf)

	result, err := bs.Driver.RunBatch(context.Background(), asOf)
	if err != nil {
		log.Printf("[Scheduler] Batch run failed: %v", err)
		return
	}

	if result.Materialized > 0 || len(result.Failures) > 0 {
		log.Printf("[Scheduler] Completed: %d materialized, %d failed",
			result.Materialized, len(result.Failures))
	}
	for _, f := range result.Failures {
		log.Printf("[Scheduler] Recurrence %s failed: %v", f.RecurrenceID, f.Err)
	}
}

// RunNow triggers an immediate batch (for admin/testing).
func (bs *BatchScheduler) RunNow() {
	bs.runOnce()
}
