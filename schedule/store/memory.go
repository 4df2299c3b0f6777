// Package store provides in-memory implementations of the schedule
// collaborator interfaces, for tests and dev mode.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements RecurrenceStore, WatermarkStore, Ledger and RunRecorder
// with the same contracts as the SQLite store, including the
// (recurrence, occurrence date) uniqueness check and the strictly-greater
// watermark advance.
type Memory struct {
	mu           sync.RWMutex
	recurrences  map[recurrence.RecurrenceID]recurrence.Recurrence
	watermarks   map[recurrence.RecurrenceID]recurrence.TimePoint
	transactions map[recurrence.RecurrenceID][]recurrence.MaterializedTransaction
	occupied     map[occurrenceKey]bool
	runs         []schedule.BatchRun

	// knownAccounts, when non-nil, turns on template-reference checking:
	// transactions naming an account outside the set fail with
	// TemplateReferenceError, the way a real ledger with foreign keys would.
	knownAccounts map[recurrence.AccountID]bool
}

type occurrenceKey struct {
	RecurrenceID recurrence.RecurrenceID
	Date         string
}

func NewMemory() *Memory {
	return &Memory{
		recurrences:  make(map[recurrence.RecurrenceID]recurrence.Recurrence),
		watermarks:   make(map[recurrence.RecurrenceID]recurrence.TimePoint),
		transactions: make(map[recurrence.RecurrenceID][]recurrence.MaterializedTransaction),
		occupied:     make(map[occurrenceKey]bool),
	}
}

// =============================================================================
// RECURRENCE STORE
// =============================================================================

// PutRecurrence stores or replaces a recurrence definition.
func (m *Memory) PutRecurrence(rec recurrence.Recurrence) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurrences[rec.ID] = rec
	return nil
}

func (m *Memory) ListActive(_ context.Context) ([]recurrence.Recurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []recurrence.Recurrence
	for _, rec := range m.recurrences {
		if rec.Active {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (m *Memory) Get(_ context.Context, id recurrence.RecurrenceID) (*recurrence.Recurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recurrences[id]
	if !ok {
		return nil, recurrence.ErrRecurrenceNotFound
	}
	return &rec, nil
}

// =============================================================================
// WATERMARK STORE
// =============================================================================

func (m *Memory) Latest(_ context.Context, id recurrence.RecurrenceID) (*recurrence.TimePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wm, ok := m.watermarks[id]
	if !ok {
		return nil, nil
	}
	return &wm, nil
}

func (m *Memory) Advance(_ context.Context, id recurrence.RecurrenceID, date recurrence.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.watermarks[id]; ok && !date.After(stored) {
		return &recurrence.StaleWatermarkError{RecurrenceID: id, Stored: stored, Attempted: date}
	}
	m.watermarks[id] = date
	return nil
}

// SetWatermark force-sets a watermark, bypassing the strictly-greater check.
// Test seam for simulating concurrent runs.
func (m *Memory) SetWatermark(id recurrence.RecurrenceID, date recurrence.TimePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[id] = date
}

// =============================================================================
// LEDGER
// =============================================================================

// SetKnownAccounts enables reference checking against the given account set.
func (m *Memory) SetKnownAccounts(ids ...recurrence.AccountID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.knownAccounts = make(map[recurrence.AccountID]bool, len(ids))
	for _, id := range ids {
		m.knownAccounts[id] = true
	}
}

func (m *Memory) CreateTransaction(_ context.Context, tx recurrence.MaterializedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.knownAccounts != nil {
		for _, acct := range []recurrence.AccountID{tx.SourceAccountID, tx.DestinationAccountID} {
			if acct != "" && !m.knownAccounts[acct] {
				return &recurrence.TemplateReferenceError{
					RecurrenceID: tx.RecurrenceID,
					Kind:         "account",
					Reference:    string(acct),
				}
			}
		}
	}

	key := occurrenceKey{RecurrenceID: tx.RecurrenceID, Date: tx.OccurrenceDate.String()}
	if m.occupied[key] {
		return recurrence.ErrDuplicateTransaction
	}

	txs := m.transactions[tx.RecurrenceID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].OccurrenceDate.After(tx.OccurrenceDate)
	})
	txs = append(txs, recurrence.MaterializedTransaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.RecurrenceID] = txs

	m.occupied[key] = true
	return nil
}

func (m *Memory) TransactionsByRecurrence(_ context.Context, id recurrence.RecurrenceID) ([]recurrence.MaterializedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]recurrence.MaterializedTransaction, len(m.transactions[id]))
	copy(result, m.transactions[id])
	return result, nil
}

// =============================================================================
// RUN RECORDER
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run schedule.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// Runs returns all recorded batch runs, oldest first.
func (m *Memory) Runs() []schedule.BatchRun {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]schedule.BatchRun, len(m.runs))
	copy(result, m.runs)
	return result
}
