/*
Package sqlite provides the SQLite-backed implementation of the scheduling
engine's collaborator interfaces.

PURPOSE:
  Implements RecurrenceStore, WatermarkStore, Ledger and RunRecorder on a
  single SQLite database. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  recurrences:  Recurrence definitions. The repetition rule and transaction
                template are columns of this table, not child collections:
                the 1:1 ownership is enforced by the schema itself.
  watermarks:   One row per recurrence; latest materialized date.
  transactions: Materialized ledger entries. Append-only from this engine's
                point of view - no UPDATE or DELETE statements exist.
  batch_runs:   One row per RunBatch invocation.

IDEMPOTENCY:
  idx_transactions_recurrence_occurrence enforces uniqueness on
  (recurrence_id, occurrence_date). A second materialization of the same
  occurrence is reported as recurrence.ErrDuplicateTransaction, which the
  materializer treats as already-done.

WATERMARK ADVANCE:
  Runs in a database transaction: read current value, reject unless the new
  date is strictly greater, then upsert. Combined with the package mutex
  this gives the optimistic-lock behavior the engine relies on.

WAL MODE:
  The database is opened with WAL for better read concurrency and crash
  recovery.

USAGE:
  st, err := sqlite.New("./data/recurrences.db")  // ":memory:" for tests
  defer st.Close()
  driver := schedule.NewDriver(st, st, st)

SEE ALSO:
  - schedule/store.go: Interface contracts
  - schedule/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/schedule"
)

// Store implements all collaborator interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Recurrence definitions; rule and template are owned 1:1 columns
	CREATE TABLE IF NOT EXISTS recurrences (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		anchor_date TEXT NOT NULL,
		end_type TEXT NOT NULL DEFAULT 'never',
		end_date TEXT,
		end_count INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		apply_rules INTEGER NOT NULL DEFAULT 0,

		period_type TEXT NOT NULL,
		skip INTEGER NOT NULL DEFAULT 0,
		weekend_policy TEXT NOT NULL DEFAULT 'keep',

		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		kind TEXT NOT NULL,
		source_account_id TEXT NOT NULL,
		destination_account_id TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		budget_id TEXT NOT NULL DEFAULT '',
		bill_id TEXT NOT NULL DEFAULT '',
		foreign_amount TEXT,
		foreign_currency TEXT NOT NULL DEFAULT '',

		created_at TEXT NOT NULL
	);

	-- Latest materialized date per recurrence
	CREATE TABLE IF NOT EXISTS watermarks (
		recurrence_id TEXT PRIMARY KEY,
		latest_date TEXT NOT NULL,
		advanced_at TEXT NOT NULL
	);

	-- Materialized ledger transactions (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		recurrence_id TEXT NOT NULL,
		occurrence_date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		kind TEXT NOT NULL,
		source_account_id TEXT NOT NULL,
		destination_account_id TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		budget_id TEXT NOT NULL DEFAULT '',
		bill_id TEXT NOT NULL DEFAULT '',
		foreign_amount TEXT,
		foreign_currency TEXT NOT NULL DEFAULT '',
		apply_rules INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- The idempotency constraint: one transaction per occurrence
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_recurrence_occurrence
		ON transactions(recurrence_id, occurrence_date);

	CREATE INDEX IF NOT EXISTS idx_transactions_recurrence_date
		ON transactions(recurrence_id, occurrence_date, created_at);

	-- Batch run bookkeeping
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		materialized INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECURRENCE STORE
// =============================================================================

// SaveRecurrence inserts or replaces a recurrence definition. Creation and
// editing of recurrences belong to the surrounding application; this method
// exists for seeding and tests.
func (s *Store) SaveRecurrence(ctx context.Context, rec recurrence.Recurrence) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var endDate sql.NullString
	if rec.EndCondition.Type == recurrence.EndOnDate {
		endDate = sql.NullString{String: rec.EndCondition.Date.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recurrences (
			id, title, anchor_date, end_type, end_date, end_count, active, apply_rules,
			period_type, skip, weekend_policy,
			description, amount, currency, kind,
			source_account_id, destination_account_id,
			category_id, budget_id, bill_id, foreign_amount, foreign_currency,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), rec.Title, rec.AnchorDate.String(),
		string(rec.EndCondition.Type), endDate, rec.EndCondition.Count,
		boolToInt(rec.Active), boolToInt(rec.ApplyDownstreamRules),
		string(rec.Rule.PeriodType), rec.Rule.Skip, string(rec.Rule.WeekendPolicy),
		rec.Template.Description, rec.Template.Amount.String(), rec.Template.CurrencyCode,
		string(rec.Template.Kind),
		string(rec.Template.SourceAccountID), string(rec.Template.DestinationAccountID),
		rec.Template.CategoryID, rec.Template.BudgetID, rec.Template.BillID,
		nullableDecimal(rec.Template.ForeignAmount), rec.Template.ForeignCurrencyCode,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save recurrence %s: %w", rec.ID, err)
	}
	return nil
}

const recurrenceColumns = `
	id, title, anchor_date, end_type, end_date, end_count, active, apply_rules,
	period_type, skip, weekend_policy,
	description, amount, currency, kind,
	source_account_id, destination_account_id,
	category_id, budget_id, bill_id, foreign_amount, foreign_currency`

func (s *Store) ListActive(ctx context.Context) ([]recurrence.Recurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+recurrenceColumns+` FROM recurrences WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active recurrences: %w", err)
	}
	defer rows.Close()

	var recs []recurrence.Recurrence
	for rows.Next() {
		rec, err := scanRecurrence(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) Get(ctx context.Context, id recurrence.RecurrenceID) (*recurrence.Recurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT`+recurrenceColumns+` FROM recurrences WHERE id = ?`, string(id))
	rec, err := scanRecurrence(row)
	if err == sql.ErrNoRows {
		return nil, recurrence.ErrRecurrenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecurrence(row rowScanner) (recurrence.Recurrence, error) {
	var (
		rec                       recurrence.Recurrence
		id, anchor, endType       string
		endDate, foreignAmount    sql.NullString
		active, applyRules        int
		periodType, weekendPolicy string
		amount, kind              string
		source, destination       string
	)
	err := row.Scan(
		&id, &rec.Title, &anchor, &endType, &endDate, &rec.EndCondition.Count,
		&active, &applyRules,
		&periodType, &rec.Rule.Skip, &weekendPolicy,
		&rec.Template.Description, &amount, &rec.Template.CurrencyCode, &kind,
		&source, &destination,
		&rec.Template.CategoryID, &rec.Template.BudgetID, &rec.Template.BillID,
		&foreignAmount, &rec.Template.ForeignCurrencyCode,
	)
	if err != nil {
		return recurrence.Recurrence{}, err
	}

	rec.ID = recurrence.RecurrenceID(id)
	rec.Active = active != 0
	rec.ApplyDownstreamRules = applyRules != 0
	rec.Rule.PeriodType = recurrence.PeriodType(periodType)
	rec.Rule.WeekendPolicy = recurrence.WeekendPolicy(weekendPolicy)
	rec.Template.Kind = recurrence.TransactionKind(kind)
	rec.Template.SourceAccountID = recurrence.AccountID(source)
	rec.Template.DestinationAccountID = recurrence.AccountID(destination)

	rec.EndCondition.Type = recurrence.EndConditionType(endType)
	if endDate.Valid {
		d, err := recurrence.ParseDate(endDate.String)
		if err != nil {
			return recurrence.Recurrence{}, fmt.Errorf("recurrence %s: bad end date: %w", id, err)
		}
		rec.EndCondition.Date = d
	}

	if rec.AnchorDate, err = recurrence.ParseDate(anchor); err != nil {
		return recurrence.Recurrence{}, fmt.Errorf("recurrence %s: bad anchor date: %w", id, err)
	}
	if rec.Template.Amount, err = decimal.NewFromString(amount); err != nil {
		return recurrence.Recurrence{}, fmt.Errorf("recurrence %s: bad amount: %w", id, err)
	}
	if foreignAmount.Valid {
		fa, err := decimal.NewFromString(foreignAmount.String)
		if err != nil {
			return recurrence.Recurrence{}, fmt.Errorf("recurrence %s: bad foreign amount: %w", id, err)
		}
		rec.Template.ForeignAmount = &fa
	}
	return rec, nil
}

// =============================================================================
// WATERMARK STORE
// =============================================================================

func (s *Store) Latest(ctx context.Context, id recurrence.RecurrenceID) (*recurrence.TimePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest string
	err := s.db.QueryRowContext(ctx,
		`SELECT latest_date FROM watermarks WHERE recurrence_id = ?`, string(id)).Scan(&latest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watermark %s: %w", id, err)
	}

	tp, err := recurrence.ParseDate(latest)
	if err != nil {
		return nil, fmt.Errorf("watermark %s: bad date: %w", id, err)
	}
	return &tp, nil
}

func (s *Store) Advance(ctx context.Context, id recurrence.RecurrenceID, date recurrence.TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("advance watermark %s: %w", id, err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT latest_date FROM watermarks WHERE recurrence_id = ?`, string(id)).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// First materialization for this recurrence.
	case err != nil:
		return fmt.Errorf("advance watermark %s: %w", id, err)
	default:
		tp, perr := recurrence.ParseDate(stored)
		if perr != nil {
			return fmt.Errorf("watermark %s: bad date: %w", id, perr)
		}
		if !date.After(tp) {
			return &recurrence.StaleWatermarkError{RecurrenceID: id, Stored: tp, Attempted: date}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO watermarks (recurrence_id, latest_date, advanced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(recurrence_id) DO UPDATE SET latest_date = excluded.latest_date, advanced_at = excluded.advanced_at`,
		string(id), date.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("advance watermark %s: %w", id, err)
	}
	return tx.Commit()
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, mtx recurrence.MaterializedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM transactions WHERE recurrence_id = ? AND occurrence_date = ?`,
		string(mtx.RecurrenceID), mtx.OccurrenceDate.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	if exists > 0 {
		return recurrence.ErrDuplicateTransaction
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, recurrence_id, occurrence_date, description, amount, currency, kind,
			source_account_id, destination_account_id,
			category_id, budget_id, bill_id, foreign_amount, foreign_currency,
			apply_rules, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(mtx.ID), string(mtx.RecurrenceID), mtx.OccurrenceDate.String(),
		mtx.Description, mtx.Amount.String(), mtx.CurrencyCode, string(mtx.Kind),
		string(mtx.SourceAccountID), string(mtx.DestinationAccountID),
		mtx.CategoryID, mtx.BudgetID, mtx.BillID,
		nullableDecimal(mtx.ForeignAmount), mtx.ForeignCurrencyCode,
		boolToInt(mtx.ApplyRules), mtx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		// The unique index is the backstop if a concurrent writer slipped in.
		return fmt.Errorf("create transaction for %s on %s: %w",
			mtx.RecurrenceID, mtx.OccurrenceDate, err)
	}
	return tx.Commit()
}

func (s *Store) TransactionsByRecurrence(ctx context.Context, id recurrence.RecurrenceID) ([]recurrence.MaterializedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recurrence_id, occurrence_date, description, amount, currency, kind,
			source_account_id, destination_account_id,
			category_id, budget_id, bill_id, foreign_amount, foreign_currency,
			apply_rules, created_at
		FROM transactions WHERE recurrence_id = ? ORDER BY occurrence_date`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("load transactions for %s: %w", id, err)
	}
	defer rows.Close()

	var txs []recurrence.MaterializedTransaction
	for rows.Next() {
		var (
			mtx                     recurrence.MaterializedTransaction
			txID, recID, occurrence string
			amount, kind            string
			source, destination     string
			foreignAmount           sql.NullString
			applyRules              int
			createdAt               string
		)
		err := rows.Scan(
			&txID, &recID, &occurrence, &mtx.Description, &amount, &mtx.CurrencyCode, &kind,
			&source, &destination,
			&mtx.CategoryID, &mtx.BudgetID, &mtx.BillID,
			&foreignAmount, &mtx.ForeignCurrencyCode,
			&applyRules, &createdAt,
		)
		if err != nil {
			return nil, err
		}

		mtx.ID = recurrence.TransactionID(txID)
		mtx.RecurrenceID = recurrence.RecurrenceID(recID)
		mtx.Kind = recurrence.TransactionKind(kind)
		mtx.SourceAccountID = recurrence.AccountID(source)
		mtx.DestinationAccountID = recurrence.AccountID(destination)
		mtx.ApplyRules = applyRules != 0

		if mtx.OccurrenceDate, err = recurrence.ParseDate(occurrence); err != nil {
			return nil, fmt.Errorf("transaction %s: bad occurrence date: %w", txID, err)
		}
		if mtx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s: bad amount: %w", txID, err)
		}
		if foreignAmount.Valid {
			fa, err := decimal.NewFromString(foreignAmount.String)
			if err != nil {
				return nil, fmt.Errorf("transaction %s: bad foreign amount: %w", txID, err)
			}
			mtx.ForeignAmount = &fa
		}
		if mtx.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("transaction %s: bad created_at: %w", txID, err)
		}
		txs = append(txs, mtx)
	}
	return txs, rows.Err()
}

// =============================================================================
// RUN RECORDER
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run schedule.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs (id, as_of, started_at, finished_at, materialized, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.AsOf.String(),
		run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339),
		run.Materialized, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("record batch run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent batch runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schedule.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, as_of, started_at, finished_at, materialized, failed
		FROM batch_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []schedule.BatchRun
	for rows.Next() {
		var (
			run                 schedule.BatchRun
			asOf, started, done string
		)
		if err := rows.Scan(&run.ID, &asOf, &started, &done, &run.Materialized, &run.Failed); err != nil {
			return nil, err
		}
		if run.AsOf, err = recurrence.ParseDate(asOf); err != nil {
			return nil, fmt.Errorf("batch run %s: bad as_of: %w", run.ID, err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("batch run %s: bad started_at: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339, done); err != nil {
			return nil, fmt.Errorf("batch run %s: bad finished_at: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
