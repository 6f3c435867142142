package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a migration run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

var (
	// ErrRunActive is returned when a company already has a running or
	// paused migration.
	ErrRunActive = errors.New("an active migration run already exists for this company")

	// ErrRunNotFound is returned when a run id does not exist.
	ErrRunNotFound = errors.New("migration run not found")
)

// MigrationRun is one migration attempt for a target company.
type MigrationRun struct {
	ID             string
	Company        string
	Status         RunStatus
	Checkpoint     int64
	Created        int
	Skipped        int
	Failed         int
	Warnings       int
	SourceTotal    decimal.Decimal
	ImportedTotal  decimal.Decimal
	Attention      bool
	PauseRequested bool
	StartedAt      time.Time
	FinishedAt     sql.NullTime
}

// RunStats is the per-batch delta folded into a run's cumulative counters.
type RunStats struct {
	Created       int
	Skipped       int
	Failed        int
	Warnings      int
	SourceTotal   decimal.Decimal
	ImportedTotal decimal.Decimal
}

// Store provides access to migration state.
type Store struct {
	conn *Connection
}

// NewStore creates a Store backed by the given connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// CreateRun starts a new run for a company. The partial unique index on
// active runs makes a second concurrent start fail with ErrRunActive.
func (s *Store) CreateRun(company string, checkpoint int64) (*MigrationRun, error) {
	run := &MigrationRun{
		ID:            uuid.NewString(),
		Company:       company,
		Status:        RunStatusRunning,
		Checkpoint:    checkpoint,
		SourceTotal:   decimal.Zero,
		ImportedTotal: decimal.Zero,
		StartedAt:     time.Now(),
	}

	_, err := s.conn.Exec(`
		INSERT INTO migration_runs (id, company, status, checkpoint)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Company, string(run.Status), run.Checkpoint)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrRunActive
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(runID string) (*MigrationRun, error) {
	row := s.conn.QueryRow(`
		SELECT id, company, status, checkpoint, created, skipped, failed, warnings,
		       source_total, imported_total, attention, pause_requested,
		       started_at, finished_at
		FROM migration_runs WHERE id = ?
	`, runID)
	return scanRun(row)
}

// ActiveRun returns the running or paused run for a company, or nil.
func (s *Store) ActiveRun(company string) (*MigrationRun, error) {
	row := s.conn.QueryRow(`
		SELECT id, company, status, checkpoint, created, skipped, failed, warnings,
		       source_total, imported_total, attention, pause_requested,
		       started_at, finished_at
		FROM migration_runs
		WHERE company = ? AND status IN ('running', 'paused')
	`, company)
	run, err := scanRun(row)
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	return run, err
}

// LatestRun returns the most recently started run for a company, or nil.
func (s *Store) LatestRun(company string) (*MigrationRun, error) {
	row := s.conn.QueryRow(`
		SELECT id, company, status, checkpoint, created, skipped, failed, warnings,
		       source_total, imported_total, attention, pause_requested,
		       started_at, finished_at
		FROM migration_runs
		WHERE company = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, company)
	run, err := scanRun(row)
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	return run, err
}

// AdvanceCheckpoint commits one batch: the checkpoint moves forward (never
// backward) and the batch stats fold into the cumulative counters.
func (s *Store) AdvanceCheckpoint(runID string, checkpoint int64, stats RunStats) error {
	return s.conn.Transaction(func(tx *sql.Tx) error {
		var current int64
		var sourceTotal, importedTotal string
		err := tx.QueryRow(`
			SELECT checkpoint, source_total, imported_total
			FROM migration_runs WHERE id = ?
		`, runID).Scan(&current, &sourceTotal, &importedTotal)
		if err == sql.ErrNoRows {
			return ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read checkpoint: %w", err)
		}

		if checkpoint < current {
			checkpoint = current
		}
		newSource := parseDecimal(sourceTotal).Add(stats.SourceTotal)
		newImported := parseDecimal(importedTotal).Add(stats.ImportedTotal)

		_, err = tx.Exec(`
			UPDATE migration_runs
			SET checkpoint = ?,
			    created = created + ?,
			    skipped = skipped + ?,
			    failed = failed + ?,
			    warnings = warnings + ?,
			    source_total = ?,
			    imported_total = ?
			WHERE id = ?
		`, checkpoint, stats.Created, stats.Skipped, stats.Failed, stats.Warnings,
			newSource.String(), newImported.String(), runID)
		if err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}
		return nil
	})
}

// RewindCheckpoint moves the checkpoint backward. Only the operator does
// this, via an explicit flag on resume.
func (s *Store) RewindCheckpoint(runID string, checkpoint int64) error {
	res, err := s.conn.Exec(`UPDATE migration_runs SET checkpoint = ? WHERE id = ?`, checkpoint, runID)
	if err != nil {
		return fmt.Errorf("failed to rewind checkpoint: %w", err)
	}
	return requireRow(res)
}

// RequestPause asks a running migration to stop at the next batch boundary.
func (s *Store) RequestPause(runID string) error {
	res, err := s.conn.Exec(`
		UPDATE migration_runs SET pause_requested = 1
		WHERE id = ? AND status = 'running'
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to request pause: %w", err)
	}
	return requireRow(res)
}

// PauseRequested reports whether a pause has been requested for the run.
func (s *Store) PauseRequested(runID string) (bool, error) {
	var requested int
	err := s.conn.QueryRow(`SELECT pause_requested FROM migration_runs WHERE id = ?`, runID).Scan(&requested)
	if err == sql.ErrNoRows {
		return false, ErrRunNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pause request: %w", err)
	}
	return requested != 0, nil
}

// MarkPaused records that the run stopped at a batch boundary.
func (s *Store) MarkPaused(runID string) error {
	res, err := s.conn.Exec(`
		UPDATE migration_runs SET status = 'paused', pause_requested = 0
		WHERE id = ?
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to mark run paused: %w", err)
	}
	return requireRow(res)
}

// MarkResumed moves a paused or failed run back to running. Failed runs keep
// their last committed checkpoint, so resuming one continues where the
// run-level failure cut it off.
func (s *Store) MarkResumed(runID string) error {
	res, err := s.conn.Exec(`
		UPDATE migration_runs
		SET status = 'running', pause_requested = 0, finished_at = NULL
		WHERE id = ? AND status IN ('paused', 'failed')
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to mark run resumed: %w", err)
	}
	return requireRow(res)
}

// FinishRun finalizes a run as completed or failed.
func (s *Store) FinishRun(runID string, status RunStatus, attention bool) error {
	res, err := s.conn.Exec(`
		UPDATE migration_runs
		SET status = ?, attention = ?, pause_requested = 0, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), boolToInt(attention), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireRow(res)
}

func scanRun(row *sql.Row) (*MigrationRun, error) {
	var run MigrationRun
	var status string
	var sourceTotal, importedTotal string
	var attention, pauseRequested int

	err := row.Scan(
		&run.ID, &run.Company, &status, &run.Checkpoint,
		&run.Created, &run.Skipped, &run.Failed, &run.Warnings,
		&sourceTotal, &importedTotal, &attention, &pauseRequested,
		&run.StartedAt, &run.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = RunStatus(status)
	run.SourceTotal = parseDecimal(sourceTotal)
	run.ImportedTotal = parseDecimal(importedTotal)
	run.Attention = attention != 0
	run.PauseRequested = pauseRequested != 0
	return &run, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
