package db

import (
	"fmt"
	"time"
)

// MappingGapEvent records the creation of one placeholder account for an
// unmapped ledger id. Append-only.
type MappingGapEvent struct {
	ID                 int64
	RunID              string
	Company            string
	SourceLedgerID     int64
	PlaceholderAccount string
	Note               string
	CreatedAt          time.Time
}

// FailureEvent records one non-retryable per-mutation failure. Append-only.
type FailureEvent struct {
	ID         int64
	RunID      string
	Company    string
	MutationID int64
	Stage      string
	Message    string
	Payload    string
	CreatedAt  time.Time
}

// RecordMappingGap appends a mapping gap event.
func (s *Store) RecordMappingGap(e MappingGapEvent) error {
	_, err := s.conn.Exec(`
		INSERT INTO mapping_gap_events (run_id, company, source_ledger_id, placeholder_account, note)
		VALUES (?, ?, ?, ?, ?)
	`, e.RunID, e.Company, e.SourceLedgerID, e.PlaceholderAccount, e.Note)
	if err != nil {
		return fmt.Errorf("failed to record mapping gap: %w", err)
	}
	return nil
}

// ListMappingGaps returns all mapping gap events of a run.
func (s *Store) ListMappingGaps(runID string) ([]MappingGapEvent, error) {
	rows, err := s.conn.Query(`
		SELECT id, run_id, company, source_ledger_id, placeholder_account, note, created_at
		FROM mapping_gap_events
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping gaps: %w", err)
	}
	defer rows.Close()

	var events []MappingGapEvent
	for rows.Next() {
		var e MappingGapEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Company, &e.SourceLedgerID, &e.PlaceholderAccount, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping gap: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordFailure appends a failure event.
func (s *Store) RecordFailure(e FailureEvent) error {
	_, err := s.conn.Exec(`
		INSERT INTO failure_events (run_id, company, mutation_id, stage, message, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Company, e.MutationID, e.Stage, e.Message, e.Payload)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// ListFailures returns all failure events of a run.
func (s *Store) ListFailures(runID string) ([]FailureEvent, error) {
	rows, err := s.conn.Query(`
		SELECT id, run_id, company, mutation_id, stage, message, payload, created_at
		FROM failure_events
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var events []FailureEvent
	for rows.Next() {
		var e FailureEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Company, &e.MutationID, &e.Stage, &e.Message, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
