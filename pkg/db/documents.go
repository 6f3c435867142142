package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrAlreadyImported is returned when a document for the mutation id exists.
var ErrAlreadyImported = errors.New("mutation already imported")

// HasImported reports whether a target document exists for the mutation id.
func (s *Store) HasImported(company string, mutationID int64) (bool, error) {
	var count int
	err := s.conn.QueryRow(`
		SELECT COUNT(*) FROM imported_documents
		WHERE company = ? AND source_mutation_id = ?
	`, company, mutationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check imported index: %w", err)
	}
	return count > 0, nil
}

// RecordImported adds a created document to the imported index. The unique
// constraint on (company, source_mutation_id) turns a concurrent double
// create into ErrAlreadyImported.
func (s *Store) RecordImported(runID, company string, mutationID int64, docType, documentID string, amount decimal.Decimal) error {
	_, err := s.conn.Exec(`
		INSERT INTO imported_documents (run_id, company, source_mutation_id, doc_type, document_id, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, company, mutationID, docType, documentID, amount.String())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyImported
		}
		return fmt.Errorf("failed to record imported document: %w", err)
	}
	return nil
}

// CountsByDocType returns how many documents of each type a run created.
func (s *Store) CountsByDocType(runID string) (map[string]int, error) {
	rows, err := s.conn.Query(`
		SELECT doc_type, COUNT(*) FROM imported_documents
		WHERE run_id = ?
		GROUP BY doc_type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var docType string
		var count int
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan document count: %w", err)
		}
		counts[docType] = count
	}
	return counts, rows.Err()
}
