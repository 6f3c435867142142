package db

import (
	"database/sql"
	"fmt"
	"time"
)

// MappingOrigin records how an account mapping came to exist.
type MappingOrigin string

const (
	OriginManual      MappingOrigin = "manual"
	OriginAuto        MappingOrigin = "auto"
	OriginPlaceholder MappingOrigin = "placeholder"
)

// AccountMapping links one source ledger id to a target account.
type AccountMapping struct {
	ID             int64
	Company        string
	SourceLedgerID int64
	TargetAccount  string
	AccountType    string
	Origin         MappingOrigin
	CreatedAt      time.Time
}

// GetMapping returns the mapping for a ledger id, or nil when none exists.
func (s *Store) GetMapping(company string, ledgerID int64) (*AccountMapping, error) {
	row := s.conn.QueryRow(`
		SELECT id, company, source_ledger_id, target_account, account_type, origin, created_at
		FROM account_mappings
		WHERE company = ? AND source_ledger_id = ?
	`, company, ledgerID)

	var m AccountMapping
	var origin string
	err := row.Scan(&m.ID, &m.Company, &m.SourceLedgerID, &m.TargetAccount, &m.AccountType, &origin, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	m.Origin = MappingOrigin(origin)
	return &m, nil
}

// PutMapping persists a mapping. An existing mapping for the same ledger id
// wins: mappings are unique per source ledger id and never silently replaced.
func (s *Store) PutMapping(m AccountMapping) error {
	_, err := s.conn.Exec(`
		INSERT INTO account_mappings (company, source_ledger_id, target_account, account_type, origin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company, source_ledger_id) DO NOTHING
	`, m.Company, m.SourceLedgerID, m.TargetAccount, m.AccountType, string(m.Origin))
	if err != nil {
		return fmt.Errorf("failed to put mapping: %w", err)
	}
	return nil
}

// ListMappings returns all mappings for a company, optionally filtered by
// origin ("" for all).
func (s *Store) ListMappings(company string, origin MappingOrigin) ([]AccountMapping, error) {
	query := `
		SELECT id, company, source_ledger_id, target_account, account_type, origin, created_at
		FROM account_mappings
		WHERE company = ?
	`
	args := []interface{}{company}
	if origin != "" {
		query += ` AND origin = ?`
		args = append(args, string(origin))
	}
	query += ` ORDER BY source_ledger_id`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []AccountMapping
	for rows.Next() {
		var m AccountMapping
		var o string
		if err := rows.Scan(&m.ID, &m.Company, &m.SourceLedgerID, &m.TargetAccount, &m.AccountType, &o, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.Origin = MappingOrigin(o)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
