package db

import (
	"database/sql"
	"fmt"
	"time"
)

// PartyRecord is a resolved counterparty in the target system.
type PartyRecord struct {
	ID               int64
	Company          string
	SourceRelationID string
	Role             string // customer | supplier
	PartyRef         string
	Derived          bool
	CreatedAt        time.Time
}

// FindParty looks up a party by source relation id and role. For derived
// parties (empty relation id) the lookup matches on the party name instead.
func (s *Store) FindParty(company, role, relationID, partyRef string) (*PartyRecord, error) {
	var row *sql.Row
	if relationID != "" {
		row = s.conn.QueryRow(`
			SELECT id, company, source_relation_id, role, party_ref, derived, created_at
			FROM party_records
			WHERE company = ? AND role = ? AND source_relation_id = ?
		`, company, role, relationID)
	} else {
		row = s.conn.QueryRow(`
			SELECT id, company, source_relation_id, role, party_ref, derived, created_at
			FROM party_records
			WHERE company = ? AND role = ? AND party_ref = ?
		`, company, role, partyRef)
	}

	var p PartyRecord
	var derived int
	err := row.Scan(&p.ID, &p.Company, &p.SourceRelationID, &p.Role, &p.PartyRef, &derived, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find party: %w", err)
	}
	p.Derived = derived != 0
	return &p, nil
}

// PutParty persists a party record, keeping the first write on conflict.
func (s *Store) PutParty(p PartyRecord) error {
	_, err := s.conn.Exec(`
		INSERT INTO party_records (company, source_relation_id, role, party_ref, derived)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company, role, source_relation_id, party_ref) DO NOTHING
	`, p.Company, p.SourceRelationID, p.Role, p.PartyRef, boolToInt(p.Derived))
	if err != nil {
		return fmt.Errorf("failed to put party: %w", err)
	}
	return nil
}

// ListDerivedParties returns parties whose names were derived from
// description text and await manual review.
func (s *Store) ListDerivedParties(company string) ([]PartyRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, company, source_relation_id, role, party_ref, derived, created_at
		FROM party_records
		WHERE company = ? AND derived = 1
		ORDER BY created_at
	`, company)
	if err != nil {
		return nil, fmt.Errorf("failed to list derived parties: %w", err)
	}
	defer rows.Close()

	var parties []PartyRecord
	for rows.Next() {
		var p PartyRecord
		var derived int
		if err := rows.Scan(&p.ID, &p.Company, &p.SourceRelationID, &p.Role, &p.PartyRef, &derived, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.Derived = derived != 0
		parties = append(parties, p)
	}
	return parties, rows.Err()
}
