// Package db provides SQLite persistence for migration runs, account
// mappings, party records, the imported-document index, and the append-only
// audit logs.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Migration runs
-- One row per run; the partial unique index enforces at most one active run
-- per target company.
CREATE TABLE IF NOT EXISTS migration_runs (
    id TEXT PRIMARY KEY,               -- UUID
    company TEXT NOT NULL,
    status TEXT NOT NULL,              -- running | paused | completed | failed
    checkpoint INTEGER NOT NULL DEFAULT 0,  -- highest fully processed mutation id
    created INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    warnings INTEGER NOT NULL DEFAULT 0,
    source_total TEXT NOT NULL DEFAULT '0',    -- decimal as text
    imported_total TEXT NOT NULL DEFAULT '0',  -- decimal as text
    attention INTEGER NOT NULL DEFAULT 0,      -- failure rate above threshold
    pause_requested INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_active_per_company
    ON migration_runs(company)
    WHERE status IN ('running', 'paused');

-- Account mappings
-- Maps source ledger ids to target accounts; unique per ledger id.
CREATE TABLE IF NOT EXISTS account_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company TEXT NOT NULL,
    source_ledger_id INTEGER NOT NULL,
    target_account TEXT NOT NULL,
    account_type TEXT NOT NULL DEFAULT '',
    origin TEXT NOT NULL,              -- manual | auto | placeholder
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(company, source_ledger_id)
);

-- Party records
-- Resolved counterparties keyed by source relation id; derived parties came
-- from description text and await manual review.
CREATE TABLE IF NOT EXISTS party_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company TEXT NOT NULL,
    source_relation_id TEXT NOT NULL,  -- empty for description-derived parties
    role TEXT NOT NULL,                -- customer | supplier
    party_ref TEXT NOT NULL,
    derived INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(company, role, source_relation_id, party_ref)
);

-- Imported-document index
-- Local index of created target documents keyed by source mutation id; backs
-- the duplicate detector together with the persistence collaborator.
CREATE TABLE IF NOT EXISTS imported_documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL,
    source_mutation_id INTEGER NOT NULL,
    doc_type TEXT NOT NULL,
    document_id TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '0',
    imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(company, source_mutation_id)
);

CREATE INDEX IF NOT EXISTS idx_imported_documents_type
    ON imported_documents(company, doc_type);

CREATE INDEX IF NOT EXISTS idx_imported_documents_run
    ON imported_documents(run_id);

-- Mapping gap events (append-only)
CREATE TABLE IF NOT EXISTS mapping_gap_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    company TEXT NOT NULL,
    source_ledger_id INTEGER NOT NULL,
    placeholder_account TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_gap_events_run
    ON mapping_gap_events(run_id);

-- Failure events (append-only)
CREATE TABLE IF NOT EXISTS failure_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    company TEXT NOT NULL,
    mutation_id INTEGER NOT NULL,
    stage TEXT NOT NULL,               -- fetch | classify | resolve | build | persist
    message TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '',  -- mutation JSON for later inspection
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_failure_events_run
    ON failure_events(run_id, mutation_id);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
