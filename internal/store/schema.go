package store

// schemaVersionV1 is the runs table.
const schemaVersionV1 = 1

// schemaVersionV2 adds the embedding model column to runs.
const schemaVersionV2 = 2

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	case_id         INTEGER NOT NULL,
	case_name       TEXT,
	run_dir         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	action_coverage REAL NOT NULL,
	exact_match     REAL NOT NULL,
	page_coverage   REAL NOT NULL,
	report          BLOB
);

CREATE INDEX IF NOT EXISTS idx_runs_case ON runs(case_id, created_at);
`

var migrationV1ToV2 = `
ALTER TABLE runs ADD COLUMN model TEXT;
`
