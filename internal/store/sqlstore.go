package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV2

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .droidbench) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Report blobs are zstd frames; nil options cannot fail.
	s.enc, _ = zstd.NewWriter(nil)
	s.dec, _ = zstd.NewReader(nil)
	return s, nil
}

// Close releases the database.
func (s *SqlStore) Close() error {
	if s.enc != nil {
		_ = s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return s.db.Close()
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		v = schemaVersionV1
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	switch v {
	case currentSchemaVersion:
		return nil
	case schemaVersionV1:
		return s.migrateV1ToV2()
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

func (s *SqlStore) freshInstall() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin install: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, stmt := range []string{schemaV1, migrationV1ToV2} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// migrateV1ToV2 adds the model column inside a transaction.
func (s *SqlStore) migrateV1ToV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.Exec(migrationV1ToV2); err != nil {
		return fmt.Errorf("migrate v1 to v2: %w", err)
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = ?", schemaVersionV2); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// SaveRun inserts or replaces run.
func (s *SqlStore) SaveRun(run *Run) (string, error) {
	if run == nil {
		return "", errors.New("run is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	var blob []byte
	if len(run.Report) > 0 {
		blob = s.enc.EncodeAll(run.Report, nil)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs
		(id, case_id, case_name, run_dir, model, created_at, action_coverage, exact_match, page_coverage, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CaseID, run.CaseName, run.RunDir, run.Model,
		run.CreatedAt.UTC().Format(timeLayout),
		run.ActionCoverage, run.ExactMatch, run.PageCoverage, blob)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, case_id, case_name, run_dir, model, created_at, action_coverage, exact_match, page_coverage, report`

type scanner interface {
	Scan(dest ...any) error
}

func (s *SqlStore) scanRun(row scanner) (*Run, error) {
	var (
		r         Run
		caseName  sql.NullString
		model     sql.NullString
		createdAt string
		blob      []byte
	)
	if err := row.Scan(&r.ID, &r.CaseID, &caseName, &r.RunDir, &model, &createdAt,
		&r.ActionCoverage, &r.ExactMatch, &r.PageCoverage, &blob); err != nil {
		return nil, err
	}
	r.CaseName = nullStr(caseName)
	r.Model = nullStr(model)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	r.CreatedAt = t
	if len(blob) > 0 {
		if r.Report, err = s.dec.DecodeAll(blob, nil); err != nil {
			return nil, fmt.Errorf("decompress report: %w", err)
		}
	}
	return &r, nil
}

// GetRun returns the run with id, or ErrNotFound.
func (s *SqlStore) GetRun(id string) (*Run, error) {
	r, err := s.scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SqlStore) ListRuns(caseID, limit int) ([]*Run, error) {
	q := "SELECT " + runColumns + " FROM runs"
	var args []any
	if caseID != 0 {
		q += " WHERE case_id = ?"
		args = append(args, caseID)
	}
	q += " ORDER BY created_at DESC, id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
