// Package store keeps a history of scored runs so results can be compared
// over time.
package store

import (
	"errors"
	"time"
)

// DefaultDBPath is the default relative path for the history DB.
// Open creates the parent directory.
const DefaultDBPath = ".droidbench/history.db"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// NotRun marks an engine score that was not computed for a run.
const NotRun = -1.0

// Run is one recorded scoring of a run directory against a benchmark case.
type Run struct {
	ID             string
	CaseID         int
	CaseName       string
	RunDir         string
	Model          string
	CreatedAt      time.Time
	ActionCoverage float64
	ExactMatch     float64
	PageCoverage   float64
	// Report is the full JSON report.
	Report []byte
}

// Store persists scored runs. Implementations are SQLite or in-memory.
type Store interface {
	// SaveRun stores run and returns its id, assigning one when empty.
	SaveRun(run *Run) (string, error)
	GetRun(id string) (*Run, error)
	// ListRuns returns runs newest first. caseID 0 lists every case;
	// limit <= 0 means no limit.
	ListRuns(caseID, limit int) ([]*Run, error)
	Close() error
}
