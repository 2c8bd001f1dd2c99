// Package report assembles engine results for one scored run into a single
// serialisable document and renders it for humans.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"droidbench/internal/coverage"
	"droidbench/internal/match"
	"droidbench/internal/pages"
)

// Inputs records the files a report was computed from.
type Inputs struct {
	TestActions      string `json:"test_actions,omitempty"`
	TestScreenshots  string `json:"test_screenshots,omitempty"`
	BenchActions     string `json:"benchmark_actions,omitempty"`
	BenchScreenshots string `json:"benchmark_screenshots,omitempty"`
}

// Report is the outcome of scoring one run against one benchmark case.
// Engines that were not run, or had no benchmark input, are nil.
type Report struct {
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RunDir    string    `json:"run_dir"`
	CaseID    int       `json:"case_id"`
	CaseName  string    `json:"case_name,omitempty"`
	Inputs    Inputs    `json:"inputs"`

	ActionCoverage *coverage.Result  `json:"action_coverage,omitempty"`
	ExactMatch     *match.Result     `json:"exact_match,omitempty"`
	Similarity     *match.Similarity `json:"similarity_metrics,omitempty"`
	PageCoverage   *pages.Report     `json:"page_coverage,omitempty"`

	// Warnings lists engines that were skipped and why.
	Warnings []string `json:"warnings,omitempty"`
	Graph    string   `json:"graph,omitempty"`
}

// New starts a report for runDir stamped with the current time.
func New(runDir string, caseID int, caseName string) *Report {
	return &Report{Timestamp: time.Now(), RunDir: runDir, CaseID: caseID, CaseName: caseName}
}

// Warn records a skipped engine or other non-fatal problem.
func (r *Report) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Scores are the headline percentages of a report; -1 marks an engine that
// did not run.
type Scores struct {
	ActionCoverage float64 `json:"action_coverage"`
	ExactMatch     float64 `json:"exact_match"`
	PageCoverage   float64 `json:"page_coverage"`
}

// Scores extracts the headline percentages.
func (r *Report) Scores() Scores {
	s := Scores{ActionCoverage: -1, ExactMatch: -1, PageCoverage: -1}
	if r.ActionCoverage != nil {
		s.ActionCoverage = r.ActionCoverage.Percentage
	}
	if r.ExactMatch != nil {
		s.ExactMatch = r.ExactMatch.MatchPercentage
	}
	if r.PageCoverage != nil {
		s.PageCoverage = r.PageCoverage.Summary.Percentage
	}
	return s
}

// WriteFile saves the report as indented JSON, creating parent directories.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadFile loads a report written by WriteFile.
func ReadFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
