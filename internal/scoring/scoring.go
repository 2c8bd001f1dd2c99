// Package scoring scores one run directory against one benchmark case with
// the selected engines and records the outcome.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"droidbench/internal/benchmark"
	"droidbench/internal/config"
	"droidbench/internal/coverage"
	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/match"
	"droidbench/internal/pages"
	"droidbench/internal/report"
	"droidbench/internal/store"
	"droidbench/internal/trace"
)

// Engine names a scoring engine.
type Engine string

const (
	ActionCoverage Engine = "action_coverage"
	ExactMatch     Engine = "exact_match"
	PageCoverage   Engine = "page_coverage"
)

// AllEngines is the default selection.
var AllEngines = []Engine{ActionCoverage, ExactMatch, PageCoverage}

// ParseEngines maps names (with - or _) to engines. Empty input selects all.
func ParseEngines(names []string) ([]Engine, error) {
	if len(names) == 0 {
		return AllEngines, nil
	}
	var out []Engine
	for _, n := range names {
		e := Engine(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(n)), "-", "_"))
		switch e {
		case ActionCoverage, ExactMatch, PageCoverage:
			out = append(out, e)
		case "all":
			return AllEngines, nil
		default:
			return nil, fmt.Errorf("unknown engine %q (want action_coverage, exact_match or page_coverage)", n)
		}
	}
	return out, nil
}

// Run-directory layout written by the device-driving tool.
const (
	RunActionsFile    = "actions.json"
	RunScreenshotsDir = "screenshots"
	ResultsFile       = "results.json"
)

// Options configure Run. Case and RunDir are required.
type Options struct {
	RunDir  string
	Case    *benchmark.Case
	Engines []Engine

	// Embedder for page coverage; nil builds DefaultModel.
	Embedder  embed.Embedder
	Cache     *embed.Cache
	// Threshold for page coverage; nil selects config.DefaultThreshold.
	// Out-of-range values fall back to the default with a warning.
	Threshold *float64
	Workers   int
	BatchSize int

	// GraphPath, when set, receives the transition graph as DOT.
	GraphPath string
	// Store, when set, records the run.
	Store  store.Store
	Logger *slog.Logger
}

// Run computes the selected engines, writes results.json into the run
// directory and returns the report. Engines whose benchmark input is missing
// are skipped with a warning. Errors are limited to bad options,
// cancellation, and failure to write results.json.
func Run(ctx context.Context, opts Options) (*report.Report, error) {
	if opts.Case == nil {
		return nil, fmt.Errorf("scoring: no benchmark case")
	}
	if opts.RunDir == "" {
		return nil, fmt.Errorf("scoring: no run directory")
	}
	log := logging.OrDefault(opts.Logger, "scoring").With("run_dir", opts.RunDir, "case_id", opts.Case.ID)
	engines := opts.Engines
	if len(engines) == 0 {
		engines = AllEngines
	}
	want := make(map[Engine]bool, len(engines))
	for _, e := range engines {
		want[e] = true
	}

	c := opts.Case
	rep := report.New(opts.RunDir, c.ID, c.Name)
	rep.Inputs = report.Inputs{
		TestActions:      filepath.Join(opts.RunDir, RunActionsFile),
		TestScreenshots:  filepath.Join(opts.RunDir, RunScreenshotsDir),
		BenchActions:     c.ActionsPath(),
		BenchScreenshots: c.ScreenshotsDir(),
	}

	if want[ActionCoverage] || want[ExactMatch] {
		test := trace.LoadOrEmpty(rep.Inputs.TestActions, log)
		if len(c.Actions) == 0 {
			log.Warn("benchmark trace missing, skipping action engines")
			rep.Warn("action engines skipped: case %d has no reference trace", c.ID)
		} else {
			if want[ActionCoverage] {
				cov := coverage.Compute(test, c.Actions)
				rep.ActionCoverage = &cov
				log.Info("action coverage", "percentage", cov.Percentage, "covered", cov.CoveredCount, "total", cov.TotalCount)
				if opts.GraphPath != "" && report.WriteGraph(opts.GraphPath, cov, log) {
					rep.Graph = opts.GraphPath
				}
			}
			if want[ExactMatch] {
				m := match.Compute(test, c.Actions)
				sim := match.Measure(test, c.Actions)
				rep.ExactMatch = &m
				rep.Similarity = &sim
				log.Info("exact match", "percentage", m.MatchPercentage, "matches", m.ExactMatches, "steps", m.TotalSteps)
			}
		}
	}

	if want[PageCoverage] {
		if err := scorePages(ctx, opts, rep, log); err != nil {
			return rep, err
		}
	}

	if err := rep.WriteFile(filepath.Join(opts.RunDir, ResultsFile)); err != nil {
		return rep, err
	}
	log.Info("results written", "path", filepath.Join(opts.RunDir, ResultsFile))

	if opts.Store != nil {
		record(opts.Store, rep, log)
	}
	return rep, nil
}

func scorePages(ctx context.Context, opts Options, rep *report.Report, log *slog.Logger) error {
	c := opts.Case
	if len(c.Screenshots) == 0 {
		log.Warn("benchmark screenshots missing, skipping page coverage")
		rep.Warn("page coverage skipped: case %d has no reference screenshots", c.ID)
		return nil
	}
	e := opts.Embedder
	if e == nil {
		var err error
		if e, err = embed.New(embed.DefaultModel, embed.Options{Logger: log}); err != nil {
			return err
		}
	}
	threshold := config.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	testShots, err := trace.ListScreenshots(rep.Inputs.TestScreenshots, true)
	if err != nil {
		log.Warn("run screenshots unreadable", "error", err)
	}
	res, err := pages.Compute(ctx, testShots, c.Screenshots, e, threshold, pages.Options{
		Cache:     opts.Cache,
		Workers:   opts.Workers,
		BatchSize: opts.BatchSize,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	pr := pages.BuildReport(res)
	rep.PageCoverage = &pr
	return nil
}

func record(s store.Store, rep *report.Report, log *slog.Logger) {
	data, err := json.Marshal(rep)
	if err != nil {
		log.Warn("history not recorded", "error", err)
		return
	}
	scores := rep.Scores()
	run := &store.Run{
		CaseID:         rep.CaseID,
		CaseName:       rep.CaseName,
		RunDir:         rep.RunDir,
		CreatedAt:      rep.Timestamp,
		ActionCoverage: scores.ActionCoverage,
		ExactMatch:     scores.ExactMatch,
		PageCoverage:   scores.PageCoverage,
		Report:         data,
	}
	if rep.PageCoverage != nil {
		run.Model = rep.PageCoverage.Summary.Model
	}
	id, err := s.SaveRun(run)
	if err != nil {
		log.Warn("history not recorded", "error", err)
		return
	}
	rep.RunID = id
	// Rewrite results with the id so the file points back at the history.
	if err := rep.WriteFile(filepath.Join(rep.RunDir, ResultsFile)); err != nil {
		log.Warn("results not updated with run id", "error", err)
	}
}

// RunDirExists reports whether dir looks like a run directory.
func RunDirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
