// Package mcp exposes the scoring engines as MCP tools so an agent driving a
// device can score its own runs.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"droidbench/internal/benchmark"
	"droidbench/internal/config"
	"droidbench/internal/coverage"
	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/match"
	"droidbench/internal/pages"
	"droidbench/internal/scoring"
	"droidbench/internal/store"
	"droidbench/internal/trace"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configure a Server. Embedder overrides the configured model.
type Options struct {
	Config   config.Config
	Store    store.Store
	Cache    *embed.Cache
	Embedder embed.Embedder
	Logger   *slog.Logger
}

// Server wraps the MCP SDK server and the scoring configuration.
type Server struct {
	MCPServer *sdkmcp.Server

	cfg   config.Config
	store store.Store
	cache *embed.Cache
	log   *slog.Logger

	mu       sync.Mutex
	embedder embed.Embedder
}

// NewServer creates an MCP server with the scoring tools registered.
// The embedder is built lazily on the first page coverage call.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		cache:    opts.Cache,
		embedder: opts.Embedder,
		log:      logging.OrDefault(opts.Logger, "mcp"),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "droidbench", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "action_coverage",
		Description: "Transition coverage of a test action trace against a benchmark trace: which distinct (action type, next page) pairs the test reproduced.",
	}, s.handleActionCoverage)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "exact_match",
		Description: "Ordered exact-match score of a test trace against a benchmark trace, with matching blocks and similarity metrics.",
	}, s.handleExactMatch)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "page_coverage",
		Description: "Visual page coverage: fraction of benchmark screenshots matched by some test screenshot at or above the similarity threshold.",
	}, s.handlePageCoverage)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_cases",
		Description: "List the benchmark cases in the benchmark directory.",
	}, s.handleListCases)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "score_run",
		Description: "Score a run directory (actions.json, screenshots/) against a benchmark case and write results.json into it.",
	}, s.handleScoreRun)
}

// --- Tool input/output types ---

type traceInput struct {
	TestPath      string `json:"test_path" jsonschema:"path to the test action trace (JSON array)"`
	BenchmarkPath string `json:"benchmark_path" jsonschema:"path to the benchmark action trace (JSON array)"`
}

type transition struct {
	Action string `json:"action"`
	Page   string `json:"page"`
	Count  int    `json:"count,omitempty"`
}

type actionCoverageOutput struct {
	CoveredCount int          `json:"covered_count"`
	TotalCount   int          `json:"total_count"`
	Percentage   float64      `json:"percentage"`
	Covered      []transition `json:"covered"`
	Uncovered    []transition `json:"uncovered"`
	Warnings     []string     `json:"warnings,omitempty"`
}

type exactMatchOutput struct {
	ExactMatches           int           `json:"exact_matches"`
	TotalSteps             int           `json:"total_steps"`
	MatchPercentage        float64       `json:"match_percentage"`
	LongestBlock           int           `json:"longest_block"`
	MatchingBlocks         []match.Block `json:"matching_blocks"`
	Jaccard                float64       `json:"jaccard_similarity"`
	EditDistance           int           `json:"edit_distance"`
	NormalizedEditDistance float64       `json:"normalized_edit_distance"`
	Warnings               []string      `json:"warnings,omitempty"`
}

type pageCoverageInput struct {
	TestDir      string   `json:"test_dir" jsonschema:"directory of test screenshots (searched recursively)"`
	BenchmarkDir string   `json:"benchmark_dir" jsonschema:"directory of benchmark screenshots (searched recursively)"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"similarity threshold in [-1,1] (default from config)"`
}

type pageMatch struct {
	TestImage  string  `json:"test_image"`
	BenchImage string  `json:"matched_page"`
	Similarity float64 `json:"similarity"`
}

type pageCoverageOutput struct {
	CoveredCount int         `json:"covered_count"`
	TotalCount   int         `json:"total_count"`
	Percentage   float64     `json:"percentage"`
	Threshold    float64     `json:"threshold"`
	Model        string      `json:"model"`
	Covered      []string    `json:"covered"`
	Uncovered    []string    `json:"uncovered"`
	Matches      []pageMatch `json:"matches"`
	Skipped      []string    `json:"skipped,omitempty"`
}

type listCasesInput struct {
	BenchmarkDir string `json:"benchmark_dir,omitempty" jsonschema:"benchmark directory (default from config)"`
}

type caseInfo struct {
	ID          int    `json:"case_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Actions     int    `json:"actions"`
	Screenshots int    `json:"screenshots"`
}

type listCasesOutput struct {
	BenchmarkDir string     `json:"benchmark_dir"`
	Cases        []caseInfo `json:"cases"`
}

type scoreRunInput struct {
	RunDir       string   `json:"run_dir" jsonschema:"run directory holding actions.json and screenshots/"`
	Case         string   `json:"case" jsonschema:"benchmark case id or name"`
	BenchmarkDir string   `json:"benchmark_dir,omitempty" jsonschema:"benchmark directory (default from config)"`
	Engines      []string `json:"engines,omitempty" jsonschema:"engines to run: action_coverage, exact_match, page_coverage (default all)"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"page similarity threshold (default from config)"`
}

type scoreRunOutput struct {
	RunID          string   `json:"run_id,omitempty"`
	CaseID         int      `json:"case_id"`
	ResultsPath    string   `json:"results_path"`
	ActionCoverage float64  `json:"action_coverage"`
	ExactMatch     float64  `json:"exact_match"`
	PageCoverage   float64  `json:"page_coverage"`
	Warnings       []string `json:"warnings,omitempty"`
}

// --- Tool handlers ---

// loadPair reads both traces. A missing or malformed trace is logged and
// scored as empty, with a warning returned to the caller.
func (s *Server) loadPair(in traceInput) (test, bench trace.Sequence, warnings []string, err error) {
	if in.TestPath == "" || in.BenchmarkPath == "" {
		return nil, nil, nil, fmt.Errorf("test_path and benchmark_path are required")
	}
	load := func(kind, path string) trace.Sequence {
		seq, err := trace.LoadFile(path)
		if err != nil {
			s.log.Warn("trace unreadable, scoring as empty", "kind", kind, "path", path, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s trace unreadable, scored as empty: %v", kind, err))
			return trace.Sequence{}
		}
		return seq
	}
	test = load("test", in.TestPath)
	bench = load("benchmark", in.BenchmarkPath)
	return test, bench, warnings, nil
}

func (s *Server) handleActionCoverage(_ context.Context, _ *sdkmcp.CallToolRequest, input traceInput) (*sdkmcp.CallToolResult, actionCoverageOutput, error) {
	test, bench, warnings, err := s.loadPair(input)
	if err != nil {
		return nil, actionCoverageOutput{}, err
	}
	res := coverage.Compute(test, bench)
	counts := make(map[trace.TransitionKey]int, len(res.Counts))
	for _, c := range res.Counts {
		counts[c.Transition] = c.Count
	}
	conv := func(keys []trace.TransitionKey) []transition {
		out := make([]transition, 0, len(keys))
		for _, k := range keys {
			out = append(out, transition{Action: k.Type, Page: k.PageLabel(), Count: counts[k]})
		}
		return out
	}
	s.log.Info("action_coverage", "test", input.TestPath, "percentage", res.Percentage)
	return nil, actionCoverageOutput{
		CoveredCount: res.CoveredCount,
		TotalCount:   res.TotalCount,
		Percentage:   res.Percentage,
		Covered:      conv(res.Covered),
		Uncovered:    conv(res.Uncovered),
		Warnings:     warnings,
	}, nil
}

func (s *Server) handleExactMatch(_ context.Context, _ *sdkmcp.CallToolRequest, input traceInput) (*sdkmcp.CallToolResult, exactMatchOutput, error) {
	test, bench, warnings, err := s.loadPair(input)
	if err != nil {
		return nil, exactMatchOutput{}, err
	}
	res := match.Compute(test, bench)
	sim := match.Measure(test, bench)
	s.log.Info("exact_match", "test", input.TestPath, "percentage", res.MatchPercentage)
	return nil, exactMatchOutput{
		ExactMatches:           res.ExactMatches,
		TotalSteps:             res.TotalSteps,
		MatchPercentage:        res.MatchPercentage,
		LongestBlock:           res.LongestBlock,
		MatchingBlocks:         res.MatchingBlocks,
		Jaccard:                sim.Jaccard,
		EditDistance:           sim.EditDistance,
		NormalizedEditDistance: sim.NormalizedEditDistance,
		Warnings:               warnings,
	}, nil
}

func (s *Server) handlePageCoverage(ctx context.Context, _ *sdkmcp.CallToolRequest, input pageCoverageInput) (*sdkmcp.CallToolResult, pageCoverageOutput, error) {
	if input.TestDir == "" || input.BenchmarkDir == "" {
		return nil, pageCoverageOutput{}, fmt.Errorf("test_dir and benchmark_dir are required")
	}
	e, err := s.getEmbedder()
	if err != nil {
		return nil, pageCoverageOutput{}, err
	}
	res, err := pages.ComputeDirs(ctx, input.TestDir, input.BenchmarkDir, e, *s.threshold(input.Threshold), s.pageOptions())
	if err != nil {
		return nil, pageCoverageOutput{}, fmt.Errorf("page_coverage: %w", err)
	}
	out := pageCoverageOutput{
		CoveredCount: res.CoveredCount,
		TotalCount:   res.TotalCount,
		Percentage:   res.Percentage,
		Threshold:    res.Threshold,
		Model:        res.Model,
		Covered:      res.Covered,
		Uncovered:    res.Uncovered,
		Matches:      make([]pageMatch, 0, len(res.Matches)),
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, pageMatch{TestImage: m.TestImage, BenchImage: m.BenchImage, Similarity: m.Similarity})
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, sk.Path)
	}
	return nil, out, nil
}

func (s *Server) handleListCases(_ context.Context, _ *sdkmcp.CallToolRequest, input listCasesInput) (*sdkmcp.CallToolResult, listCasesOutput, error) {
	dir := s.benchmarkDir(input.BenchmarkDir)
	cases, err := benchmark.NewLoader(dir, s.log).Load()
	if err != nil {
		return nil, listCasesOutput{}, fmt.Errorf("list_cases: %w", err)
	}
	out := listCasesOutput{BenchmarkDir: dir, Cases: make([]caseInfo, 0, len(cases))}
	for _, c := range cases {
		out.Cases = append(out.Cases, caseInfo{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Actions:     len(c.Actions),
			Screenshots: len(c.Screenshots),
		})
	}
	return nil, out, nil
}

func (s *Server) handleScoreRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input scoreRunInput) (*sdkmcp.CallToolResult, scoreRunOutput, error) {
	if input.RunDir == "" || input.Case == "" {
		return nil, scoreRunOutput{}, fmt.Errorf("run_dir and case are required")
	}
	engines, err := scoring.ParseEngines(input.Engines)
	if err != nil {
		return nil, scoreRunOutput{}, err
	}
	loader := benchmark.NewLoader(s.benchmarkDir(input.BenchmarkDir), s.log)
	if _, err := loader.Load(); err != nil {
		return nil, scoreRunOutput{}, fmt.Errorf("load benchmark: %w", err)
	}
	c, err := loader.Lookup(input.Case)
	if err != nil {
		return nil, scoreRunOutput{}, err
	}

	opts := scoring.Options{
		RunDir:    input.RunDir,
		Case:      c,
		Engines:   engines,
		Threshold: s.threshold(input.Threshold),
		Cache:     s.cache,
		Workers:   s.cfg.Workers,
		BatchSize: s.cfg.BatchSize,
		Store:     s.store,
		Logger:    s.log,
	}
	for _, e := range engines {
		if e == scoring.PageCoverage {
			if opts.Embedder, err = s.getEmbedder(); err != nil {
				return nil, scoreRunOutput{}, err
			}
		}
	}
	rep, err := scoring.Run(ctx, opts)
	if err != nil {
		return nil, scoreRunOutput{}, fmt.Errorf("score_run: %w", err)
	}
	sc := rep.Scores()
	return nil, scoreRunOutput{
		RunID:          rep.RunID,
		CaseID:         c.ID,
		ResultsPath:    filepath.Join(input.RunDir, scoring.ResultsFile),
		ActionCoverage: sc.ActionCoverage,
		ExactMatch:     sc.ExactMatch,
		PageCoverage:   sc.PageCoverage,
		Warnings:       rep.Warnings,
	}, nil
}

// --- helpers ---

func (s *Server) getEmbedder() (embed.Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder != nil {
		return s.embedder, nil
	}
	e, err := embed.New(s.cfg.Model, embed.Options{
		RemoteURL:     s.cfg.Remote.URL,
		RemoteTimeout: s.cfg.Remote.Timeout(),
		Logger:        s.log,
	})
	if err != nil {
		return nil, err
	}
	s.embedder = e
	return e, nil
}

func (s *Server) threshold(t *float64) *float64 {
	if t != nil {
		return t
	}
	th := s.cfg.SimilarityThreshold
	return &th
}

func (s *Server) benchmarkDir(dir string) string {
	if dir != "" {
		return dir
	}
	return s.cfg.BenchmarkDir
}

func (s *Server) pageOptions() pages.Options {
	return pages.Options{Cache: s.cache, Workers: s.cfg.Workers, BatchSize: s.cfg.BatchSize, Logger: s.log}
}
