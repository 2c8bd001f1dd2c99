package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/report"
	"droidbench/internal/scoring"
	"droidbench/internal/store"
)

var scoreFlags struct {
	runDir    string
	caseRef   string
	engines   []string
	threshold float64
	model     string
	graph     string
	noHistory bool
	noCache   bool
	jsonOut   bool
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a run directory against a benchmark case",
	Long: `Scores a run directory (actions.json plus screenshots/) against one benchmark
case with the selected engines, writes results.json into the run directory
and records the scores in the history database.`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreFlags.runDir, "run", "", "run directory (required)")
	f.StringVar(&scoreFlags.caseRef, "case", "", "benchmark case id or name (required)")
	f.StringSliceVar(&scoreFlags.engines, "engines", nil, "engines: action_coverage, exact_match, page_coverage (default all)")
	f.Float64Var(&scoreFlags.threshold, "threshold", 0, "page similarity threshold (default from config)")
	f.StringVar(&scoreFlags.model, "model", "", "embedding model (default from config)")
	f.StringVar(&scoreFlags.graph, "graph", "", "write the transition graph as DOT to this path")
	f.BoolVar(&scoreFlags.noHistory, "no-history", false, "do not record the run in the history database")
	f.BoolVar(&scoreFlags.noCache, "no-cache", false, "do not read or write the embedding cache")
	f.BoolVar(&scoreFlags.jsonOut, "json", false, "print the report as JSON")
	requireFlags(scoreCmd, "run", "case")
}

func runScore(cmd *cobra.Command, _ []string) error {
	log := logging.New("score")
	engines, err := scoring.ParseEngines(scoreFlags.engines)
	if err != nil {
		return err
	}
	if !scoring.RunDirExists(scoreFlags.runDir) {
		return fmt.Errorf("run directory %s does not exist", scoreFlags.runDir)
	}
	c, err := findCase(scoreFlags.caseRef, log)
	if err != nil {
		return err
	}

	opts := scoring.Options{
		RunDir:    scoreFlags.runDir,
		Case:      c,
		Engines:   engines,
		Threshold: thresholdFlag(cmd, scoreFlags.threshold, cfg.SimilarityThreshold),
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
		GraphPath: scoreFlags.graph,
		Logger:    log,
	}
	var cache *embed.Cache
	if needsPages(engines) {
		if opts.Embedder, err = newEmbedder(scoreFlags.model, log); err != nil {
			return err
		}
		cache = openCache(opts.Embedder, scoreFlags.noCache, log)
		opts.Cache = cache
	}
	if !scoreFlags.noHistory {
		var st store.Store
		if st, err = openStore(); err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}

	rep, err := scoring.Run(cmd.Context(), opts)
	saveCache(cache, log)
	if err != nil {
		return err
	}
	if scoreFlags.jsonOut {
		return writeJSON(cmd.OutOrStdout(), "", rep)
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Render(rep, tableMode()))
	return nil
}
