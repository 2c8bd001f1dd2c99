package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/scoring"
	"droidbench/internal/store"
	"droidbench/internal/watch"
)

var watchFlags struct {
	runDir    string
	caseRef   string
	engines   []string
	debounce  time.Duration
	noHistory bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-score a run directory whenever it changes",
	Long: `Scores the run directory once, then again every time actions.json or a
screenshot changes, until interrupted. Bursts of changes are debounced.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.runDir, "run", "", "run directory (required)")
	f.StringVar(&watchFlags.caseRef, "case", "", "benchmark case id or name (required)")
	f.StringSliceVar(&watchFlags.engines, "engines", nil, "engines to run (default all)")
	f.DurationVar(&watchFlags.debounce, "debounce", watch.DefaultDebounce, "quiet period before re-scoring")
	f.BoolVar(&watchFlags.noHistory, "no-history", true, "do not record each re-score in the history database")
	requireFlags(watchCmd, "run", "case")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	log := logging.New("watch")
	engines, err := scoring.ParseEngines(watchFlags.engines)
	if err != nil {
		return err
	}
	c, err := findCase(watchFlags.caseRef, log)
	if err != nil {
		return err
	}
	threshold := cfg.SimilarityThreshold
	opts := scoring.Options{
		RunDir:    watchFlags.runDir,
		Case:      c,
		Engines:   engines,
		Threshold: &threshold,
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
		Logger:    log,
	}
	var cache *embed.Cache
	if needsPages(engines) {
		if opts.Embedder, err = newEmbedder("", log); err != nil {
			return err
		}
		cache = openCache(opts.Embedder, false, log)
		opts.Cache = cache
		defer saveCache(cache, log)
	}
	if !watchFlags.noHistory {
		var st store.Store
		if st, err = openStore(); err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s against case %d (%s). Ctrl-C to stop.\n", opts.RunDir, c.ID, c.Name)
	return watch.Run(ctx, watch.Options{
		RunDir:   opts.RunDir,
		Debounce: watchFlags.debounce,
		Logger:   log,
	}, func(ctx context.Context) error {
		rep, err := scoring.Run(ctx, opts)
		if err != nil {
			return err
		}
		s := rep.Scores()
		fmt.Fprintf(out, "[%s] actions %s  exact %s  pages %s\n",
			time.Now().Format("15:04:05"), score(s.ActionCoverage), score(s.ExactMatch), score(s.PageCoverage))
		return nil
	})
}
