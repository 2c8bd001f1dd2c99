package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"droidbench/internal/display"
	"droidbench/internal/format"
	"droidbench/internal/logging"
	"droidbench/internal/pages"
	"droidbench/internal/report"
	"droidbench/internal/trace"
)

var pagesFlags struct {
	test, bench, output string
	model               string
	threshold           float64
	noCache             bool
	histogram           bool
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Visual page coverage of test screenshots against benchmark screenshots",
	Long: `Embeds every screenshot under both directories, assigns each test screenshot
to its most similar benchmark screenshot and reports the fraction of benchmark
screenshots matched at or above the similarity threshold.`,
	RunE: runPages,
}

var pagesDetectFlags struct {
	references string
	model      string
	threshold  float64
}

var pagesDetectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Label screenshots with the page they show",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPagesDetect,
}

func init() {
	f := pagesCmd.Flags()
	f.StringVar(&pagesFlags.test, "test", "", "test screenshots directory (required)")
	f.StringVar(&pagesFlags.bench, "bench", "", "benchmark screenshots directory (required)")
	f.StringVarP(&pagesFlags.output, "output", "o", "", "write the JSON report here ('-' for stdout)")
	f.StringVar(&pagesFlags.model, "model", "", "embedding model (default from config)")
	f.Float64Var(&pagesFlags.threshold, "threshold", 0, "similarity threshold (default from config)")
	f.BoolVar(&pagesFlags.noCache, "no-cache", false, "do not read or write the embedding cache")
	f.BoolVar(&pagesFlags.histogram, "histogram", false, "print a histogram of match similarities")
	requireFlags(pagesCmd, "test", "bench")

	f = pagesDetectCmd.Flags()
	f.StringVar(&pagesDetectFlags.references, "references", "", "reference screenshots named after their pages")
	f.StringVar(&pagesDetectFlags.model, "model", "", "embedding model (default from config)")
	f.Float64Var(&pagesDetectFlags.threshold, "threshold", 0, "detection threshold (default from config)")

	pagesCmd.AddCommand(pagesDetectCmd)
}

func runPages(cmd *cobra.Command, _ []string) error {
	log := logging.New("pages")
	e, err := newEmbedder(pagesFlags.model, log)
	if err != nil {
		return err
	}
	cache := openCache(e, pagesFlags.noCache, log)
	threshold := thresholdFlag(cmd, pagesFlags.threshold, cfg.SimilarityThreshold)
	res, err := pages.ComputeDirs(cmd.Context(), pagesFlags.test, pagesFlags.bench, e, *threshold, pages.Options{
		Cache:     cache,
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
		Logger:    log,
	})
	saveCache(cache, log)
	if err != nil {
		return err
	}
	rep := pages.BuildReport(res)
	if pagesFlags.output != "" {
		return writeJSON(cmd.OutOrStdout(), pagesFlags.output, rep)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Page coverage: %s (%s pages, model %s, threshold %.2f)\n",
		format.Percent(res.Percentage), format.Ratio(res.CoveredCount, res.TotalCount), res.Model, res.Threshold)
	if cache != nil {
		if info, err := os.Stat(cfg.CacheFile); err == nil {
			fmt.Fprintf(out, "Embedding cache: %s entries, %s\n", humanize.Comma(int64(cache.Len())), humanize.Bytes(uint64(info.Size())))
		}
	}

	tbl := format.NewTable(tableMode())
	tbl.Header("Benchmark page", "Matches", "Avg similarity")
	tbl.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
	)
	for _, cp := range rep.Covered {
		tbl.Row(filepath.Base(cp.BenchPage), cp.MatchCount, format.Similarity(cp.AvgSimilarity))
	}
	for _, u := range rep.Uncovered {
		tbl.Row(filepath.Base(u), 0, "-")
	}
	if tbl.Len() > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, tbl.String())
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d images:\n", len(rep.Skipped))
		for _, s := range rep.Skipped {
			fmt.Fprintf(out, "  %s: %s\n", s.Path, s.Error)
		}
	}
	if pagesFlags.histogram {
		fmt.Fprintln(out, "\nMatch similarity:")
		fmt.Fprint(out, report.Histogram(res.Similarities(), 10, 40))
	}
	return nil
}

func runPagesDetect(cmd *cobra.Command, args []string) error {
	log := logging.New("pages")
	var refs []string
	if pagesDetectFlags.references != "" {
		var err error
		if refs, err = trace.ListScreenshots(pagesDetectFlags.references, false); err != nil {
			return fmt.Errorf("reference screenshots: %w", err)
		}
	}
	e, err := newEmbedder(pagesDetectFlags.model, log)
	if err != nil {
		return err
	}
	threshold := thresholdFlag(cmd, pagesDetectFlags.threshold, cfg.PageDetectThreshold)
	d := pages.NewDetector(cmd.Context(), e, refs, *threshold, log)

	tbl := format.NewTable(tableMode())
	tbl.Header("Screenshot", "Page")
	for _, img := range args {
		page, ok := d.DetectPage(cmd.Context(), img)
		if !ok {
			page = "(unreadable)"
		}
		tbl.Row(filepath.Base(img), display.Page(page))
	}
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}
