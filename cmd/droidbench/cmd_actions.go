package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droidbench/internal/coverage"
	"droidbench/internal/format"
	"droidbench/internal/logging"
	"droidbench/internal/pages"
	"droidbench/internal/report"
	"droidbench/internal/trace"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Transition coverage and action trace tools",
}

var actionsCoverageFlags struct {
	test, bench, output, graph string
}

var actionsCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Transition coverage of a test trace against a benchmark trace",
	RunE:  runActionsCoverage,
}

var actionsGenerateFlags struct {
	log, screenshots, output, references string
	model                                string
	threshold                            float64
	maxTimeDiff                          float64
}

var actionsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build an action trace from an action log and its screenshots",
	Long: `Reads an action log (one "timestamp,action_type,key=value,..." line per step)
and writes an action trace. Steps without a next_page are labelled from the
screenshot closest in time, matched against reference screenshots.`,
	RunE: runActionsGenerate,
}

var actionsCompareFlags struct {
	a, b string
}

var actionsCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the transition sets of two traces",
	RunE:  runActionsCompare,
}

func init() {
	f := actionsCoverageCmd.Flags()
	f.StringVar(&actionsCoverageFlags.test, "test", "", "test action trace (required)")
	f.StringVar(&actionsCoverageFlags.bench, "bench", "", "benchmark action trace (required)")
	f.StringVarP(&actionsCoverageFlags.output, "output", "o", "", "write the JSON result here ('-' for stdout)")
	f.StringVar(&actionsCoverageFlags.graph, "graph", "", "write the transition graph as DOT to this path")
	requireFlags(actionsCoverageCmd, "test", "bench")

	f = actionsGenerateCmd.Flags()
	f.StringVar(&actionsGenerateFlags.log, "log", "", "action log file (required)")
	f.StringVar(&actionsGenerateFlags.screenshots, "screenshots", "", "screenshots taken during the run")
	f.StringVarP(&actionsGenerateFlags.output, "output", "o", "", "output trace path (required)")
	f.StringVar(&actionsGenerateFlags.references, "references", "", "reference screenshots named after their pages")
	f.StringVar(&actionsGenerateFlags.model, "model", "", "embedding model for page detection (default from config)")
	f.Float64Var(&actionsGenerateFlags.threshold, "threshold", 0, "page detection similarity threshold (default from config)")
	f.Float64Var(&actionsGenerateFlags.maxTimeDiff, "max-time-diff", 0, "max seconds between a log entry and its screenshot (default from config)")
	requireFlags(actionsGenerateCmd, "log", "output")

	f = actionsCompareCmd.Flags()
	f.StringVar(&actionsCompareFlags.a, "a", "", "first trace (required)")
	f.StringVar(&actionsCompareFlags.b, "b", "", "second trace (required)")
	requireFlags(actionsCompareCmd, "a", "b")

	actionsCmd.AddCommand(actionsCoverageCmd, actionsGenerateCmd, actionsCompareCmd)
}

func runActionsCoverage(cmd *cobra.Command, _ []string) error {
	log := logging.New("actions")
	test := trace.LoadOrEmpty(actionsCoverageFlags.test, log)
	bench := trace.LoadOrEmpty(actionsCoverageFlags.bench, log)
	res := coverage.Compute(test, bench)
	if actionsCoverageFlags.graph != "" {
		report.WriteGraph(actionsCoverageFlags.graph, res, log)
	}
	if actionsCoverageFlags.output != "" {
		return writeJSON(cmd.OutOrStdout(), actionsCoverageFlags.output, res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Action coverage: %s (%s transitions)\n",
		format.Percent(res.Percentage), format.Ratio(res.CoveredCount, res.TotalCount))
	if len(res.Covered) > 0 {
		fmt.Fprintln(out, "\nCovered:")
		fmt.Fprintln(out, report.TransitionTable(res.Covered, tableMode()))
	}
	if len(res.Uncovered) > 0 {
		fmt.Fprintln(out, "\nUncovered:")
		fmt.Fprintln(out, report.TransitionTable(res.Uncovered, tableMode()))
	}
	return nil
}

func runActionsGenerate(cmd *cobra.Command, _ []string) error {
	log := logging.New("actions")
	opts := trace.GenerateOptions{
		LogPath:        actionsGenerateFlags.log,
		ScreenshotsDir: actionsGenerateFlags.screenshots,
		OutputPath:     actionsGenerateFlags.output,
		MaxTimeDiff:    cfg.MaxTimeDiff(),
		Logger:         log,
	}
	if actionsGenerateFlags.maxTimeDiff > 0 {
		cfg.MaxTimeDiffSeconds = actionsGenerateFlags.maxTimeDiff
		opts.MaxTimeDiff = cfg.MaxTimeDiff()
	}
	if actionsGenerateFlags.references != "" {
		refs, err := trace.ListScreenshots(actionsGenerateFlags.references, false)
		if err != nil {
			return fmt.Errorf("reference screenshots: %w", err)
		}
		e, err := newEmbedder(actionsGenerateFlags.model, log)
		if err != nil {
			return err
		}
		threshold := thresholdFlag(cmd, actionsGenerateFlags.threshold, cfg.PageDetectThreshold)
		opts.Detector = pages.NewDetector(cmd.Context(), e, refs, *threshold, log)
	}

	seq, err := trace.Generate(cmd.Context(), opts)
	if err != nil {
		return err
	}
	detected := 0
	for _, a := range seq {
		if a.Params["detected_from_screenshot"] == "true" {
			detected++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d actions (%d pages detected from screenshots) to %s\n",
		len(seq), detected, actionsGenerateFlags.output)
	return nil
}

func runActionsCompare(cmd *cobra.Command, _ []string) error {
	log := logging.New("actions")
	a := trace.LoadOrEmpty(actionsCompareFlags.a, log)
	b := trace.LoadOrEmpty(actionsCompareFlags.b, log)
	c := coverage.Compare(a, b)

	tbl := format.NewTable(tableMode())
	tbl.Header("Metric", "Value")
	tbl.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	tbl.Row("Jaccard", format.Similarity(c.Jaccard))
	tbl.Row("Precision", format.Similarity(c.Precision))
	tbl.Row("Recall", format.Similarity(c.Recall))
	tbl.Row("F1", format.Similarity(c.F1))
	tbl.Row("Common transitions", c.Common)
	tbl.Row("Distinct in A", c.DistinctA)
	tbl.Row("Distinct in B", c.DistinctB)
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}
