package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droidbench/internal/format"
	"droidbench/internal/logging"
	"droidbench/internal/match"
	"droidbench/internal/trace"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Exact-match scoring of action traces",
}

var matchCompareFlags struct {
	test, bench, output string
	showLCS             bool
}

var matchCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Exact-match a test trace against one benchmark trace",
	RunE:  runMatchCompare,
}

var matchManyFlags struct {
	test, target, output string
}

var matchManyCmd = &cobra.Command{
	Use:   "many",
	Short: "Rank every benchmark trace in a directory against a test trace",
	RunE:  runMatchMany,
}

func init() {
	f := matchCompareCmd.Flags()
	f.StringVar(&matchCompareFlags.test, "test", "", "test action trace (required)")
	f.StringVar(&matchCompareFlags.bench, "bench", "", "benchmark action trace (required)")
	f.StringVarP(&matchCompareFlags.output, "output", "o", "", "write the JSON report here ('-' for stdout)")
	f.BoolVar(&matchCompareFlags.showLCS, "lcs", false, "print the longest common subsequence")
	requireFlags(matchCompareCmd, "test", "bench")

	f = matchManyCmd.Flags()
	f.StringVar(&matchManyFlags.test, "test", "", "test action trace (required)")
	f.StringVar(&matchManyFlags.target, "target", "", "benchmark trace file or directory of *.json traces (required)")
	f.StringVarP(&matchManyFlags.output, "output", "o", "", "write the JSON ranking here ('-' for stdout)")
	requireFlags(matchManyCmd, "test", "target")

	matchCmd.AddCommand(matchCompareCmd, matchManyCmd)
}

func runMatchCompare(cmd *cobra.Command, _ []string) error {
	log := logging.New("match")
	test := trace.LoadOrEmpty(matchCompareFlags.test, log)
	bench := trace.LoadOrEmpty(matchCompareFlags.bench, log)
	rep := match.BuildReport(test, bench, matchCompareFlags.test, matchCompareFlags.bench)
	if matchCompareFlags.output != "" {
		return writeJSON(cmd.OutOrStdout(), matchCompareFlags.output, rep)
	}

	out := cmd.OutOrStdout()
	s := rep.Summary
	fmt.Fprintf(out, "Exact match: %s (%s steps, longest run %d)\n",
		format.Percent(s.MatchPercentage), format.Ratio(s.ExactMatches, s.TotalSteps), s.LongestBlock)
	fmt.Fprintf(out, "Lengths:     test %d, benchmark %d\n\n", rep.TestLength, rep.BenchLength)

	tbl := format.NewTable(tableMode())
	tbl.Header("Metric", "Value")
	tbl.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	tbl.Row("Sequence ratio", format.Percent(rep.Similarity.Ratio))
	tbl.Row("Jaccard", format.Percent(rep.Similarity.Jaccard))
	tbl.Row("Edit distance", rep.Similarity.EditDistance)
	tbl.Row("Edit similarity", format.Percent(rep.Similarity.NormalizedEditDistance))
	fmt.Fprintln(out, tbl.String())

	if len(s.MatchingBlocks) > 0 {
		blocks := format.NewTable(tableMode())
		blocks.Header("Test", "Benchmark", "Size")
		for _, b := range s.MatchingBlocks {
			blocks.Row(b.Test, b.Bench, b.Size)
		}
		fmt.Fprintln(out, "\nMatching blocks:")
		fmt.Fprintln(out, blocks.String())
	}
	if matchCompareFlags.showLCS && len(rep.LCS) > 0 {
		lcs := format.NewTable(tableMode())
		lcs.Header("Test", "Benchmark", "Action")
		for _, a := range rep.LCS {
			lcs.Row(a.TestIndex, a.BenchIndex, format.Truncate(a.Action.String(), 60))
		}
		fmt.Fprintln(out, "\nLongest common subsequence:")
		fmt.Fprintln(out, lcs.String())
	}
	return nil
}

func runMatchMany(cmd *cobra.Command, _ []string) error {
	log := logging.New("match")
	test := trace.LoadOrEmpty(matchManyFlags.test, log)
	rank, err := match.CompareMany(cmd.Context(), test, matchManyFlags.test, matchManyFlags.target, cfg.Workers, log)
	if err != nil {
		return err
	}
	if matchManyFlags.output != "" {
		return writeJSON(cmd.OutOrStdout(), matchManyFlags.output, rank)
	}
	tbl := format.NewTable(tableMode())
	tbl.Title(fmt.Sprintf("%s (%d steps) vs %d benchmarks", rank.TestPath, rank.TestLength, rank.Count))
	tbl.Header("#", "Benchmark", "Exact match", "Steps", "Jaccard", "Edit distance")
	tbl.Columns(
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
		format.ColumnConfig{Number: 6, Align: format.AlignRight},
	)
	for i, c := range rank.Results {
		tbl.Row(i+1, c.BenchFile, format.Percent(c.Result.MatchPercentage),
			format.Ratio(c.Result.ExactMatches, c.Result.TotalSteps),
			format.Percent(c.Similarity.Jaccard), c.Similarity.EditDistance)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}
