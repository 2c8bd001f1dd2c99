package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"droidbench/internal/coverage"
	"droidbench/internal/display"
	"droidbench/internal/format"
	"droidbench/internal/trace"
)

// Render produces the human-readable report.
func Render(r *Report, mode format.Mode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Benchmark Report ===\n")
	fmt.Fprintf(&b, "Run:   %s\n", r.RunDir)
	if r.CaseName != "" {
		fmt.Fprintf(&b, "Case:  %d (%s)\n", r.CaseID, r.CaseName)
	} else {
		fmt.Fprintf(&b, "Case:  %d\n", r.CaseID)
	}
	fmt.Fprintf(&b, "Time:  %s\n\n", r.Timestamp.Format("2006-01-02 15:04:05"))

	tbl := format.NewTable(mode)
	tbl.Header("Metric", "Score", "Detail")
	tbl.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	if c := r.ActionCoverage; c != nil {
		tbl.Row(display.Engine("action_coverage"), format.Percent(c.Percentage), format.Ratio(c.CoveredCount, c.TotalCount)+" transitions")
	}
	if m := r.ExactMatch; m != nil {
		tbl.Row(display.Engine("exact_match"), format.Percent(m.MatchPercentage),
			fmt.Sprintf("%s steps, longest run %d", format.Ratio(m.ExactMatches, m.TotalSteps), m.LongestBlock))
	}
	if s := r.Similarity; s != nil {
		tbl.Row("Sequence ratio", format.Percent(s.Ratio), "")
		tbl.Row("Jaccard", format.Percent(s.Jaccard), "")
		tbl.Row("Edit similarity", format.Percent(s.NormalizedEditDistance), fmt.Sprintf("distance %d", s.EditDistance))
	}
	if p := r.PageCoverage; p != nil {
		tbl.Row(display.Engine("page_coverage"), format.Percent(p.Summary.Percentage),
			fmt.Sprintf("%s pages, %s @ %.2f", format.Ratio(p.Summary.CoveredPages, p.Summary.TotalPages), p.Summary.Model, p.Summary.Threshold))
	}
	if tbl.Len() == 0 {
		b.WriteString("(no engines produced a result)\n")
	} else {
		b.WriteString(tbl.String())
		b.WriteString("\n")
	}

	if c := r.ActionCoverage; c != nil && len(c.Uncovered) > 0 {
		b.WriteString("\n--- Uncovered transitions ---\n")
		b.WriteString(TransitionTable(c.Uncovered, mode))
		b.WriteString("\n")
	}
	if p := r.PageCoverage; p != nil && len(p.Uncovered) > 0 {
		b.WriteString("\n--- Uncovered pages ---\n")
		for _, u := range p.Uncovered {
			fmt.Fprintf(&b, "  %s\n", filepath.Base(u))
		}
	}
	if p := r.PageCoverage; p != nil && len(p.Covered) > 0 {
		var sims []float64
		for _, cp := range p.Covered {
			for _, m := range cp.Matches {
				sims = append(sims, m.Similarity)
			}
		}
		b.WriteString("\n--- Similarity of matched screenshots ---\n")
		b.WriteString(Histogram(sims, 10, 40))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n--- Warnings ---\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	return b.String()
}

// TransitionTable lists transitions as action/page rows.
func TransitionTable(keys []trace.TransitionKey, mode format.Mode) string {
	tbl := format.NewTable(mode)
	tbl.Header("Action", "Type", "Next page")
	for _, k := range keys {
		tbl.Row(display.ActionType(k.Type), k.Type, display.Page(k.PageLabel()))
	}
	return tbl.String()
}

// Histogram buckets values in [0, 1] into bins rows of text bars. Values
// outside the range are clamped to the first or last bin.
func Histogram(values []float64, bins, width int) string {
	if len(values) == 0 || bins <= 0 {
		return "(no values)\n"
	}
	counts := make([]int, bins)
	for _, v := range values {
		i := int(v * float64(bins))
		i = max(0, min(bins-1, i))
		counts[i]++
	}
	peak := 0
	for _, c := range counts {
		peak = max(peak, c)
	}
	var b strings.Builder
	step := 1 / float64(bins)
	for i, c := range counts {
		lo := float64(i) * step
		fmt.Fprintf(&b, "%.2f-%.2f | %-*s %d\n", lo, lo+step, width, format.Bar(c, peak, width), c)
	}
	return b.String()
}

// WriteGraph writes the coverage graph as Graphviz DOT to path. Failures are
// logged and reported as false; they never abort scoring.
func WriteGraph(path string, c coverage.Result, log *slog.Logger) bool {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn("coverage graph skipped", "path", path, "error", err)
		return false
	}
	f, err := os.Create(path)
	if err != nil {
		log.Warn("coverage graph skipped", "path", path, "error", err)
		return false
	}
	if err := coverage.WriteGraph(f, c); err != nil {
		f.Close()
		log.Warn("coverage graph failed", "path", path, "error", err)
		return false
	}
	if err := f.Close(); err != nil {
		log.Warn("coverage graph failed", "path", path, "error", err)
		return false
	}
	return true
}
