package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"droidbench/internal/display"
	"droidbench/internal/format"
	"droidbench/internal/report"
	"droidbench/internal/store"
)

var historyFlags struct {
	caseID int
	limit  int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously scored runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowFlags struct {
	jsonOut bool
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full report of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	f := historyCmd.Flags()
	f.IntVar(&historyFlags.caseID, "case", 0, "only runs of this case id")
	f.IntVar(&historyFlags.limit, "limit", 20, "max runs to list (0 = all)")

	historyShowCmd.Flags().BoolVar(&historyShowFlags.jsonOut, "json", false, "print the stored JSON report")
	historyCmd.AddCommand(historyShowCmd)
}

func score(v float64) string { return display.Score(v, format.Percent) }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runHistory(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	runs, err := st.ListRuns(historyFlags.caseID, historyFlags.limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	tbl := format.NewTable(tableMode())
	tbl.Header("Run", "When", "Case", "Actions", "Exact", "Pages", "Model", "Run dir")
	tbl.Columns(
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
		format.ColumnConfig{Number: 6, Align: format.AlignRight},
		format.ColumnConfig{Number: 8, MaxWidth: 40},
	)
	for _, r := range runs {
		name := fmt.Sprintf("%d", r.CaseID)
		if r.CaseName != "" {
			name += " " + format.Truncate(r.CaseName, 24)
		}
		tbl.Row(shortID(r.ID), humanize.Time(r.CreatedAt), name,
			score(r.ActionCoverage), score(r.ExactMatch), score(r.PageCoverage), r.Model, r.RunDir)
	}
	fmt.Fprintln(out, tbl.String())
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	run, err := findRun(st, args[0])
	if err != nil {
		return err
	}
	if historyShowFlags.jsonOut {
		fmt.Fprintln(cmd.OutOrStdout(), string(run.Report))
		return nil
	}
	var rep report.Report
	if err := json.Unmarshal(run.Report, &rep); err != nil {
		return fmt.Errorf("decode stored report: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Render(&rep, tableMode()))
	return nil
}

// findRun resolves a full id, or a unique prefix as printed by history.
func findRun(st store.Store, ref string) (*store.Run, error) {
	if r, err := st.GetRun(ref); err == nil {
		return r, nil
	}
	runs, err := st.ListRuns(0, 0)
	if err != nil {
		return nil, err
	}
	var hit *store.Run
	for _, r := range runs {
		if ref != "" && strings.HasPrefix(r.ID, ref) {
			if hit != nil {
				return nil, fmt.Errorf("run id prefix %q is ambiguous", ref)
			}
			hit = r
		}
	}
	if hit == nil {
		return nil, fmt.Errorf("run %q: %w", ref, store.ErrNotFound)
	}
	return hit, nil
}
