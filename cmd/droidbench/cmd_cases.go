package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"droidbench/internal/display"
	"droidbench/internal/format"
	"droidbench/internal/logging"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage benchmark cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List benchmark cases",
	Args:  cobra.NoArgs,
	RunE:  runCasesList,
}

var casesShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show a case's reference trace and screenshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runCasesShow,
}

var casesImportFlags struct {
	actions, name, description, screenshots string
}

var casesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create a case from an action trace and its screenshots",
	RunE:  runCasesImport,
}

var casesCreateFlags struct {
	name, description, apk string
}

var casesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty case",
	RunE:  runCasesCreate,
}

var casesExportFlags struct {
	output string
}

var casesExportCmd = &cobra.Command{
	Use:   "export <id|name>",
	Short: "Write a case's reference trace to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCasesExport,
}

func init() {
	f := casesImportCmd.Flags()
	f.StringVar(&casesImportFlags.actions, "actions", "", "action trace to import (required)")
	f.StringVar(&casesImportFlags.name, "name", "", "case name (default: trace file name)")
	f.StringVar(&casesImportFlags.description, "description", "", "case description")
	f.StringVar(&casesImportFlags.screenshots, "screenshots", "", "reference screenshots directory")
	requireFlags(casesImportCmd, "actions")

	f = casesCreateCmd.Flags()
	f.StringVar(&casesCreateFlags.name, "name", "", "case name (required)")
	f.StringVar(&casesCreateFlags.description, "description", "", "case description")
	f.StringVar(&casesCreateFlags.apk, "apk", "", "path to the app under test")
	requireFlags(casesCreateCmd, "name")

	f = casesExportCmd.Flags()
	f.StringVarP(&casesExportFlags.output, "output", "o", "", "output trace path (required)")
	requireFlags(casesExportCmd, "output")

	casesCmd.AddCommand(casesListCmd, casesShowCmd, casesImportCmd, casesCreateCmd, casesExportCmd)
}

func runCasesList(cmd *cobra.Command, _ []string) error {
	l, err := loadBenchmark(logging.New("cases"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(l.Cases) == 0 {
		fmt.Fprintf(out, "No cases in %s\n", cfg.BenchmarkDir)
		return nil
	}
	tbl := format.NewTable(tableMode())
	tbl.Header("ID", "Name", "Actions", "Screenshots", "Description")
	tbl.Columns(
		format.ColumnConfig{Number: 1, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, MaxWidth: 50},
	)
	for _, c := range l.Cases {
		tbl.Row(c.ID, c.Name, len(c.Actions), len(c.Screenshots), c.Description)
	}
	fmt.Fprintln(out, tbl.String())
	return nil
}

func runCasesShow(cmd *cobra.Command, args []string) error {
	c, err := findCase(args[0], logging.New("cases"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Case %d: %s\n", c.ID, c.Name)
	if c.Description != "" {
		fmt.Fprintf(out, "  %s\n", c.Description)
	}
	if c.APKPath != "" {
		fmt.Fprintf(out, "APK: %s\n", c.APKPath)
	}
	fmt.Fprintf(out, "Dir: %s\n", c.Dir)
	if mix := actionMix(c.Actions.Types()); mix != "" {
		fmt.Fprintf(out, "Action types: %s\n", mix)
	}
	fmt.Fprintln(out)

	steps := format.NewTable(tableMode())
	steps.Header("#", "Action", "Next page")
	for i, a := range c.Actions {
		steps.Row(i+1, display.ActionType(a.Type), display.Page(a.Key().PageLabel()))
	}
	fmt.Fprintln(out, steps.String())
	if len(c.Screenshots) > 0 {
		fmt.Fprintf(out, "\nScreenshots (%d):\n", len(c.Screenshots))
		for _, s := range c.Screenshots {
			fmt.Fprintf(out, "  %s\n", filepath.Base(s))
		}
	}
	return nil
}

func runCasesImport(cmd *cobra.Command, _ []string) error {
	l, err := loadOrNewBenchmark(logging.New("cases"))
	if err != nil {
		return err
	}
	c, err := l.Import(casesImportFlags.actions, casesImportFlags.name, casesImportFlags.description, casesImportFlags.screenshots)
	if err != nil {
		return err
	}
	if err := l.Save(cfg.BenchmarkDir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported case %d (%s): %d actions, %d screenshots\n",
		c.ID, c.Name, len(c.Actions), len(c.Screenshots))
	return nil
}

func runCasesCreate(cmd *cobra.Command, _ []string) error {
	l, err := loadOrNewBenchmark(logging.New("cases"))
	if err != nil {
		return err
	}
	c := l.Create(casesCreateFlags.name, casesCreateFlags.description, casesCreateFlags.apk)
	if err := l.Save(cfg.BenchmarkDir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created case %d (%s) in %s\n", c.ID, c.Name, c.Dir)
	return nil
}

func runCasesExport(cmd *cobra.Command, args []string) error {
	l, err := loadBenchmark(logging.New("cases"))
	if err != nil {
		return err
	}
	c, err := l.Lookup(args[0])
	if err != nil {
		return err
	}
	if err := l.Export(c.ID, casesExportFlags.output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d actions of case %d to %s\n", len(c.Actions), c.ID, casesExportFlags.output)
	return nil
}

// actionMix summarises action types by readable name, in first-seen order,
// e.g. "Tap ×2, Text input ×1".
func actionMix(types []string) string {
	counts := map[string]int{}
	var order []string
	for _, t := range types {
		name := display.ActionType(t)
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, fmt.Sprintf("%s ×%d", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}
