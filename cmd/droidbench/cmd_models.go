package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"droidbench/internal/embed"
	"droidbench/internal/format"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the built-in embedding models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl := format.NewTable(tableMode())
		tbl.Header("Model", "Configured")
		for _, m := range embed.Models() {
			tbl.Row(m, format.BoolMark(m == cfg.Model))
		}
		fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
		return nil
	},
}
