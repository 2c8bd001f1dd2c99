// droidbench scores Android test runs against recorded benchmark cases.
//
// Usage:
//
//	droidbench score --run <dir> --case <id|name>
//	droidbench actions coverage --test <trace> --bench <trace>
//	droidbench match compare --test <trace> --bench <trace>
//	droidbench pages --test <dir> --bench <dir>
//	droidbench cases list
//	droidbench history
//	droidbench watch --run <dir> --case <id|name>
//	droidbench serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"droidbench/internal/config"
	"droidbench/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	table      string
	benchDir   string
}

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "droidbench",
	Short: "Score Android test runs against benchmark cases",
	Long: "droidbench measures how well an automated Android test run reproduces a\n" +
		"recorded benchmark case: transition coverage, exact step matching and\n" +
		"visual page coverage.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "config file (.yaml, .toml or .json)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&rootFlags.table, "table", "ascii", "table style: ascii or markdown")
	pf.StringVar(&rootFlags.benchDir, "benchmark-dir", "", "benchmark directory (overrides config)")

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.LogFormat = rootFlags.logFormat
	}
	if rootFlags.benchDir != "" {
		cfg.BenchmarkDir = config.ExpandHome(rootFlags.benchDir)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
