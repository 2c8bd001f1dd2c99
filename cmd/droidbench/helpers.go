package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"droidbench/internal/benchmark"
	"droidbench/internal/embed"
	"droidbench/internal/format"
	"droidbench/internal/logging"
	"droidbench/internal/scoring"
	"droidbench/internal/store"
)

func tableMode() format.Mode {
	m, err := format.ParseMode(rootFlags.table)
	if err != nil {
		logging.New("cli").Warn("unknown table style, using ascii", "table", rootFlags.table)
	}
	return m
}

// writeJSON writes v indented to path, or to w when path is empty or "-".
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadBenchmark(log *slog.Logger) (*benchmark.Loader, error) {
	l := benchmark.NewLoader(cfg.BenchmarkDir, log)
	if _, err := l.Load(); err != nil {
		return nil, fmt.Errorf("load benchmark %s: %w", cfg.BenchmarkDir, err)
	}
	return l, nil
}

// loadOrNewBenchmark is loadBenchmark for commands that may create the
// benchmark directory.
func loadOrNewBenchmark(log *slog.Logger) (*benchmark.Loader, error) {
	l := benchmark.NewLoader(cfg.BenchmarkDir, log)
	if _, err := l.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load benchmark %s: %w", cfg.BenchmarkDir, err)
	}
	return l, nil
}

func findCase(ref string, log *slog.Logger) (*benchmark.Case, error) {
	l, err := loadBenchmark(log)
	if err != nil {
		return nil, err
	}
	return l.Lookup(ref)
}

// newEmbedder builds the named model, falling back to the configured one.
func newEmbedder(model string, log *slog.Logger) (embed.Embedder, error) {
	if model == "" {
		model = cfg.Model
	}
	return embed.New(model, embed.Options{
		RemoteURL:     cfg.Remote.URL,
		RemoteTimeout: cfg.Remote.Timeout(),
		Logger:        log,
	})
}

// openCache loads the embedding cache for e unless caching is disabled.
func openCache(e embed.Embedder, disabled bool, log *slog.Logger) *embed.Cache {
	if disabled || cfg.CacheFile == "" {
		return nil
	}
	return embed.LoadCache(cfg.CacheFile, e.Model(), log)
}

func saveCache(c *embed.Cache, log *slog.Logger) {
	if c == nil || !c.Dirty() {
		return
	}
	if err := c.Save(cfg.CacheFile); err != nil {
		log.Warn("embedding cache not saved", "path", cfg.CacheFile, "error", err)
		return
	}
	log.Debug("embedding cache saved", "path", cfg.CacheFile, "entries", c.Len())
}

func needsPages(engines []scoring.Engine) bool {
	for _, e := range engines {
		if e == scoring.PageCoverage {
			return true
		}
	}
	return false
}

func openStore() (store.Store, error) {
	s, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return s, nil
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}

// thresholdFlag returns the --threshold value when the user set it, 0
// included, and def otherwise.
func thresholdFlag(cmd *cobra.Command, v, def float64) *float64 {
	if cmd.Flags().Changed("threshold") {
		return &v
	}
	return &def
}
