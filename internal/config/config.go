// Package config loads droidbench settings from YAML, TOML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"droidbench/internal/logging"
)

// Defaults shared by the engines and the CLI.
const (
	DefaultThreshold       = 0.8
	DefaultModel           = "thumb32"
	DefaultWorkers         = 4
	DefaultBatchSize       = 16
	DefaultMaxTimeDiff     = 5.0
	DefaultDetectThreshold = 0.9
	DefaultHistoryDB       = ".droidbench/history.db"
	DefaultCacheFile       = ".droidbench/embeddings.json.zst"
)

// Config holds all droidbench configuration.
type Config struct {
	BenchmarkDir        string       `json:"benchmark_dir" yaml:"benchmark_dir" toml:"benchmark_dir"`
	SimilarityThreshold float64      `json:"similarity_threshold" yaml:"similarity_threshold" toml:"similarity_threshold"`
	Model               string       `json:"model" yaml:"model" toml:"model"`
	CacheFile           string       `json:"cache_file" yaml:"cache_file" toml:"cache_file"`
	Workers             int          `json:"workers" yaml:"workers" toml:"workers"`
	BatchSize           int          `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	MaxTimeDiffSeconds  float64      `json:"max_time_diff_seconds" yaml:"max_time_diff_seconds" toml:"max_time_diff_seconds"`
	PageDetectThreshold float64      `json:"page_detect_threshold" yaml:"page_detect_threshold" toml:"page_detect_threshold"`
	HistoryDB           string       `json:"history_db" yaml:"history_db" toml:"history_db"`
	LogLevel            string       `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat           string       `json:"log_format" yaml:"log_format" toml:"log_format"`
	Remote              RemoteConfig `json:"remote" yaml:"remote" toml:"remote"`
}

// RemoteConfig points the "remote" embedder at an HTTP embedding service.
type RemoteConfig struct {
	URL            string `json:"url" yaml:"url" toml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// MaxTimeDiff returns the screenshot matching window as a duration.
func (c Config) MaxTimeDiff() time.Duration {
	return time.Duration(c.MaxTimeDiffSeconds * float64(time.Second))
}

// Default returns config with sensible defaults.
func Default() Config {
	return Config{
		BenchmarkDir:        "Benchmark",
		SimilarityThreshold: DefaultThreshold,
		Model:               DefaultModel,
		CacheFile:           DefaultCacheFile,
		Workers:             DefaultWorkers,
		BatchSize:           DefaultBatchSize,
		MaxTimeDiffSeconds:  DefaultMaxTimeDiff,
		PageDetectThreshold: DefaultDetectThreshold,
		HistoryDB:           DefaultHistoryDB,
		LogLevel:            "info",
		LogFormat:           "text",
		Remote:              RemoteConfig{TimeoutSeconds: 30},
	}
}

// Load reads config from path, or from the first standard location that
// exists when path is empty. No file at all means defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range searchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, filepath.Ext(path), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// Decode parses data into cfg. ext is the file extension used as a format
// hint; empty or unknown extensions are detected from content.
func Decode(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".json":
		return json.Unmarshal(data, cfg)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return json.Unmarshal(data, cfg)
	}
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	return yaml.Unmarshal(data, cfg)
}

// Normalize replaces out-of-range values with defaults and expands ~ in paths.
// Fallbacks are logged, never fatal.
func (c *Config) Normalize() {
	log := logging.New("config")
	c.SimilarityThreshold = ValidThreshold(c.SimilarityThreshold)
	if math.IsNaN(c.PageDetectThreshold) || c.PageDetectThreshold < -1 || c.PageDetectThreshold > 1 {
		c.PageDetectThreshold = DefaultDetectThreshold
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.BatchSize < 1 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxTimeDiffSeconds <= 0 {
		c.MaxTimeDiffSeconds = DefaultMaxTimeDiff
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = 30
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		log.Warn("unknown log format, using text", "log_format", c.LogFormat)
		c.LogFormat = "text"
	}
	c.BenchmarkDir = ExpandHome(c.BenchmarkDir)
	c.CacheFile = ExpandHome(c.CacheFile)
	c.HistoryDB = ExpandHome(c.HistoryDB)
}

// ValidThreshold returns t when it is a usable cosine threshold in [-1, 1],
// otherwise DefaultThreshold.
func ValidThreshold(t float64) float64 {
	if math.IsNaN(t) || t < -1 || t > 1 {
		logging.New("config").Warn("similarity threshold out of range, using default",
			"threshold", t, "default", DefaultThreshold)
		return DefaultThreshold
	}
	return t
}

func searchPaths() []string {
	paths := []string{"droidbench.yaml", "droidbench.yml", "droidbench.toml"}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "droidbench", "config.toml"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		paths = append(paths, filepath.Join(home, ".config", "droidbench", "config.toml"))
	}
	return paths
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
