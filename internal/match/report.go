package match

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

// Report is the full exact-match analysis of one test/benchmark pair.
type Report struct {
	Summary     Result     `json:"summary"`
	Similarity  Similarity `json:"similarity_metrics"`
	LCS         []Aligned  `json:"longest_common_subsequence"`
	TestLength  int        `json:"test_sequence_length"`
	BenchLength int        `json:"benchmark_sequence_length"`
	TestPath    string     `json:"test_sequence_path,omitempty"`
	BenchPath   string     `json:"benchmark_sequence_path,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// BuildReport runs every exact-match metric over the pair. Paths are
// recorded by base name only.
func BuildReport(test, bench trace.Sequence, testPath, benchPath string) Report {
	r := Report{
		Summary:     Compute(test, bench),
		Similarity:  Measure(test, bench),
		LCS:         LongestCommonSubsequence(test, bench),
		TestLength:  len(test),
		BenchLength: len(bench),
		Timestamp:   time.Now(),
	}
	if testPath != "" {
		r.TestPath = filepath.Base(testPath)
	}
	if benchPath != "" {
		r.BenchPath = filepath.Base(benchPath)
	}
	return r
}

// Candidate is one benchmark's result in a multi-benchmark comparison.
type Candidate struct {
	BenchFile  string     `json:"benchmark_file"`
	Result     Result     `json:"match_result"`
	Similarity Similarity `json:"similarity"`
}

// Ranking compares a test trace against many benchmarks, best first.
type Ranking struct {
	TestPath   string      `json:"test_sequence"`
	TestLength int         `json:"test_sequence_length"`
	Count      int         `json:"benchmark_count"`
	Results    []Candidate `json:"results"`
	Timestamp  time.Time   `json:"timestamp"`
}

// BenchmarkFiles lists the *.json traces in target, or target itself when
// it names a single .json file.
func BenchmarkFiles(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(target), ".json") {
			return []string{target}, nil
		}
		return nil, fmt.Errorf("%s: not a .json file", target)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			out = append(out, filepath.Join(target, e.Name()))
		}
	}
	return out, nil
}

// CompareMany scores test against every benchmark file under target using up
// to workers goroutines. Empty or unreadable benchmarks are logged and
// skipped. Results are ordered by match percentage, highest first, with
// file name as the tie-break.
func CompareMany(ctx context.Context, test trace.Sequence, testPath, target string, workers int, log *slog.Logger) (Ranking, error) {
	log = logging.OrDefault(log, "match")
	rank := Ranking{TestPath: filepath.Base(testPath), TestLength: len(test), Results: []Candidate{}, Timestamp: time.Now()}
	if len(test) == 0 {
		return rank, fmt.Errorf("test trace %s is empty or invalid", testPath)
	}
	files, err := BenchmarkFiles(target)
	if err != nil {
		return rank, fmt.Errorf("find benchmarks: %w", err)
	}
	if len(files) == 0 {
		return rank, fmt.Errorf("no benchmark traces found in %s", target)
	}

	slots := make([]*Candidate, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bench := trace.LoadOrEmpty(f, log)
			if len(bench) == 0 {
				log.Warn("benchmark trace empty or invalid, skipping", "path", f)
				return nil
			}
			slots[i] = &Candidate{
				BenchFile:  filepath.Base(f),
				Result:     Compute(test, bench),
				Similarity: Measure(test, bench),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rank, err
	}

	for _, c := range slots {
		if c != nil {
			rank.Results = append(rank.Results, *c)
		}
	}
	sort.SliceStable(rank.Results, func(i, j int) bool {
		a, b := rank.Results[i], rank.Results[j]
		if a.Result.MatchPercentage != b.Result.MatchPercentage {
			return a.Result.MatchPercentage > b.Result.MatchPercentage
		}
		return a.BenchFile < b.BenchFile
	})
	rank.Count = len(rank.Results)
	return rank, nil
}
