package match

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"droidbench/internal/coverage"
	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

func seq(steps ...string) trace.Sequence {
	var s trace.Sequence
	for i := 0; i+1 < len(steps); i += 2 {
		s.Append(steps[i], steps[i+1], nil)
	}
	return s
}

func approx(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestCompute_Scenario(t *testing.T) {
	bench := seq("click", "home", "swipe", "list", "click", "detail")
	test := seq("click", "home", "click", "detail")

	got := Compute(test, bench)
	want := []Block{{Test: 0, Bench: 0, Size: 1}, {Test: 1, Bench: 2, Size: 1}}
	if diff := cmp.Diff(want, got.MatchingBlocks); diff != "" {
		t.Errorf("blocks (-want +got):\n%s", diff)
	}
	if got.ExactMatches != 2 || got.TotalSteps != 3 {
		t.Errorf("exact/total = %d/%d, want 2/3", got.ExactMatches, got.TotalSteps)
	}
	if !approx(got.MatchPercentage, 66.67) {
		t.Errorf("match_percentage = %.4f, want 66.67", got.MatchPercentage)
	}
	if got.LongestBlock != 1 {
		t.Errorf("longest_block = %d, want 1", got.LongestBlock)
	}
}

func TestCompute_Identical(t *testing.T) {
	a := seq("click", "home", "swipe", "list", "click", "detail", "back", "list", "back", "home")
	got := Compute(a, a)
	if got.ExactMatches != 5 || got.MatchPercentage != 100 {
		t.Errorf("exact=%d pct=%v, want 5 / 100", got.ExactMatches, got.MatchPercentage)
	}
	if len(got.MatchingBlocks) != 1 || got.LongestBlock != 5 {
		t.Errorf("blocks = %+v", got.MatchingBlocks)
	}
	if cov := coverage.Compute(a, a); cov.Percentage != 100 {
		t.Errorf("transition coverage = %v, want 100", cov.Percentage)
	}
}

func TestCompute_Asymmetric(t *testing.T) {
	long := seq("click", "home", "swipe", "list", "click", "detail")
	short := seq("click", "home", "click", "detail")
	ab, ba := Compute(short, long), Compute(long, short)
	if ab.ExactMatches != ba.ExactMatches {
		t.Errorf("exact matches differ: %d vs %d", ab.ExactMatches, ba.ExactMatches)
	}
	if ab.MatchPercentage == ba.MatchPercentage {
		t.Errorf("percentages should differ with unequal lengths, both %v", ab.MatchPercentage)
	}
	if ba.MatchPercentage != 100 {
		t.Errorf("long vs short = %v, want 100", ba.MatchPercentage)
	}
}

func TestCompute_ParamsAreCompared(t *testing.T) {
	var test, bench trace.Sequence
	test.Append("click", "home", trace.Params{"x": "1"})
	bench.Append("click", "home", trace.Params{"x": "2"})

	if got := Compute(test, bench); got.ExactMatches != 0 {
		t.Errorf("differing params must not match exactly, got %d", got.ExactMatches)
	}
	if got := coverage.Compute(test, bench); got.Percentage != 100 {
		t.Errorf("transition coverage ignores params, got %v", got.Percentage)
	}
}

func TestCompute_Empty(t *testing.T) {
	a := seq("click", "home")
	for _, tc := range [][2]trace.Sequence{{nil, a}, {a, nil}, {nil, nil}} {
		got := Compute(tc[0], tc[1])
		if got.ExactMatches != 0 || got.TotalSteps != 0 || got.MatchPercentage != 0 || len(got.MatchingBlocks) != 0 {
			t.Errorf("Compute(%d, %d) = %+v, want zero", len(tc[0]), len(tc[1]), got)
		}
		if s := Measure(tc[0], tc[1]); s != (Similarity{}) {
			t.Errorf("Measure = %+v, want zero", s)
		}
	}
}

func TestLongestCommonSubsequence(t *testing.T) {
	bench := seq("click", "home", "swipe", "list", "click", "detail")
	test := seq("click", "home", "click", "detail")
	got := LongestCommonSubsequence(test, bench)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TestIndex != 0 || got[0].BenchIndex != 0 || got[1].TestIndex != 1 || got[1].BenchIndex != 2 {
		t.Errorf("alignment = %+v", got)
	}
	if !got[1].Action.Equal(test[1]) {
		t.Errorf("aligned action = %s", got[1].Action)
	}
}

func TestLongestCommonSubsequence_TieBreak(t *testing.T) {
	test := seq("a", "p", "b", "p")
	bench := seq("b", "p", "a", "p")
	got := LongestCommonSubsequence(test, bench)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].TestIndex != 1 || got[0].BenchIndex != 0 {
		t.Errorf("tie should step back in the benchmark first, got %+v", got[0])
	}
}

func TestMeasure_Scenario(t *testing.T) {
	bench := seq("click", "home", "swipe", "list", "click", "detail")
	test := seq("click", "home", "click", "detail")
	got := Measure(test, bench)
	if !approx(got.Ratio, 80) {
		t.Errorf("ratio = %v, want 80", got.Ratio)
	}
	if !approx(got.Jaccard, 66.67) {
		t.Errorf("jaccard = %v, want 66.67", got.Jaccard)
	}
	if got.EditDistance != 1 {
		t.Errorf("edit distance = %d, want 1", got.EditDistance)
	}
	if !approx(got.NormalizedEditDistance, 66.67) {
		t.Errorf("normalized = %v, want 66.67", got.NormalizedEditDistance)
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b trace.Sequence
		want int
	}{
		{"equal", seq("a", "x", "b", "y"), seq("a", "x", "b", "y"), 0},
		{"insert", seq("a", "x"), seq("a", "x", "b", "y"), 1},
		{"substitute", seq("a", "x", "c", "z"), seq("a", "x", "b", "y"), 1},
		{"empty side", nil, seq("a", "x", "b", "y"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EditDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("EditDistance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBlocks_PropertiesRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := []string{"click", "swipe", "back"}
	pages := []string{"home", "list", ""}
	gen := func(n int) trace.Sequence {
		var s trace.Sequence
		for i := 0; i < n; i++ {
			s.Append(types[rng.Intn(len(types))], pages[rng.Intn(len(pages))], nil)
		}
		return s
	}
	for iter := 0; iter < 300; iter++ {
		test, bench := gen(rng.Intn(12)), gen(rng.Intn(12))
		res := Compute(test, bench)

		sum := 0
		for i, blk := range res.MatchingBlocks {
			sum += blk.Size
			for k := 0; k < blk.Size; k++ {
				if !test[blk.Test+k].Equal(bench[blk.Bench+k]) {
					t.Fatalf("block %+v covers unequal steps", blk)
				}
			}
			if i > 0 {
				prev := res.MatchingBlocks[i-1]
				if prev.Test+prev.Size > blk.Test || prev.Bench+prev.Size > blk.Bench {
					t.Fatalf("blocks overlap or are out of order: %+v then %+v", prev, blk)
				}
			}
		}
		if sum != res.ExactMatches {
			t.Fatalf("sum of blocks %d != exact matches %d", sum, res.ExactMatches)
		}
		if lcs := LongestCommonSubsequence(test, bench); len(lcs) < res.ExactMatches {
			t.Fatalf("LCS %d shorter than block matches %d", len(lcs), res.ExactMatches)
		}
	}
}

func TestBuildReport(t *testing.T) {
	a := seq("click", "home", "back", "")
	r := BuildReport(a, a, "/runs/1/actions.json", "/bench/case_1/actions.json")
	if r.TestPath != "actions.json" || r.BenchPath != "actions.json" {
		t.Errorf("paths = %q, %q", r.TestPath, r.BenchPath)
	}
	if r.Summary.MatchPercentage != 100 || len(r.LCS) != 2 || r.TestLength != 2 || r.BenchLength != 2 {
		t.Errorf("report = %+v", r)
	}
	if r.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestCompareMany(t *testing.T) {
	dir := t.TempDir()
	test := seq("click", "home", "click", "detail")
	write := func(name string, s trace.Sequence) {
		t.Helper()
		if err := s.SaveFile(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	write("exact.json", test)
	write("partial.json", seq("click", "home", "swipe", "list", "click", "detail"))
	write("empty.json", trace.Sequence{})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatal(err)
	}

	rank, err := CompareMany(context.Background(), test, "run/actions.json", dir, 2, logging.Discard())
	if err != nil {
		t.Fatalf("CompareMany: %v", err)
	}
	if rank.Count != 2 {
		t.Fatalf("count = %d, want 2 (empty benchmark skipped)", rank.Count)
	}
	if rank.Results[0].BenchFile != "exact.json" || rank.Results[1].BenchFile != "partial.json" {
		t.Errorf("order = %s, %s", rank.Results[0].BenchFile, rank.Results[1].BenchFile)
	}
	if rank.TestPath != "actions.json" || rank.TestLength != 2 {
		t.Errorf("test meta = %q/%d", rank.TestPath, rank.TestLength)
	}

	single, err := CompareMany(context.Background(), test, "t.json", filepath.Join(dir, "partial.json"), 0, logging.Discard())
	if err != nil || single.Count != 1 {
		t.Errorf("single-file target: count=%d err=%v", single.Count, err)
	}

	if _, err := CompareMany(context.Background(), nil, "t.json", dir, 1, logging.Discard()); err == nil {
		t.Error("empty test trace should error")
	}
	if _, err := CompareMany(context.Background(), test, "t.json", t.TempDir(), 1, logging.Discard()); err == nil {
		t.Error("directory without traces should error")
	}
}
