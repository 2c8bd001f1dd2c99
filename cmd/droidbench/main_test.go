package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"droidbench/internal/report"
)

// execute runs the root command in-process. Flag values persist on the
// global commands between runs, so every flag is reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writePNG writes a 64x64 image split into two vertical bands.
func writePNG(t *testing.T, path string, left, right color.Gray) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := left
			if x >= 32 {
				c = right
			}
			img.SetGray(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

const (
	benchTrace = `[
  {"type": "click", "next_page": "Login", "params": {}},
  {"type": "input", "next_page": "Home", "params": {}},
  {"type": "click", "next_page": "Settings", "params": {}}
]`
	testTrace = `[
  {"type": "click", "next_page": "Login", "params": {}},
  {"type": "click", "next_page": "Settings", "params": {}}
]`
)

// setupWorkspace creates a benchmark with one case and a matching run, and
// points config at files inside the temp dir.
func setupWorkspace(t *testing.T) (root, runDir string) {
	t.Helper()
	root = t.TempDir()
	bench := filepath.Join(root, "Benchmark")
	caseDir := filepath.Join(bench, "case_1")
	writeFile(t, filepath.Join(caseDir, "config.yaml"), "name: Login flow\ndescription: sign in and open settings\n")
	writeFile(t, filepath.Join(caseDir, "actions.json"), benchTrace)
	writePNG(t, filepath.Join(caseDir, "screenshots", "login.png"), color.Gray{Y: 0}, color.Gray{Y: 255})
	writePNG(t, filepath.Join(caseDir, "screenshots", "settings.png"), color.Gray{Y: 255}, color.Gray{Y: 0})

	runDir = filepath.Join(root, "run")
	writeFile(t, filepath.Join(runDir, "actions.json"), testTrace)
	writePNG(t, filepath.Join(runDir, "screenshots", "step_1.png"), color.Gray{Y: 0}, color.Gray{Y: 255})

	writeFile(t, filepath.Join(root, "droidbench.yaml"), strings.Join([]string{
		"benchmark_dir: " + bench,
		"history_db: " + filepath.Join(root, "history.db"),
		"cache_file: " + filepath.Join(root, "cache.json.zst"),
		"log_level: error",
	}, "\n")+"\n")
	return root, runDir
}

func TestScore_EndToEnd(t *testing.T) {
	root, runDir := setupWorkspace(t)
	cfgPath := filepath.Join(root, "droidbench.yaml")

	out, err := execute(t, "--config", cfgPath, "score", "--run", runDir, "--case", "login flow")
	if err != nil {
		t.Fatalf("score: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Action coverage") || !strings.Contains(out, "Page coverage") {
		t.Errorf("report missing engines:\n%s", out)
	}

	rep, err := report.ReadFile(filepath.Join(runDir, "results.json"))
	if err != nil {
		t.Fatal(err)
	}
	s := rep.Scores()
	if s.ActionCoverage < 66 || s.ActionCoverage > 67 {
		t.Errorf("action coverage = %v", s.ActionCoverage)
	}
	if s.PageCoverage != 50 {
		t.Errorf("page coverage = %v, want 50", s.PageCoverage)
	}
	if _, err := os.Stat(filepath.Join(root, "cache.json.zst")); err != nil {
		t.Errorf("embedding cache not written: %v", err)
	}

	out, err = execute(t, "--config", cfgPath, "history")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Login flow") {
		t.Errorf("history does not list the run:\n%s", out)
	}
	if _, err := execute(t, "--config", cfgPath, "history", "show", rep.RunID[:8]); err != nil {
		t.Errorf("history show: %v", err)
	}
}

func TestPages_ZeroThresholdIsHonoured(t *testing.T) {
	root, runDir := setupWorkspace(t)
	cfgPath := filepath.Join(root, "droidbench.yaml")
	bench := filepath.Join(root, "Benchmark", "case_1", "screenshots")
	shots := filepath.Join(runDir, "screenshots")

	out, err := execute(t, "--config", cfgPath, "pages", "--test", shots, "--bench", bench, "--threshold", "0", "--no-cache")
	if err != nil {
		t.Fatalf("pages: %v\n%s", err, out)
	}
	if !strings.Contains(out, "threshold 0.00") {
		t.Errorf("explicit zero threshold replaced:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "pages", "--test", shots, "--bench", bench, "--no-cache")
	if err != nil {
		t.Fatalf("pages: %v\n%s", err, out)
	}
	if !strings.Contains(out, "threshold 0.80") {
		t.Errorf("unset threshold should come from config:\n%s", out)
	}
}

func TestScore_UnknownCase(t *testing.T) {
	root, runDir := setupWorkspace(t)
	_, err := execute(t, "--config", filepath.Join(root, "droidbench.yaml"), "score", "--run", runDir, "--case", "9")
	if err == nil {
		t.Fatal("want error for unknown case")
	}
}

func TestActionsCoverage_JSON(t *testing.T) {
	root, runDir := setupWorkspace(t)
	outPath := filepath.Join(root, "cov.json")
	graph := filepath.Join(root, "graph.dot")
	_, err := execute(t, "--config", filepath.Join(root, "droidbench.yaml"), "actions", "coverage",
		"--test", filepath.Join(runDir, "actions.json"),
		"--bench", filepath.Join(root, "Benchmark", "case_1", "actions.json"),
		"-o", outPath, "--graph", graph)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"covered_count": 2`) {
		t.Errorf("coverage json:\n%s", data)
	}
	dot, err := os.ReadFile(graph)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(dot), "digraph") {
		t.Errorf("graph is not DOT:\n%s", dot)
	}
}

func TestMatchCompare(t *testing.T) {
	root, runDir := setupWorkspace(t)
	out, err := execute(t, "--config", filepath.Join(root, "droidbench.yaml"), "match", "compare",
		"--test", filepath.Join(runDir, "actions.json"),
		"--bench", filepath.Join(root, "Benchmark", "case_1", "actions.json"), "--lcs")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "66.67%") {
		t.Errorf("missing exact match percentage:\n%s", out)
	}
}

func TestCasesImportListExport(t *testing.T) {
	root, runDir := setupWorkspace(t)
	cfgPath := filepath.Join(root, "droidbench.yaml")

	out, err := execute(t, "--config", cfgPath, "cases", "import",
		"--actions", filepath.Join(runDir, "actions.json"), "--name", "Short flow",
		"--screenshots", filepath.Join(runDir, "screenshots"))
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported case 2") {
		t.Errorf("import output:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "cases", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Login flow") || !strings.Contains(out, "Short flow") {
		t.Errorf("list output:\n%s", out)
	}

	exported := filepath.Join(root, "exported.json")
	if _, err := execute(t, "--config", cfgPath, "cases", "export", "short flow", "-o", exported); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "Benchmark", "case_2", "screenshots", "step_1.png")); err != nil {
		t.Errorf("screenshot not copied into case: %v", err)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"Settings"`) {
		t.Errorf("exported trace:\n%s", data)
	}
}

func TestModels(t *testing.T) {
	out, err := execute(t, "models")
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "thumb32") && !strings.Contains(line, "✓"):
			t.Errorf("default model not marked: %q", line)
		case strings.Contains(line, "colorhist") && !strings.Contains(line, "✗"):
			t.Errorf("other model marked: %q", line)
		}
	}
	if !strings.Contains(out, "thumb32") || !strings.Contains(out, "colorhist") {
		t.Errorf("models output:\n%s", out)
	}
}

func TestCasesShow_ActionMix(t *testing.T) {
	root, _ := setupWorkspace(t)
	out, err := execute(t, "--config", filepath.Join(root, "droidbench.yaml"), "cases", "show", "1")
	if err != nil {
		t.Fatalf("cases show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Action types: Tap ×2, Text input ×1") {
		t.Errorf("cases show output:\n%s", out)
	}
}
