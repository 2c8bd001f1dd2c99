package benchmark

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

const (
	casePrefix     = "case_"
	configJSON     = "config.json"
	configYAML     = "config.yaml"
	actionsFile    = "actions.json"
	screenshotsDir = "screenshots"
)

func caseDirName(id int) string { return casePrefix + strconv.Itoa(id) }

type caseConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	APKPath     string `json:"apk_path,omitempty" yaml:"apk_path,omitempty"`
}

// Loader holds the cases of one benchmark directory.
type Loader struct {
	Dir   string
	Cases []*Case
	log   *slog.Logger
}

// NewLoader returns an empty loader for dir; call Load to read it.
func NewLoader(dir string, log *slog.Logger) *Loader {
	return &Loader{Dir: dir, log: logging.OrDefault(log, "benchmark")}
}

// Load reads every case_<N> directory in numeric order. Directories without
// a config file are skipped; an unreadable trace leaves the case with an
// empty one. Only an unreadable benchmark directory is an error.
func (l *Loader) Load() ([]*Case, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("read benchmark dir: %w", err)
	}
	type found struct {
		id  int
		dir string
	}
	var dirs []found
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), casePrefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), casePrefix))
		if err != nil {
			l.log.Warn("ignoring case directory with non-numeric id", "dir", e.Name())
			continue
		}
		dirs = append(dirs, found{id, filepath.Join(l.Dir, e.Name())})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].id < dirs[j].id })

	l.Cases = nil
	for _, d := range dirs {
		c, err := l.loadCase(d.id, d.dir)
		if err != nil {
			l.log.Error("load case failed", "dir", d.dir, "error", err)
			continue
		}
		if c != nil {
			l.Cases = append(l.Cases, c)
		}
	}
	l.log.Info("benchmark cases loaded", "dir", l.Dir, "cases", len(l.Cases))
	return l.Cases, nil
}

func (l *Loader) loadCase(id int, dir string) (*Case, error) {
	cfg, ok, err := readConfig(dir)
	if err != nil || !ok {
		return nil, err
	}
	c := &Case{
		ID:          id,
		Name:        cfg.Name,
		Description: cfg.Description,
		Dir:         dir,
		Screenshots: []string{},
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("Case %d", id)
	}
	if cfg.APKPath != "" {
		c.APKPath = cfg.APKPath
		if !filepath.IsAbs(c.APKPath) {
			c.APKPath = filepath.Join(l.Dir, c.APKPath)
		}
	}
	if shots, err := trace.ListScreenshots(filepath.Join(dir, screenshotsDir), false); err == nil {
		c.Screenshots = shots
	}
	c.Actions = trace.Sequence{}
	if p := filepath.Join(dir, actionsFile); fileExists(p) {
		c.Actions = trace.LoadOrEmpty(p, l.log)
	}
	return c, nil
}

// readConfig decodes config.json, or config.yaml when there is no JSON file.
// ok is false when neither exists.
func readConfig(dir string) (caseConfig, bool, error) {
	var cfg caseConfig
	if data, err := os.ReadFile(filepath.Join(dir, configJSON)); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, false, fmt.Errorf("parse %s: %w", configJSON, err)
		}
		return cfg, true, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, configYAML))
	if err != nil {
		return cfg, false, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, false, fmt.Errorf("parse %s: %w", configYAML, err)
	}
	return cfg, true, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// ByID returns the loaded case with the given id.
func (l *Loader) ByID(id int) (*Case, error) {
	for _, c := range l.Cases {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("case %d: %w", id, ErrCaseNotFound)
}

// ByName returns the first case whose name matches, case-insensitively.
func (l *Loader) ByName(name string) (*Case, error) {
	for _, c := range l.Cases {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("case %q: %w", name, ErrCaseNotFound)
}

// Lookup resolves ref as a numeric id first, then as a name.
func (l *Loader) Lookup(ref string) (*Case, error) {
	if id, err := strconv.Atoi(strings.TrimPrefix(ref, casePrefix)); err == nil {
		if c, err := l.ByID(id); err == nil {
			return c, nil
		}
	}
	return l.ByName(ref)
}

// Create adds a new, unsaved case with the next free id.
func (l *Loader) Create(name, description, apkPath string) *Case {
	id := 1
	for _, c := range l.Cases {
		id = max(id, c.ID+1)
	}
	c := &Case{
		ID:          id,
		Name:        name,
		Description: description,
		APKPath:     apkPath,
		Screenshots: []string{},
		Actions:     trace.Sequence{},
	}
	l.Cases = append(l.Cases, c)
	return c
}

// Import creates a case from a trace file. An empty name defaults to the
// file name up to its first dot. Screenshots are taken from shotsDir when it
// exists. An empty or unreadable trace is an error.
func (l *Loader) Import(seqPath, name, description, shotsDir string) (*Case, error) {
	seq, err := trace.LoadFile(seqPath)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("import: trace %s is empty", seqPath)
	}
	if name == "" {
		name, _, _ = strings.Cut(filepath.Base(seqPath), ".")
	}
	c := l.Create(name, description, "")
	c.Actions = seq
	if shotsDir != "" {
		if shots, err := trace.ListScreenshots(shotsDir, false); err == nil {
			c.Screenshots = shots
		} else {
			l.log.Warn("screenshots not imported", "dir", shotsDir, "error", err)
		}
	}
	l.log.Info("case imported", "case_id", c.ID, "name", c.Name, "actions", len(seq), "screenshots", len(c.Screenshots))
	return c, nil
}

// Export writes the reference trace of case id to path.
func (l *Loader) Export(id int, path string) error {
	c, err := l.ByID(id)
	if err != nil {
		return err
	}
	return c.Actions.SaveFile(path)
}

// Save writes every case under outDir as case_<N>/ with its config, trace
// and screenshots. Screenshots outside the target directory are copied in
// and the case is repointed at outDir.
func (l *Loader) Save(outDir string) error {
	for _, c := range l.Cases {
		if err := l.saveCase(c, outDir); err != nil {
			return fmt.Errorf("save case %d: %w", c.ID, err)
		}
	}
	return nil
}

func (l *Loader) saveCase(c *Case, outDir string) error {
	dir := filepath.Join(outDir, c.DirName())
	shotDir := filepath.Join(dir, screenshotsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cfg := caseConfig{Name: c.Name, Description: c.Description, APKPath: c.APKPath}
	if rel, err := filepath.Rel(outDir, c.APKPath); err == nil && c.APKPath != "" && !strings.HasPrefix(rel, "..") {
		cfg.APKPath = rel
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, configJSON), data, 0o644); err != nil {
		return err
	}
	if err := c.Actions.SaveFile(filepath.Join(dir, actionsFile)); err != nil {
		return err
	}

	shots := make([]string, 0, len(c.Screenshots))
	for _, s := range c.Screenshots {
		dst := filepath.Join(shotDir, filepath.Base(s))
		if filepath.Clean(s) != dst {
			if err := copyFile(s, dst); err != nil {
				l.log.Warn("screenshot not copied", "src", s, "error", err)
				continue
			}
		}
		shots = append(shots, dst)
	}
	c.Screenshots = shots
	c.Dir = dir
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
