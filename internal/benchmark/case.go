// Package benchmark loads and maintains benchmark cases: reference traces and
// screenshots that test runs are scored against.
//
// On disk a benchmark directory holds one case_<N> directory per case:
//
//	case_1/
//	  config.json       {"name", "description", "apk_path"} (or config.yaml)
//	  actions.json      reference trace
//	  screenshots/      reference screenshots (.png, .jpg, .jpeg)
package benchmark

import (
	"errors"
	"path/filepath"
	"strings"

	"droidbench/internal/trace"
)

// ErrCaseNotFound is returned by lookups for a case that is not loaded.
var ErrCaseNotFound = errors.New("benchmark case not found")

// Case is one scoring target. Scoring never mutates a case.
type Case struct {
	ID          int            `json:"case_id"`
	Name        string         `json:"name"`
	APKPath     string         `json:"apk_path,omitempty"`
	Description string         `json:"description"`
	Screenshots []string       `json:"screenshots"`
	Actions     trace.Sequence `json:"actions"`
	// Dir is where the case was loaded from; empty for cases not yet saved.
	Dir string `json:"dir,omitempty"`
}

// DirName returns the directory name of the case inside a benchmark dir.
func (c *Case) DirName() string { return caseDirName(c.ID) }

// ActionsPath returns the case's reference trace path, or "" when unsaved.
func (c *Case) ActionsPath() string {
	if c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, actionsFile)
}

// ScreenshotsDir returns the case's screenshot directory, or "" when unsaved.
func (c *Case) ScreenshotsDir() string {
	if c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, screenshotsDir)
}

// ScreenshotAt returns the i-th screenshot.
func (c *Case) ScreenshotAt(i int) (string, bool) {
	if i < 0 || i >= len(c.Screenshots) {
		return "", false
	}
	return c.Screenshots[i], true
}

// ScreenshotFor returns the first screenshot whose file name contains page,
// case-insensitively.
func (c *Case) ScreenshotFor(page string) (string, bool) {
	needle := strings.ToLower(page)
	for _, s := range c.Screenshots {
		if strings.Contains(strings.ToLower(filepath.Base(s)), needle) {
			return s, true
		}
	}
	return "", false
}
