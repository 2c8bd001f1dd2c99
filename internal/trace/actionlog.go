package trace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"droidbench/internal/logging"
)

// LogEntry is one line of a raw action log:
//
//	timestamp,action_type,key=value,key=value...
type LogEntry struct {
	Timestamp string
	Type      string
	Params    Params
}

// ParseActionLog reads log lines. Lines with fewer than two comma-separated
// fields are skipped; parameter fields without '=' are ignored.
func ParseActionLog(r io.Reader) ([]LogEntry, error) {
	var out []LogEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), ",")
		if len(parts) < 2 {
			continue
		}
		e := LogEntry{Timestamp: parts[0], Type: parts[1], Params: Params{}}
		for _, kv := range parts[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if ok {
				e.Params[k] = v
			}
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read action log: %w", err)
	}
	return out, nil
}

// PageDetector labels a screenshot with a page name.
type PageDetector interface {
	DetectPage(ctx context.Context, screenshot string) (string, bool)
}

// GenerateOptions configures Generate.
type GenerateOptions struct {
	LogPath        string
	ScreenshotsDir string        // optional
	OutputPath     string        // optional; trace is saved here when set
	Detector       PageDetector  // optional; fills missing next_page values
	MaxTimeDiff    time.Duration // screenshot/log alignment window; 0 = 5s
	Logger         *slog.Logger
}

// Generate builds a trace from an action log. Steps without a next_page get
// one from the screenshot closest in time, when a detector recognises it.
// On a read error the entries parsed so far are still returned.
func Generate(ctx context.Context, opts GenerateOptions) (Sequence, error) {
	log := logging.OrDefault(opts.Logger, "trace")
	maxDiff := opts.MaxTimeDiff
	if maxDiff <= 0 {
		maxDiff = 5 * time.Second
	}

	seq := Sequence{}
	f, err := os.Open(opts.LogPath)
	if err != nil {
		log.Error("open action log failed", "path", opts.LogPath, "error", err)
		return seq, fmt.Errorf("open action log: %w", err)
	}
	defer f.Close()

	entries, readErr := ParseActionLog(f)

	haveShots := false
	if opts.ScreenshotsDir != "" {
		if info, err := os.Stat(opts.ScreenshotsDir); err == nil && info.IsDir() {
			haveShots = true
		}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return seq, err
		}
		page := e.Params["next_page"]
		if haveShots && page == "" && opts.Detector != nil {
			if ts, ok := ParseLogTimestamp(e.Timestamp); ok {
				if shot, ok := FindClosestScreenshot(opts.ScreenshotsDir, ts, maxDiff); ok {
					if detected, ok := opts.Detector.DetectPage(ctx, shot); ok {
						page = detected
						e.Params["detected_from_screenshot"] = "true"
						e.Params["screenshot_path"] = filepath.Base(shot)
					}
				}
			} else {
				log.Warn("unparseable log timestamp", "timestamp", e.Timestamp)
			}
		}
		seq.Append(e.Type, page, e.Params)
	}
	if readErr != nil {
		log.Error("action log truncated", "path", opts.LogPath, "error", readErr)
	}

	if opts.OutputPath != "" {
		if err := seq.SaveFile(opts.OutputPath); err != nil {
			return seq, err
		}
	}
	return seq, readErr
}
