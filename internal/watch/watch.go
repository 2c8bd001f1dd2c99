// Package watch re-scores a run directory while a test run is still writing
// to it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

// DefaultDebounce collapses bursts of writes (a screenshot plus the trace
// update that follows it) into one re-score.
const DefaultDebounce = 500 * time.Millisecond

// Options configure Run.
type Options struct {
	RunDir      string
	ActionsFile string // base name inside RunDir, default actions.json
	ShotsDir    string // base name inside RunDir, default screenshots
	Debounce    time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ActionsFile == "" {
		o.ActionsFile = "actions.json"
	}
	if o.ShotsDir == "" {
		o.ShotsDir = "screenshots"
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	o.Logger = logging.OrDefault(o.Logger, "watch")
	return o
}

// Run calls fn once immediately and again after every settled change to the
// trace file or a screenshot, until ctx is done. Errors from fn are logged
// and do not stop the watch.
func Run(ctx context.Context, opts Options, fn func(context.Context) error) error {
	opts = opts.withDefaults()
	log := opts.Logger.With("run_dir", opts.RunDir)

	info, err := os.Stat(opts.RunDir)
	if err != nil {
		return fmt.Errorf("watch run dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch run dir: %s is not a directory", opts.RunDir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(opts.RunDir); err != nil {
		return fmt.Errorf("watch %s: %w", opts.RunDir, err)
	}
	shots := filepath.Join(opts.RunDir, opts.ShotsDir)
	if err := w.Add(shots); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("screenshots dir not watched", "error", err)
	}

	score := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Error("re-score failed", "error", err)
		}
	}
	score()

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name == shots && ev.Has(fsnotify.Create) {
				if err := w.Add(shots); err != nil {
					log.Warn("screenshots dir not watched", "error", err)
				}
				continue
			}
			if !relevant(ev, opts, shots) {
				continue
			}
			log.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-timer.C:
			score()
		}
	}
}

func relevant(ev fsnotify.Event, opts Options, shots string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	if filepath.Base(ev.Name) == opts.ActionsFile && filepath.Dir(ev.Name) == filepath.Clean(opts.RunDir) {
		return true
	}
	return filepath.Dir(ev.Name) == shots && trace.IsScreenshot(ev.Name)
}
