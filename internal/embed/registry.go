package embed

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"droidbench/internal/logging"
)

// DefaultModel is used when no model, or an unknown one, is requested.
const DefaultModel = "thumb32"

// Options configure model construction.
type Options struct {
	RemoteURL     string
	RemoteTimeout time.Duration
	Logger        *slog.Logger
}

var builtins = map[string]func() Embedder{
	"thumb32":   func() Embedder { return thumbEmbedder{size: 32} },
	"thumb16":   func() Embedder { return thumbEmbedder{size: 16} },
	"colorhist": func() Embedder { return histEmbedder{bins: 4} },
}

// Models lists the selectable model names.
func Models() []string {
	names := []string{"remote"}
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the embedder called name. Unknown names fall back to
// DefaultModel with a warning. "remote" (or "remote:<name>") without a URL
// is an error.
func New(name string, opts Options) (Embedder, error) {
	log := logging.OrDefault(opts.Logger, "embed")
	key := strings.ToLower(strings.TrimSpace(name))

	if key == "remote" || strings.HasPrefix(key, "remote:") {
		label := strings.TrimPrefix(strings.TrimPrefix(key, "remote"), ":")
		r, err := NewRemote(opts.RemoteURL, label, opts.RemoteTimeout)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		return r, nil
	}
	if key == "" {
		key = DefaultModel
	}
	ctor, ok := builtins[key]
	if !ok {
		log.Warn("unknown embedding model, using default", "model", name, "default", DefaultModel)
		ctor = builtins[DefaultModel]
	}
	return ctor(), nil
}
