package embed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"droidbench/internal/logging"
)

// Cache holds embeddings of one model keyed by image path. Reads are safe
// from many goroutines; writers are expected to funnel through one owner.
type Cache struct {
	mu      sync.RWMutex
	model   string
	vectors map[string][]float64
	dirty   bool
}

type cacheFile struct {
	Model      string               `json:"model_name"`
	Embeddings map[string][]float64 `json:"embeddings"`
}

// NewCache returns an empty cache for model.
func NewCache(model string) *Cache {
	return &Cache{model: model, vectors: map[string][]float64{}}
}

// LoadCache reads the cache at path for model. A missing or unreadable file,
// or one written by a different model, yields an empty cache.
func LoadCache(path, model string, log *slog.Logger) *Cache {
	log = logging.OrDefault(log, "embed")
	c := NewCache(model)
	if path == "" {
		return c
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("open embedding cache failed", "path", path, "error", err)
		}
		return c
	}
	defer f.Close()

	var r io.Reader = f
	if isZstd(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			log.Warn("create zstd decoder failed", "path", path, "error", err)
			return c
		}
		defer dec.Close()
		r = dec
	}
	var cf cacheFile
	if err := json.NewDecoder(r).Decode(&cf); err != nil {
		log.Warn("embedding cache unreadable, starting empty", "path", path, "error", err)
		return c
	}
	if cf.Model != model {
		log.Info("embedding cache built by another model, invalidating",
			"path", path, "cached_model", cf.Model, "model", model)
		c.dirty = true
		return c
	}
	if cf.Embeddings != nil {
		c.vectors = cf.Embeddings
	}
	log.Debug("embedding cache loaded", "path", path, "entries", len(c.vectors))
	return c
}

func isZstd(path string) bool { return strings.HasSuffix(path, ".zst") }

// Model returns the model identity the cache belongs to.
func (c *Cache) Model() string { return c.model }

// Get returns the cached vector for path.
func (c *Cache) Get(path string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vectors[path]
	return v, ok
}

// Put stores a vector for path.
func (c *Cache) Put(path string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[path] = vec
	c.dirty = true
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// Dirty reports whether the cache changed since it was loaded or saved.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Save writes the cache to path via a temp file and rename, compressing with
// zstd when path ends in .zst.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(cacheFile{Model: c.model, Embeddings: c.vectors})
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode embedding cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".embeddings-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if isZstd(path) {
		enc, err := zstd.NewWriter(tmp)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		if _, err := io.Copy(enc, &buf); err != nil {
			enc.Close()
			tmp.Close()
			return fmt.Errorf("compress cache: %w", err)
		}
		if err := enc.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("finalize compression: %w", err)
		}
	} else if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}
