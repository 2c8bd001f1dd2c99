// Package pages measures visual page coverage: how many benchmark
// screenshots have a sufficiently similar screenshot in a test run.
package pages

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"droidbench/internal/config"
	"droidbench/internal/embed"
	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

// Match records the benchmark screenshot a test screenshot was assigned to.
type Match struct {
	TestImage  string  `json:"test_image"`
	BenchImage string  `json:"matched_page"`
	Similarity float64 `json:"similarity"`
}

// Skipped is an image left out because it could not be embedded.
type Skipped struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is the page coverage of a test run. TotalCount counts benchmark
// images that could be embedded.
type Result struct {
	CoveredCount int       `json:"covered_count"`
	TotalCount   int       `json:"total_count"`
	Percentage   float64   `json:"percentage"`
	Covered      []string  `json:"covered"`
	Uncovered    []string  `json:"uncovered"`
	Matches      []Match   `json:"matches"`
	Skipped      []Skipped `json:"skipped,omitempty"`
	Threshold    float64   `json:"similarity_threshold"`
	Model        string    `json:"model"`
}

// Options tune the embedding phase. Zero values select defaults.
type Options struct {
	// Cache is consulted before embedding and receives every new vector.
	// A cache built for a different model is ignored.
	Cache     *embed.Cache
	Workers   int
	BatchSize int
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = config.DefaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = config.DefaultBatchSize
	}
	o.Logger = logging.OrDefault(o.Logger, "pages")
	return o
}

// Compute assigns every test image to its most similar benchmark image (the
// first maximum in benchmark order wins) and counts the assignment when the
// similarity reaches threshold. Several test images may map to the same
// benchmark image. A threshold outside [-1, 1] falls back to the default.
// The only error is context cancellation.
func Compute(ctx context.Context, testImages, benchImages []string, e embed.Embedder, threshold float64, opts Options) (Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	threshold = config.ValidThreshold(threshold)
	if opts.Cache != nil && opts.Cache.Model() != e.Model() {
		log.Warn("embedding cache belongs to another model, ignoring it",
			"cached_model", opts.Cache.Model(), "model", e.Model())
		opts.Cache = nil
	}

	res := Result{
		Covered:   []string{},
		Uncovered: []string{},
		Matches:   []Match{},
		Threshold: threshold,
		Model:     e.Model(),
	}
	if len(benchImages) == 0 || len(testImages) == 0 {
		log.Error("no images to compare", "test_images", len(testImages), "benchmark_images", len(benchImages))
		return res, nil
	}

	vecs, skipped, err := embedAll(ctx, e, append(append([]string{}, benchImages...), testImages...), opts)
	if err != nil {
		return res, err
	}
	res.Skipped = skipped

	type ref struct {
		path string
		vec  []float64
	}
	var bench []ref
	for _, p := range dedupe(benchImages) {
		if v, ok := vecs[p]; ok {
			bench = append(bench, ref{p, v})
		}
	}
	if len(bench) == 0 {
		log.Error("no benchmark image could be embedded", "benchmark_images", len(benchImages))
		return res, nil
	}

	covered := make(map[string]bool)
	for _, tp := range dedupe(testImages) {
		tv, ok := vecs[tp]
		if !ok {
			continue
		}
		best, bestSim := -1, math.Inf(-1)
		for j, b := range bench {
			if s := embed.Cosine(tv, b.vec); s > bestSim {
				best, bestSim = j, s
			}
		}
		if best >= 0 && bestSim >= threshold {
			covered[bench[best].path] = true
			res.Matches = append(res.Matches, Match{TestImage: tp, BenchImage: bench[best].path, Similarity: bestSim})
		}
	}

	for _, b := range bench {
		if covered[b.path] {
			res.Covered = append(res.Covered, b.path)
		} else {
			res.Uncovered = append(res.Uncovered, b.path)
		}
	}
	res.CoveredCount = len(res.Covered)
	res.TotalCount = len(bench)
	res.Percentage = float64(res.CoveredCount) / float64(res.TotalCount) * 100
	log.Info("page coverage computed",
		"covered", res.CoveredCount, "total", res.TotalCount, "matches", len(res.Matches), "skipped", len(res.Skipped))
	return res, nil
}

// ComputeDirs discovers images under both directories recursively and runs
// Compute. A missing directory counts as containing no images.
func ComputeDirs(ctx context.Context, testDir, benchDir string, e embed.Embedder, threshold float64, opts Options) (Result, error) {
	log := logging.OrDefault(opts.Logger, "pages")
	list := func(dir string) []string {
		paths, err := trace.ListScreenshots(dir, true)
		if err != nil {
			log.Error("list screenshots failed", "dir", dir, "error", err)
		}
		return paths
	}
	return Compute(ctx, list(testDir), list(benchDir), e, threshold, opts)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

type embedded struct {
	path string
	vec  []float64
	err  error
}

// embedAll embeds every distinct path, reading through opts.Cache. Batches
// run on a bounded worker pool; results funnel into a single collector that
// owns both the result map and cache writes.
func embedAll(ctx context.Context, e embed.Embedder, paths []string, opts Options) (map[string][]float64, []Skipped, error) {
	log := opts.Logger
	vecs := make(map[string][]float64, len(paths))
	var todo []string
	for _, p := range dedupe(paths) {
		if opts.Cache != nil {
			if v, ok := opts.Cache.Get(cacheKey(p)); ok {
				vecs[p] = v
				continue
			}
		}
		todo = append(todo, p)
	}
	log.Debug("embedding images", "cached", len(vecs), "to_embed", len(todo), "model", e.Model())
	if len(todo) == 0 {
		return vecs, nil, nil
	}

	results := make(chan embedded)
	var skipped []Skipped
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.err != nil {
				log.Warn("embedding failed, skipping image", "path", r.path, "error", r.err)
				skipped = append(skipped, Skipped{Path: r.path, Error: r.err.Error()})
				continue
			}
			vecs[r.path] = r.vec
			if opts.Cache != nil {
				opts.Cache.Put(cacheKey(r.path), r.vec)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	batcher, isBatch := e.(embed.BatchEmbedder)
	for start := 0; start < len(todo); start += opts.BatchSize {
		batch := todo[start:min(start+opts.BatchSize, len(todo))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if isBatch {
				vs, errs := batcher.EmbedBatch(gctx, batch)
				for i, p := range batch {
					select {
					case results <- embedded{path: p, vec: vs[i], err: errs[i]}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			}
			for _, p := range batch {
				v, err := e.Embed(gctx, p)
				select {
				case results <- embedded{path: p, vec: v, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-done

	if err != nil {
		return vecs, skipped, err
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	return vecs, skipped, nil
}

// cacheKey identifies an image across runs by absolute path.
func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
