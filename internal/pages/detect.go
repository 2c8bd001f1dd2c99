package pages

import (
	"context"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"droidbench/internal/config"
	"droidbench/internal/embed"
	"droidbench/internal/logging"
)

// Labels used when no reference screenshot is similar enough.
const (
	ComplexPage = "complex_page"
	SimplePage  = "simple_page"
)

// DefaultEdgePixels is the edge-pixel count above which an unrecognised
// screen is labelled ComplexPage.
const DefaultEdgePixels = 10000

// Detector names the page shown in a screenshot. It implements
// trace.PageDetector.
type Detector struct {
	embedder   embed.Embedder
	refs       []reference
	threshold  float64
	edgePixels int
	log        *slog.Logger
}

type reference struct {
	name string
	vec  []float64
}

// NewDetector embeds the reference screenshots up front. A reference is
// labelled with its file name without extension; references that cannot be
// embedded are logged and ignored. A threshold outside [-1, 1] falls back
// to config.DefaultDetectThreshold.
func NewDetector(ctx context.Context, e embed.Embedder, references []string, threshold float64, log *slog.Logger) *Detector {
	d := &Detector{
		embedder:   e,
		threshold:  threshold,
		edgePixels: DefaultEdgePixels,
		log:        logging.OrDefault(log, "pages"),
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		d.log.Warn("detection threshold out of range, using default",
			"threshold", threshold, "default", config.DefaultDetectThreshold)
		d.threshold = config.DefaultDetectThreshold
	}
	for _, p := range references {
		v, err := e.Embed(ctx, p)
		if err != nil {
			d.log.Warn("reference screenshot skipped", "path", p, "error", err)
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		d.refs = append(d.refs, reference{name: stem, vec: v})
	}
	return d
}

// DetectPage labels the screenshot with the most similar reference when the
// similarity reaches the threshold, and otherwise by edge density. It
// reports false only when the image cannot be read.
func (d *Detector) DetectPage(ctx context.Context, path string) (string, bool) {
	if len(d.refs) > 0 {
		if v, err := d.embedder.Embed(ctx, path); err == nil {
			best, bestSim := "", -2.0
			for _, r := range d.refs {
				if s := embed.Cosine(v, r.vec); s > bestSim {
					best, bestSim = r.name, s
				}
			}
			if bestSim >= d.threshold {
				return best, true
			}
		} else {
			d.log.Debug("embedding for page detection failed", "path", path, "error", err)
		}
	}

	img, err := embed.DecodeFile(path)
	if err != nil {
		d.log.Warn("page detection failed", "path", path, "error", err)
		return "", false
	}
	if EdgePixels(img) > d.edgePixels {
		return ComplexPage, true
	}
	return SimplePage, true
}

// EdgePixels counts pixels whose Sobel gradient magnitude exceeds a fixed
// threshold on the grayscale image.
func EdgePixels(img image.Image) int {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)

	const threshold = 128 * 128
	w, h := b.Dx(), b.Dy()
	px := func(x, y int) int { return int(g.Pix[y*g.Stride+x]) }
	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1) +
				px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)
			gy := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) +
				px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)
			if gx*gx+gy*gy > threshold {
				count++
			}
		}
	}
	return count
}
