// Package embed turns screenshots into vectors that can be compared by cosine
// similarity. Concrete models are pluggable; the page-coverage engine only
// depends on the Embedder interface.
package embed

import (
	"context"
	"errors"
	"math"
)

// Embedder maps an image file to a fixed-length vector. Implementations must
// be deterministic and safe for concurrent use.
type Embedder interface {
	// Model identifies the embedding function. Cached vectors are only
	// reused under the same identity.
	Model() string
	Embed(ctx context.Context, path string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that are cheaper per image when
// called with several paths at once. errs[i] reports the failure of paths[i].
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, paths []string) (vecs [][]float64, errs []error)
}

var (
	// ErrFlatImage is returned for images without any luminance variation,
	// which have no direction under the thumbnail embedders.
	ErrFlatImage = errors.New("image has no luminance variation")
	// ErrNoURL is returned when the remote embedder has no endpoint configured.
	ErrNoURL = errors.New("remote embedder requires a URL")
)

// Cosine returns the cosine similarity of a and b, in [-1, 1]. Vectors of
// different length, or with zero norm, have similarity 0. Identical vectors
// have similarity exactly 1.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	same := true
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
		same = same && a[i] == b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	if same {
		return 1
	}
	s := dot / math.Sqrt(na*nb)
	if math.IsInf(na*nb, 0) {
		s = dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
	return math.Max(-1, math.Min(1, s))
}
