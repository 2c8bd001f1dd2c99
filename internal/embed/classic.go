package embed

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// DecodeFile reads and decodes a PNG or JPEG image.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Thumbnail scales img to a size×size grayscale image.
func Thumbnail(img image.Image, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// thumbEmbedder embeds an image as its mean-centred grayscale thumbnail, so
// cosine similarity behaves like a pixel correlation.
type thumbEmbedder struct {
	size int
}

func (e thumbEmbedder) Model() string { return fmt.Sprintf("thumb%d", e.size) }

func (e thumbEmbedder) Embed(ctx context.Context, path string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	g := Thumbnail(img, e.size)
	vec := make([]float64, len(g.Pix))
	var mean float64
	for i, p := range g.Pix {
		vec[i] = float64(p) / 255
		mean += vec[i]
	}
	mean /= float64(len(vec))
	var norm float64
	for i := range vec {
		vec[i] -= mean
		norm += vec[i] * vec[i]
	}
	if norm < 1e-12 {
		return nil, fmt.Errorf("%s: %w", path, ErrFlatImage)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// histEmbedder embeds an image as its normalised RGB histogram with
// bins×bins×bins buckets.
type histEmbedder struct {
	bins int
}

func (e histEmbedder) Model() string { return "colorhist" }

func (e histEmbedder) Embed(ctx context.Context, path string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	// Histogram a fixed-size thumbnail so cost does not grow with resolution.
	small := image.NewRGBA(image.Rect(0, 0, 128, 128))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	n := e.bins
	vec := make([]float64, n*n*n)
	b := small.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := small.RGBAAt(x, y)
			r := int(c.R) * n / 256
			gr := int(c.G) * n / 256
			bl := int(c.B) * n / 256
			vec[(r*n+gr)*n+bl]++
		}
	}
	total := float64(b.Dx() * b.Dy())
	for i := range vec {
		vec[i] /= total
	}
	return vec, nil
}
