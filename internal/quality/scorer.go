// Package quality grades a detected face region for enrollment.
package quality

import (
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/imaging"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// Thresholds bound each quality metric. A metric is good when it lies
// strictly beyond its bound.
type Thresholds struct {
	MinSharpness   float64
	MinBrightness  float64
	MaxBrightness  float64
	MinFaceSizePct float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSharpness:   80,
		MinBrightness:  80,
		MaxBrightness:  200,
		MinFaceSizePct: 5,
	}
}

type Scorer struct {
	thresholds Thresholds
}

func NewScorer(t Thresholds) *Scorer {
	return &Scorer{thresholds: t}
}

// Assess computes the report for region inside img. A nil region yields the
// zero report.
func (s *Scorer) Assess(img image.Image, region *provider.Region) domain.QualityReport {
	if img == nil || region == nil {
		return domain.QualityReport{}
	}

	gray := imaging.Gray(img, region.Rect())
	frame := img.Bounds()
	var visible image.Rectangle
	if region.Area() > 0 {
		visible = region.Rect().Intersect(frame)
	}

	var sizePct float64
	if frameArea := frame.Dx() * frame.Dy(); frameArea > 0 {
		sizePct = 100 * float64(visible.Dx()*visible.Dy()) / float64(frameArea)
	}

	return s.Grade(LaplacianVariance(gray), MeanIntensity(gray), sizePct)
}

// Grade applies the thresholds to already measured metrics.
func (s *Scorer) Grade(sharpness, brightness, faceSizePct float64) domain.QualityReport {
	r := domain.QualityReport{
		Sharpness:      sharpness,
		Brightness:     brightness,
		FaceSizePct:    faceSizePct,
		SharpnessGood:  sharpness > s.thresholds.MinSharpness,
		BrightnessGood: brightness > s.thresholds.MinBrightness && brightness < s.thresholds.MaxBrightness,
		FaceSizeGood:   faceSizePct > s.thresholds.MinFaceSizePct,
	}

	good := 0
	for _, ok := range []bool{r.SharpnessGood, r.BrightnessGood, r.FaceSizeGood} {
		if ok {
			good++
		}
	}
	r.Score = float64(good) / 3 * 100
	r.AllGood = good == 3
	return r
}

// LaplacianVariance is the population variance of the 4-neighbour Laplacian
// response, with borders mirrored without repeating the edge pixel.
func LaplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
	}

	n := float64(w * h)
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / n
	return math.Max(0, sumSq/n-mean*mean)
}

// MeanIntensity averages the luma of every pixel in g.
func MeanIntensity(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var sum float64
	for y := 0; y < h; y++ {
		for _, p := range g.Pix[y*g.Stride : y*g.Stride+w] {
			sum += float64(p)
		}
	}
	return sum / float64(w*h)
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}
