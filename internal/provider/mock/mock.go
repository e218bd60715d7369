package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

const EmbeddingDimension = 128

// Provider implementa provider.FaceProvider para testes e desenvolvimento.
// Every decodable image holds one centred face; the embedding and landmarks
// are derived from the image hash, so the same bytes always resolve to the
// same identity.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	region, err := centredRegion(img)
	if err != nil {
		return nil, err
	}

	return []provider.DetectedFace{
		{
			Region:     region,
			Confidence: 0.99,
		},
	}, nil
}

func (p *Provider) Embed(ctx context.Context, img []byte, face provider.DetectedFace) ([]float64, error) {
	if len(img) == 0 {
		return nil, domain.ErrInvalidImage
	}
	return generateEmbedding(img), nil
}

// Landmarks gera pontos determinísticos a partir do hash da imagem.
func (p *Provider) Landmarks(ctx context.Context, img []byte) (provider.Landmarks, error) {
	region, err := centredRegion(img)
	if err != nil {
		return nil, err
	}

	rng := newHashRand(img)
	out := make(provider.Landmarks, len(schema))
	for _, g := range schema {
		pts := make([]provider.Point, g.points)
		for i := range pts {
			// anchor on a fixed template, jitter by up to 2% of the face
			fx := g.x + g.dx*float64(i) + (rng.next()-0.5)*0.04
			fy := g.y + g.dy*float64(i) + (rng.next()-0.5)*0.04
			pts[i] = provider.Point{
				X: float64(region.X) + fx*float64(region.Width),
				Y: float64(region.Y) + fy*float64(region.Height),
			}
		}
		out[g.name] = pts
	}
	return out, nil
}

// schema mirrors the 68-point layout: group name, point count, start and step
// as fractions of the face box.
var schema = []struct {
	name   string
	points int
	x, y   float64
	dx, dy float64
}{
	{"chin", 17, 0.05, 0.45, 0.056, 0.02},
	{"left_eyebrow", 5, 0.15, 0.25, 0.06, 0},
	{"right_eyebrow", 5, 0.60, 0.25, 0.06, 0},
	{"nose_bridge", 4, 0.50, 0.35, 0, 0.06},
	{"nose_tip", 5, 0.40, 0.62, 0.05, 0},
	{"left_eye", 6, 0.20, 0.38, 0.03, 0},
	{"right_eye", 6, 0.62, 0.38, 0.03, 0},
	{"top_lip", 12, 0.30, 0.75, 0.035, 0},
	{"bottom_lip", 12, 0.30, 0.82, 0.035, 0},
}

func centredRegion(img []byte) (provider.Region, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return provider.Region{}, domain.ErrInvalidImage.WithError(err)
	}

	return provider.Region{
		X:      cfg.Width / 10,
		Y:      cfg.Height / 10,
		Width:  cfg.Width * 8 / 10,
		Height: cfg.Height * 8 / 10,
	}, nil
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(img []byte) []float64 {
	hash := sha256.Sum256(img)
	embedding := make([]float64, EmbeddingDimension)

	for i := range embedding {
		embedding[i] = (float64(hash[i%len(hash)])/255.0)*2 - 1
	}

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

// hashRand is a splitmix64 stream seeded from the image hash.
type hashRand struct{ state uint64 }

func newHashRand(img []byte) *hashRand {
	hash := sha256.Sum256(img)
	return &hashRand{state: binary.LittleEndian.Uint64(hash[:8])}
}

func (r *hashRand) next() float64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11) / float64(1<<53)
}

var _ provider.FaceProvider = (*Provider)(nil)
