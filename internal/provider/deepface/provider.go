package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// Provider implements provider.FaceProvider on top of the DeepFace sidecar.
// Detection and embedding come from the same /represent call, so detected
// faces already carry their embedding.
type Provider struct {
	client *Client
}

func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(img))
	if err != nil {
		if isNoFaceError(err) {
			return []provider.DetectedFace{}, nil
		}
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		faces = append(faces, provider.DetectedFace{
			Region:     toRegion(result.FacialArea),
			Confidence: result.Confidence,
			Embedding:  result.Embedding,
		})
	}

	return faces, nil
}

// Embed returns the embedding computed during detection, or asks the sidecar
// again and picks the result overlapping face the most.
func (p *Provider) Embed(ctx context.Context, img []byte, face provider.DetectedFace) ([]float64, error) {
	if len(face.Embedding) > 0 {
		out := make([]float64, len(face.Embedding))
		copy(out, face.Embedding)
		return out, nil
	}

	faces, err := p.DetectFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	best, bestOverlap := -1, 0
	for i, f := range faces {
		overlap := f.Region.Rect().Intersect(face.Region.Rect())
		if area := overlap.Dx() * overlap.Dy(); area > bestOverlap {
			best, bestOverlap = i, area
		}
	}
	if best < 0 || len(faces[best].Embedding) == 0 {
		return nil, domain.ErrNoFaceDetected
	}

	return faces[best].Embedding, nil
}

// Landmarks returns the landmark groups of the largest face in the image.
func (p *Provider) Landmarks(ctx context.Context, img []byte) (provider.Landmarks, error) {
	resp, err := p.client.Landmarks(ctx, base64.StdEncoding.EncodeToString(img))
	if err != nil {
		if isNoFaceError(err) {
			return provider.Landmarks{}, nil
		}
		return nil, fmt.Errorf("landmarks: %w", err)
	}

	best, bestArea := -1, -1
	for i, r := range resp.Results {
		if area := r.FacialArea.W * r.FacialArea.H; area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return provider.Landmarks{}, nil
	}

	out := make(provider.Landmarks, len(resp.Results[best].Landmarks))
	for group, pts := range resp.Results[best].Landmarks {
		points := make([]provider.Point, len(pts))
		for i, pt := range pts {
			points[i] = provider.Point{X: pt[0], Y: pt[1]}
		}
		out[group] = points
	}
	return out, nil
}

func toRegion(a FacialArea) provider.Region {
	r := image.Rect(a.X, a.Y, a.X+a.W, a.Y+a.H)
	return provider.Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

var _ provider.FaceProvider = (*Provider)(nil)
