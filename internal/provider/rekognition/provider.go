package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
const maxImageSize = 5 * 1024 * 1024

// landmarkGroups folds Rekognition's landmark types into the named groups
// the anomaly features are computed over.
var landmarkGroups = map[string]string{
	"eyeLeft":           "left_eye",
	"leftEyeLeft":       "left_eye",
	"leftEyeRight":      "left_eye",
	"leftEyeUp":         "left_eye",
	"leftEyeDown":       "left_eye",
	"leftPupil":         "left_eye",
	"eyeRight":          "right_eye",
	"rightEyeLeft":      "right_eye",
	"rightEyeRight":     "right_eye",
	"rightEyeUp":        "right_eye",
	"rightEyeDown":      "right_eye",
	"rightPupil":        "right_eye",
	"leftEyeBrowLeft":   "left_eyebrow",
	"leftEyeBrowRight":  "left_eyebrow",
	"leftEyeBrowUp":     "left_eyebrow",
	"rightEyeBrowLeft":  "right_eyebrow",
	"rightEyeBrowRight": "right_eyebrow",
	"rightEyeBrowUp":    "right_eyebrow",
	"nose":              "nose",
	"noseLeft":          "nose",
	"noseRight":         "nose",
	"mouthLeft":         "mouth",
	"mouthRight":        "mouth",
	"mouthUp":           "mouth",
	"mouthDown":         "mouth",
	"upperJawlineLeft":  "jawline",
	"midJawlineLeft":    "jawline",
	"chinBottom":        "jawline",
	"midJawlineRight":   "jawline",
	"upperJawlineRight": "jawline",
}

// Provider detects faces and landmarks with AWS Rekognition. Rekognition does
// not expose embeddings, so it is paired with another Embedder.
type Provider struct {
	client      *Client
	auditLogger audit.Logger
}

type ProviderOption func(*Provider)

func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

var (
	_ provider.Detector          = (*Provider)(nil)
	_ provider.LandmarkExtractor = (*Provider)(nil)
)

func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return newProvider(client, opts...), nil
}

func newProvider(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// logAudit is fire-and-forget; audit failures never fail the call.
func (p *Provider) logAudit(ctx context.Context, eventType audit.EventType, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: eventType,
		Provider:  "rekognition",
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// imageSize validates the payload and returns its pixel dimensions, needed to
// turn Rekognition's ratio coordinates into pixels.
func imageSize(img []byte) (image.Point, error) {
	if len(img) == 0 {
		return image.Point{}, ErrInvalidImage
	}
	if len(img) > maxImageSize {
		return image.Point{}, fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(img), maxImageSize)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return image.Point{}, fmt.Errorf("%w: unsupported format %s", ErrInvalidImage, format)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

func (p *Provider) detect(ctx context.Context, img []byte, attrs []types.Attribute) ([]types.FaceDetail, image.Point, error) {
	size, err := imageSize(img)
	if err != nil {
		return nil, size, err
	}

	output, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: attrs,
	})
	if err != nil {
		mapped, noFace := parseAPIError(err)
		if noFace {
			return nil, size, nil
		}
		return nil, size, fmt.Errorf("detect faces: %w", mapped)
	}

	details := make([]types.FaceDetail, 0, len(output.FaceDetails))
	for _, d := range output.FaceDetails {
		if d.BoundingBox == nil || aws.ToFloat32(d.Confidence) < p.client.config.MinConfidence {
			continue
		}
		details = append(details, d)
	}
	return details, size, nil
}

// DetectFaces returns an empty slice if no faces are detected (not an error)
func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	details, size, err := p.detect(ctx, img, []types.Attribute{types.AttributeDefault})
	if err != nil {
		p.logAudit(ctx, audit.EventFaceDetected, false, err, nil)
		return nil, err
	}

	faces := make([]provider.DetectedFace, 0, len(details))
	for _, d := range details {
		faces = append(faces, provider.DetectedFace{
			Region:     toRegion(d.BoundingBox, size),
			Confidence: float64(aws.ToFloat32(d.Confidence)) / 100,
		})
	}

	p.logAudit(ctx, audit.EventFaceDetected, true, nil, map[string]string{
		"faces_count": fmt.Sprint(len(faces)),
	})
	return faces, nil
}

// Landmarks groups the landmarks of the largest detected face.
func (p *Provider) Landmarks(ctx context.Context, img []byte) (provider.Landmarks, error) {
	details, size, err := p.detect(ctx, img, []types.Attribute{types.AttributeAll})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return provider.Landmarks{}, nil
	}

	sort.SliceStable(details, func(i, j int) bool {
		return toRegion(details[i].BoundingBox, size).Area() > toRegion(details[j].BoundingBox, size).Area()
	})

	// Landmark order within a group follows the API response
	out := provider.Landmarks{}
	for _, lm := range details[0].Landmarks {
		group, ok := landmarkGroups[string(lm.Type)]
		if !ok || lm.X == nil || lm.Y == nil {
			continue
		}
		out[group] = append(out[group], provider.Point{
			X: float64(*lm.X) * float64(size.X),
			Y: float64(*lm.Y) * float64(size.Y),
		})
	}
	return out, nil
}

func toRegion(b *types.BoundingBox, size image.Point) provider.Region {
	left := float64(aws.ToFloat32(b.Left)) * float64(size.X)
	top := float64(aws.ToFloat32(b.Top)) * float64(size.Y)
	w := float64(aws.ToFloat32(b.Width)) * float64(size.X)
	h := float64(aws.ToFloat32(b.Height)) * float64(size.Y)

	r := image.Rect(int(left), int(top), int(left+w), int(top+h)).Intersect(image.Rect(0, 0, size.X, size.Y))
	return provider.Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
