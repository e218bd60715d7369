package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/config"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider/rekognition"
)

// ProviderType defines supported face capability backends
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace sidecar (detection, embeddings, landmarks)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is AWS Rekognition (detection and landmarks only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock derives everything from the image hash, for dev/test
	ProviderTypeMock ProviderType = "mock"
)

// composite joins a detector/embedder with a landmark extractor that may come
// from a different backend.
type composite struct {
	provider.Detector
	provider.Embedder
	provider.LandmarkExtractor
}

// NewFaceProvider builds the provider from configuration.
//
// Environment variables:
//   - FACE_PROVIDER: "deepface" or "mock" (default: "deepface")
//   - LANDMARK_PROVIDER: "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace sidecar URL (default: "http://localhost:5005")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
func NewFaceProvider(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.FaceProvider, error) {
	var faces provider.FaceProvider

	switch ProviderType(cfg.FaceProvider) {
	case ProviderTypeDeepFace, "":
		faces = createDeepFaceProvider(cfg)
	case ProviderTypeMock:
		faces = mock.New()
	default:
		return nil, fmt.Errorf("unknown face provider: %s (supported: %s, %s)",
			cfg.FaceProvider, ProviderTypeDeepFace, ProviderTypeMock)
	}

	var landmarks provider.LandmarkExtractor

	switch ProviderType(cfg.LandmarkProvider) {
	case ProviderType(cfg.FaceProvider), "":
		return faces, nil
	case ProviderTypeDeepFace:
		landmarks = createDeepFaceProvider(cfg)
	case ProviderTypeMock:
		landmarks = mock.New()
	case ProviderTypeRekognition:
		prov, err := rekognition.NewProvider(ctx, rekognition.Config{
			Region:        cfg.AWSRegion,
			MinConfidence: rekognition.DefaultConfig().MinConfidence,
		}, rekognition.WithAuditLogger(auditLogger))
		if err != nil {
			return nil, fmt.Errorf("create rekognition provider: %w", err)
		}
		landmarks = prov
	default:
		return nil, fmt.Errorf("unknown landmark provider: %s (supported: %s, %s, %s)",
			cfg.LandmarkProvider, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}

	return &composite{
		Detector:          faces,
		Embedder:          faces,
		LandmarkExtractor: landmarks,
	}, nil
}

func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	return deepface.NewProvider(deepfaceConfig)
}
