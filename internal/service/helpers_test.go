package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/identity"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/quality"
)

type MockFaceProvider struct {
	mock.Mock
}

func (m *MockFaceProvider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.DetectedFace), args.Error(1)
}

func (m *MockFaceProvider) Embed(ctx context.Context, image []byte, face provider.DetectedFace) ([]float64, error) {
	args := m.Called(ctx, image, face)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

type MockLandmarkExtractor struct {
	mock.Mock
}

func (m *MockLandmarkExtractor) Landmarks(ctx context.Context, image []byte) (provider.Landmarks, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Landmarks), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// encodePNG renders a size×size grayscale image from fill.
func encodePNG(t *testing.T, size int, fill func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// sharpImage passes all three quality checks; flatImage fails sharpness.
func sharpImage(t *testing.T) []byte {
	return encodePNG(t, 64, func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 255
		}
		return 0
	})
}

func flatImage(t *testing.T) []byte {
	return encodePNG(t, 64, func(int, int) uint8 { return 128 })
}

func fullFrame() provider.DetectedFace {
	return provider.DetectedFace{Region: provider.Region{Width: 64, Height: 64}, Confidence: 0.99}
}

type faceFixture struct {
	provider *MockFaceProvider
	registry *identity.Registry
	service  *FaceService
}

func newFaceFixture(store docstore.Store) *faceFixture {
	fp := &MockFaceProvider{}
	reg := identity.NewRegistry(store, identity.NewLinearIndex(), discardLogger())
	svc := NewFaceService(fp, reg, quality.NewScorer(quality.DefaultThresholds()), &audit.NoOpLogger{}, metrics.New(), discardLogger())
	return &faceFixture{provider: fp, registry: reg, service: svc}
}

// expectFace makes the provider find one full-frame face in img with embedding emb.
func (f *faceFixture) expectFace(img []byte, emb []float64) {
	face := fullFrame()
	f.provider.On("DetectFaces", mock.Anything, img).Return([]provider.DetectedFace{face}, nil).Once()
	f.provider.On("Embed", mock.Anything, img, face).Return(emb, nil).Once()
}
