package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/anomaly"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

func newAnomalyService(lm *MockLandmarkExtractor) *AnomalyService {
	detector := anomaly.NewDetector(docstore.NewMemory(), anomaly.DefaultConfig(), discardLogger())
	return NewAnomalyService(lm, detector, &audit.NoOpLogger{}, metrics.New(), discardLogger())
}

func eyeLandmarks(spread float64) provider.Landmarks {
	return provider.Landmarks{
		"left_eye":  {{X: 10, Y: 10}, {X: 10 + spread, Y: 10}, {X: 10, Y: 10 + spread}},
		"right_eye": {{X: 40, Y: 10}, {X: 40 + spread, Y: 10}},
	}
}

func TestAnomalyService_Detect(t *testing.T) {
	ctx := context.Background()

	t.Run("cold start never flags", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		img := sharpImage(t)
		svc := newAnomalyService(lm)

		for i, spread := range []float64{1, 50, 2, 90} {
			lm.On("Landmarks", mock.Anything, img).Return(eyeLandmarks(spread), nil).Once()

			got, err := svc.Detect(ctx, img, "U1", "S1")
			require.NoError(t, err)
			assert.False(t, got.IsAnomaly)
			assert.Nil(t, got.Reason)
			assert.Equal(t, i+1, got.WindowSize)
		}
	})

	t.Run("outlier after a stable baseline", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		img := sharpImage(t)
		svc := newAnomalyService(lm)

		for _, spread := range []float64{5, 5.01, 4.99, 5.02, 4.98} {
			lm.On("Landmarks", mock.Anything, img).Return(eyeLandmarks(spread), nil).Once()
			_, err := svc.Detect(ctx, img, "U1", "S1")
			require.NoError(t, err)
		}

		lm.On("Landmarks", mock.Anything, img).Return(eyeLandmarks(40), nil).Once()
		got, err := svc.Detect(ctx, img, "U1", "S1")
		require.NoError(t, err)
		assert.True(t, got.IsAnomaly)
		require.NotNil(t, got.Reason)
		assert.Equal(t, anomaly.ReasonUnusualFeatures, *got.Reason)
	})

	t.Run("no landmarks", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		img := sharpImage(t)
		lm.On("Landmarks", mock.Anything, img).Return(provider.Landmarks{}, nil)

		_, err := newAnomalyService(lm).Detect(ctx, img, "U1", "S1")
		assert.ErrorIs(t, err, domain.ErrNoLandmarksDetected)
	})

	t.Run("landmarks without any point pair", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		img := sharpImage(t)
		lm.On("Landmarks", mock.Anything, img).Return(provider.Landmarks{"nose": {{X: 1, Y: 1}}}, nil)

		_, err := newAnomalyService(lm).Detect(ctx, img, "U1", "S1")
		assert.ErrorIs(t, err, domain.ErrNoLandmarksDetected)
	})

	t.Run("extractor failure", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		img := sharpImage(t)
		lm.On("Landmarks", mock.Anything, img).Return(nil, errors.New("timeout"))

		_, err := newAnomalyService(lm).Detect(ctx, img, "U1", "S1")
		assert.ErrorContains(t, err, "timeout")
	})

	t.Run("invalid input", func(t *testing.T) {
		lm := &MockLandmarkExtractor{}
		svc := newAnomalyService(lm)

		_, err := svc.Detect(ctx, []byte{0xff, 0x00}, "U1", "S1")
		assert.ErrorIs(t, err, domain.ErrInvalidImage)

		_, err = svc.Detect(ctx, sharpImage(t), "../etc", "S1")
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
		lm.AssertNotCalled(t, "Landmarks", mock.Anything, mock.Anything)
	})
}
