package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/anomaly"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/imaging"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// BaselineObserver is implemented by *anomaly.Detector.
type BaselineObserver interface {
	Observe(ctx context.Context, identityID string, features []float64) (domain.AnomalyResult, error)
}

type AnomalyService struct {
	landmarks provider.LandmarkExtractor
	baselines BaselineObserver
	audit     audit.Logger
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAnomalyService(
	landmarks provider.LandmarkExtractor,
	baselines BaselineObserver,
	auditLogger audit.Logger,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AnomalyService {
	return &AnomalyService{
		landmarks: landmarks,
		baselines: baselines,
		audit:     auditLogger,
		metrics:   m,
		logger:    logger.With("component", "anomaly_service"),
	}
}

// Detect adds the image's landmark geometry to the identity's baseline and
// reports whether it is an outlier against it.
func (s *AnomalyService) Detect(ctx context.Context, imageBytes []byte, identityID, sessionID string) (result *domain.AnomalyResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("detect_anomaly", err, time.Since(start)) }()

	if err := validateID("user_id", identityID); err != nil {
		return nil, err
	}
	if _, err := imaging.Decode(imageBytes); err != nil {
		return nil, err
	}

	landmarks, err := s.landmarks.Landmarks(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("extract landmarks: %w", err)
	}
	if landmarks.Empty() {
		return nil, domain.ErrNoLandmarksDetected
	}

	features := anomaly.Features(landmarks)
	if len(features) == 0 {
		return nil, domain.ErrNoLandmarksDetected
	}

	res, err := s.baselines.Observe(ctx, identityID, features)
	if err != nil {
		return nil, fmt.Errorf("observe baseline: %w", err)
	}
	s.metrics.RecordAnomalyCheck(res.IsAnomaly)

	if err := s.audit.Log(ctx, audit.Event{
		EventType:  audit.EventAnomalyChecked,
		IdentityID: identityID,
		SessionID:  sessionID,
		Success:    true,
		Metadata: map[string]string{
			"is_anomaly":  fmt.Sprintf("%t", res.IsAnomaly),
			"window_size": fmt.Sprintf("%d", res.WindowSize),
		},
	}); err != nil {
		s.logger.Warn("audit log failed", "error", err)
	}

	return &res, nil
}
