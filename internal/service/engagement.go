package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/engagement"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/imaging"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// EngagementLog is implemented by *engagement.Tracker.
type EngagementLog interface {
	Predict(ctx context.Context, identityID, sessionID string, features []float64) (domain.EngagementRecord, error)
	History(ctx context.Context, identityID, sessionID string) ([]domain.EngagementRecord, error)
	Train(ctx context.Context, identityID, sessionID string, feedback domain.EngagementFeedback) (int, error)
}

type EngagementService struct {
	landmarks provider.LandmarkExtractor
	tracker   EngagementLog
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngagementService(
	landmarks provider.LandmarkExtractor,
	tracker EngagementLog,
	m *metrics.Metrics,
	logger *slog.Logger,
) *EngagementService {
	return &EngagementService{
		landmarks: landmarks,
		tracker:   tracker,
		metrics:   m,
		logger:    logger.With("component", "engagement_service"),
	}
}

func validateSession(identityID, sessionID string) error {
	if err := validateID("user_id", identityID); err != nil {
		return err
	}
	return validateID("session_id", sessionID)
}

// Predict scores the image's landmarks and appends the result to the
// identity's session log.
func (s *EngagementService) Predict(ctx context.Context, imageBytes []byte, identityID, sessionID string) (rec *domain.EngagementRecord, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("predict_engagement", err, time.Since(start)) }()

	if err := validateSession(identityID, sessionID); err != nil {
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

	r, err := s.tracker.Predict(ctx, identityID, sessionID, engagement.Features(landmarks))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *EngagementService) History(ctx context.Context, identityID, sessionID string) ([]domain.EngagementRecord, error) {
	if err := validateSession(identityID, sessionID); err != nil {
		return nil, err
	}
	return s.tracker.History(ctx, identityID, sessionID)
}

// Feedback retrains the model on the session's recorded samples, all
// labelled with the corrected scores.
func (s *EngagementService) Feedback(ctx context.Context, identityID, sessionID string, fb domain.EngagementFeedback) (n int, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("engagement_feedback", err, time.Since(start)) }()

	if err := validateSession(identityID, sessionID); err != nil {
		return 0, err
	}
	for name, v := range map[string]float64{"engagement": fb.Engagement, "attention": fb.Attention} {
		if v < 0 || v > 1 {
			return 0, domain.ErrValidationFailed.WithError(fmt.Errorf("%s must be in [0, 1], got %v", name, v))
		}
	}

	n, err = s.tracker.Train(ctx, identityID, sessionID, fb)
	if err != nil {
		return 0, err
	}
	s.logger.Info("engagement feedback applied",
		"identity_id", identityID,
		"session_id", sessionID,
		"samples", n,
	)
	return n, nil
}
