package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/identity"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/imaging"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/keylock"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/quality"
)

const (
	DefaultDistanceThreshold = 0.6
	saveTimeout              = 5 * time.Second

	enrollLockKey = "enrollment"
)

// IdentityStore is the identity table used by FaceService. *identity.Registry implements it.
type IdentityStore interface {
	Nearest(ctx context.Context, embedding []float64) (identity.Match, bool, error)
	Upsert(ctx context.Context, id string, embedding []float64, quality float64) error
	Get(id string) (domain.Identity, bool)
	Len() int
	Save(ctx context.Context) error
	Reset(ctx context.Context) (int, error)
}

// FaceRecognizer is the subset of provider capabilities FaceService needs.
type FaceRecognizer interface {
	provider.Detector
	provider.Embedder
}

type FaceService struct {
	provider   FaceRecognizer
	identities IdentityStore
	scorer     *quality.Scorer
	audit      audit.Logger
	metrics    *metrics.Metrics
	logger     *slog.Logger
	locks      *keylock.Map

	verifyThreshold float64
	enrollThreshold float64
}

func NewFaceService(
	faceProvider FaceRecognizer,
	identities IdentityStore,
	scorer *quality.Scorer,
	auditLogger audit.Logger,
	m *metrics.Metrics,
	logger *slog.Logger,
) *FaceService {
	return &FaceService{
		provider:        faceProvider,
		identities:      identities,
		scorer:          scorer,
		audit:           auditLogger,
		metrics:         m,
		logger:          logger.With("component", "face_service"),
		locks:           keylock.New(),
		verifyThreshold: DefaultDistanceThreshold,
		enrollThreshold: DefaultDistanceThreshold,
	}
}

func (s *FaceService) WithThresholds(verify, enroll float64) *FaceService {
	s.verifyThreshold = verify
	s.enrollThreshold = enroll
	return s
}

// probe is the primary face of an image and its embedding.
type probe struct {
	face      provider.DetectedFace
	embedding []float64
}

func (s *FaceService) primaryFace(ctx context.Context, imageBytes []byte) (probe, error) {
	faces, err := s.provider.DetectFaces(ctx, imageBytes)
	if err != nil {
		return probe{}, fmt.Errorf("detect faces: %w", err)
	}

	i := provider.Largest(faces)
	if i < 0 {
		return probe{}, domain.ErrNoFaceDetected
	}

	emb, err := s.provider.Embed(ctx, imageBytes, faces[i])
	if err != nil {
		return probe{}, fmt.Errorf("embed face: %w", err)
	}
	return probe{face: faces[i], embedding: emb}, nil
}

// Verify checks the image against the identity table and reports a match
// only when the nearest identity is within threshold and is the claimed one.
func (s *FaceService) Verify(ctx context.Context, imageBytes []byte, claimedID string) (result *domain.Verification, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("verify", err, time.Since(start)) }()

	if err := validateID("user_id", claimedID); err != nil {
		return nil, err
	}
	if _, err := imaging.Decode(imageBytes); err != nil {
		return nil, err
	}

	p, err := s.primaryFace(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	m, ok, err := s.identities.Nearest(ctx, p.embedding)
	if err != nil {
		return nil, fmt.Errorf("nearest identity: %w", err)
	}

	result = &domain.Verification{}
	if ok {
		result.Confidence = clamp01(1 - m.Distance)
		if m.Distance < s.verifyThreshold && m.ID == claimedID {
			matched := m.ID
			result.Match = true
			result.MatchedID = &matched
		}
	}
	result.LatencyMs = time.Since(start).Milliseconds()

	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventFaceVerified,
		IdentityID: claimedID,
		Success:    result.Match,
		Metadata: map[string]string{
			"confidence": fmt.Sprintf("%.4f", result.Confidence),
		},
	})

	return result, nil
}

// Register enrolls the face. A face already within the enrollment threshold
// of an identity replaces that identity's embedding only when its quality
// score is strictly higher. An empty proposedID gets a generated id.
func (s *FaceService) Register(ctx context.Context, imageBytes []byte, proposedID string) (result *domain.Registration, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("register", err, time.Since(start))
		if result != nil {
			s.metrics.RecordRegistration(result.Status)
		}
	}()

	if proposedID == "" {
		proposedID = uuid.NewString()
	}
	if err := validateID("user_id", proposedID); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	p, err := s.primaryFace(ctx, imageBytes)
	if err != nil {
		return nil, err
	}
	report := s.scorer.Assess(img, &p.face.Region)

	// The nearest-neighbour decision and the write it leads to must not
	// interleave with another enrollment, or two copies of one face could
	// both be registered as new.
	unlock, err := s.locks.Lock(ctx, enrollLockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target := proposedID
	m, ok, err := s.identities.Nearest(ctx, p.embedding)
	if err != nil {
		return nil, fmt.Errorf("nearest identity: %w", err)
	}
	matched := ok && m.Distance < s.enrollThreshold
	if matched {
		target = m.ID
	}

	existing, _ := s.identities.Get(target)
	switch {
	case !matched:
		// An existing proposedID that no longer resembles this face is
		// overwritten.
		result = &domain.Registration{
			Status:     domain.RegistrationNew,
			IdentityID: target,
			Message:    fmt.Sprintf("Face registered for user %s.", target),
		}
		s.upsert(ctx, target, p.embedding, report.Score)

	case report.Score > existing.QualityScore:
		result = &domain.Registration{
			Status:     domain.RegistrationUpdated,
			IdentityID: target,
			Message:    fmt.Sprintf("Face updated for user %s (better quality).", target),
		}
		s.upsert(ctx, target, p.embedding, report.Score)

	default:
		result = &domain.Registration{
			Status:     domain.RegistrationDuplicate,
			IdentityID: target,
			Message:    fmt.Sprintf("Face already registered for user %s with equal or better quality.", target),
		}
	}
	result.Quality = report

	s.persist(ctx)

	s.logAudit(ctx, audit.Event{
		EventType:  audit.EventFaceRegistered,
		IdentityID: target,
		Success:    true,
		Metadata: map[string]string{
			"status":        string(result.Status),
			"quality_score": fmt.Sprintf("%.2f", report.Score),
		},
	})

	return result, nil
}

// ProcessFrame matches every face in a streamed frame against the nearest
// enrolled identity.
func (s *FaceService) ProcessFrame(ctx context.Context, imageBytes []byte) (matches []domain.FrameMatch, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("process_frame", err, time.Since(start)) }()

	if _, err := imaging.Decode(imageBytes); err != nil {
		return nil, err
	}

	faces, err := s.provider.DetectFaces(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	matches = make([]domain.FrameMatch, 0, len(faces))
	for _, face := range faces {
		emb, err := s.provider.Embed(ctx, imageBytes, face)
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}

		m, ok, err := s.identities.Nearest(ctx, emb)
		if err != nil {
			return nil, fmt.Errorf("nearest identity: %w", err)
		}

		var fm domain.FrameMatch
		if ok {
			fm.Confidence = clamp01(1 - m.Distance)
			if m.Distance < s.verifyThreshold {
				id := m.ID
				fm.Matched = true
				fm.IdentityID = &id
			}
		}
		matches = append(matches, fm)
	}

	return matches, nil
}

// ResetIdentities wipes the identity table.
func (s *FaceService) ResetIdentities(ctx context.Context) (int, error) {
	removed, err := s.identities.Reset(ctx)

	s.logAudit(ctx, audit.Event{
		EventType: audit.EventIdentitiesWiped,
		Success:   err == nil,
		Metadata:  map[string]string{"removed": fmt.Sprintf("%d", removed)},
	})
	s.metrics.SetIdentities(s.identities.Len())

	return removed, err
}

func (s *FaceService) upsert(ctx context.Context, id string, embedding []float64, score float64) {
	if err := s.identities.Upsert(ctx, id, embedding, score); err != nil {
		s.logger.Error("failed to index identity", "identity_id", id, "error", err)
	}
	s.metrics.SetIdentities(s.identities.Len())
}

// persist saves the identity table. Failures are logged; the in-memory table
// stays authoritative until the next successful save.
func (s *FaceService) persist(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.identities.Save(saveCtx); err != nil {
		s.logger.Error("failed to persist identities", "error", err)
	}
}

func (s *FaceService) logAudit(ctx context.Context, event audit.Event) {
	if event.Provider == "" {
		event.Provider = fmt.Sprintf("%T", s.provider)
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("audit log failed", "event_type", event.EventType, "error", err)
	}
}
