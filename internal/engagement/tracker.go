package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/keylock"
)

const saveTimeout = 5 * time.Second

func logKey(identityID, sessionID string) string {
	return "engagement/" + identityID + "/" + sessionID
}

// Tracker appends predictions to identity/session logs and feeds corrected
// labels back to the model.
type Tracker struct {
	store  docstore.Store
	model  Model
	locks  *keylock.Map
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	logs map[string][]domain.EngagementRecord
}

func NewTracker(store docstore.Store, model Model, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		model:  model,
		locks:  keylock.New(),
		logger: logger.With("component", "engagement_tracker"),
		now:    func() time.Time { return time.Now().UTC() },
		logs:   make(map[string][]domain.EngagementRecord),
	}
}

// Predict scores features with the model and records the result.
func (t *Tracker) Predict(ctx context.Context, identityID, sessionID string, features []float64) (domain.EngagementRecord, error) {
	p, err := t.model.Predict(ctx, features)
	if err != nil {
		return domain.EngagementRecord{}, fmt.Errorf("predict engagement: %w", err)
	}
	return t.Record(ctx, identityID, sessionID, features, p)
}

// Record appends a timestamped prediction and persists the log. A failed
// write is logged; the record stays in memory.
func (t *Tracker) Record(ctx context.Context, identityID, sessionID string, features []float64, p Prediction) (domain.EngagementRecord, error) {
	key := logKey(identityID, sessionID)
	unlock, err := t.locks.Lock(ctx, key)
	if err != nil {
		return domain.EngagementRecord{}, err
	}
	defer unlock()

	records, err := t.load(ctx, key)
	if err != nil {
		return domain.EngagementRecord{}, err
	}

	rec := domain.EngagementRecord{
		Timestamp:  t.now(),
		Engagement: p.Engagement,
		Attention:  p.Attention,
		Features:   slices.Clone(features),
	}
	records = append(slices.Clone(records), rec)

	t.mu.Lock()
	t.logs[key] = records
	t.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := docstore.SaveJSON(saveCtx, t.store, key, records); err != nil {
		t.logger.Error("failed to persist engagement log",
			"identity_id", identityID,
			"session_id", sessionID,
			"error", err,
		)
	}

	return rec, nil
}

// History returns the log in append order, empty when nothing was recorded.
func (t *Tracker) History(ctx context.Context, identityID, sessionID string) ([]domain.EngagementRecord, error) {
	key := logKey(identityID, sessionID)
	unlock, err := t.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := t.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return slices.Clone(records), nil
}

// Train labels every record of the session with feedback and runs one model
// step over them. It returns the number of samples used; zero when the
// session has no history.
func (t *Tracker) Train(ctx context.Context, identityID, sessionID string, feedback domain.EngagementFeedback) (int, error) {
	history, err := t.History(ctx, identityID, sessionID)
	if err != nil {
		return 0, err
	}

	label := Prediction{Engagement: feedback.Engagement, Attention: feedback.Attention}
	batch := make([]Sample, 0, len(history))
	for _, rec := range history {
		if len(rec.Features) == 0 {
			continue
		}
		batch = append(batch, Sample{Features: rec.Features, Label: label})
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := t.model.Fit(ctx, batch); err != nil {
		return 0, fmt.Errorf("train engagement model: %w", err)
	}

	t.logger.Info("engagement model updated",
		"identity_id", identityID,
		"session_id", sessionID,
		"samples", len(batch),
	)
	return len(batch), nil
}

// load returns the cached log, reading it from the store on first use.
// Callers hold the key's lock.
func (t *Tracker) load(ctx context.Context, key string) ([]domain.EngagementRecord, error) {
	t.mu.Lock()
	records, ok := t.logs[key]
	t.mu.Unlock()
	if ok {
		return records, nil
	}

	if _, err := docstore.LoadJSON(ctx, t.store, key, &records); err != nil {
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	t.mu.Lock()
	t.logs[key] = records
	t.mu.Unlock()
	return records, nil
}
