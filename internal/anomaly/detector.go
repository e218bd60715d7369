package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/keylock"
)

// ReasonUnusualFeatures is reported for every flagged sample.
const ReasonUnusualFeatures = "Unusual facial features detected"

const saveTimeout = 5 * time.Second

type Config struct {
	WindowSize int
	MinSamples int
	Forest     Options
}

func DefaultConfig() Config {
	return Config{
		WindowSize: 10,
		MinSamples: 5,
		Forest:     DefaultOptions(),
	}
}

// Baseline is the persisted state of one identity. The forest is not stored;
// it is refitted from the window, which Fit reproduces exactly.
type Baseline struct {
	Window    [][]float64 `json:"window"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func baselineKey(identityID string) string {
	return "anomaly/" + identityID
}

// Detector owns every identity's baseline. Observations for one identity are
// serialized; different identities proceed in parallel.
type Detector struct {
	store  docstore.Store
	cfg    Config
	locks  *keylock.Map
	logger *slog.Logger

	mu        sync.Mutex
	baselines map[string]*Baseline
}

func NewDetector(store docstore.Store, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		store:     store,
		cfg:       cfg,
		locks:     keylock.New(),
		logger:    logger.With("component", "anomaly_detector"),
		baselines: make(map[string]*Baseline),
	}
}

// Observe appends features to the identity's window, refits on the window
// once it holds MinSamples vectors, and scores the new vector. Below
// MinSamples the result is always negative with zero confidence.
func (d *Detector) Observe(ctx context.Context, identityID string, features []float64) (domain.AnomalyResult, error) {
	unlock, err := d.locks.Lock(ctx, identityID)
	if err != nil {
		return domain.AnomalyResult{}, err
	}
	defer unlock()

	b, err := d.baseline(ctx, identityID)
	if err != nil {
		return domain.AnomalyResult{}, err
	}

	window := b.Window
	if len(window) > 0 && len(window[0]) != len(features) {
		d.logger.Warn("feature layout changed, resetting baseline",
			"identity_id", identityID,
			"previous_dims", len(window[0]),
			"dims", len(features),
		)
		window = nil
	}

	window = append(slices.Clone(window), slices.Clone(features))
	if excess := len(window) - d.cfg.WindowSize; excess > 0 {
		window = window[excess:]
	}

	result := domain.AnomalyResult{WindowSize: len(window)}
	if len(window) >= d.cfg.MinSamples {
		forest, err := Fit(window, d.cfg.Forest)
		if err != nil {
			return domain.AnomalyResult{}, fmt.Errorf("fit baseline: %w", err)
		}
		score := forest.Score(features)
		result.Confidence = math.Abs(score)
		if forest.Predict(features) == Outlier {
			reason := ReasonUnusualFeatures
			result.IsAnomaly = true
			result.Reason = &reason
		}
	}

	next := &Baseline{Window: window, UpdatedAt: time.Now().UTC()}
	d.mu.Lock()
	d.baselines[identityID] = next
	d.mu.Unlock()

	// The call already committed in memory; the write must not be cut short
	// by the caller going away.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := docstore.SaveJSON(saveCtx, d.store, baselineKey(identityID), next); err != nil {
		d.logger.Error("failed to persist baseline", "identity_id", identityID, "error", err)
	}

	return result, nil
}

// Window returns a copy of the identity's current window.
func (d *Detector) Window(ctx context.Context, identityID string) ([][]float64, error) {
	unlock, err := d.locks.Lock(ctx, identityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := d.baseline(ctx, identityID)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(b.Window))
	for i, v := range b.Window {
		out[i] = slices.Clone(v)
	}
	return out, nil
}

// baseline returns the cached baseline, loading it on first use. Callers
// hold the identity's lock.
func (d *Detector) baseline(ctx context.Context, identityID string) (*Baseline, error) {
	d.mu.Lock()
	b, ok := d.baselines[identityID]
	d.mu.Unlock()
	if ok {
		return b, nil
	}

	b = &Baseline{}
	if _, err := docstore.LoadJSON(ctx, d.store, baselineKey(identityID), b); err != nil {
		return nil, domain.ErrPersistenceFailure.WithError(err)
	}

	d.mu.Lock()
	d.baselines[identityID] = b
	d.mu.Unlock()
	return b, nil
}
