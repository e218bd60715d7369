package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
)

// ModelKey is where the local model's weights are persisted.
const ModelKey = "engagement/model"

// DefaultInputDim covers a 68-point landmark schema as x, y pairs.
const DefaultInputDim = 136

const defaultLearningRate = 0.05

type logisticState struct {
	Dim       int          `json:"dim"`
	Weights   [2][]float64 `json:"weights"`
	Bias      [2]float64   `json:"bias"`
	Updates   int          `json:"updates"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// LogisticModel is a pair of logistic regressions, one per output, trained
// by stochastic gradient descent on cross-entropy. Inputs longer than the
// model's dimension are truncated; shorter ones are zero padded.
type LogisticModel struct {
	store        docstore.Store
	learningRate float64

	mu    sync.RWMutex
	state logisticState
}

func NewLogisticModel(store docstore.Store, dim int) *LogisticModel {
	if dim <= 0 {
		dim = DefaultInputDim
	}
	return &LogisticModel{
		store:        store,
		learningRate: defaultLearningRate,
		state:        newState(dim),
	}
}

func newState(dim int) logisticState {
	return logisticState{
		Dim:     dim,
		Weights: [2][]float64{make([]float64, dim), make([]float64, dim)},
	}
}

// Load restores persisted weights. An absent document leaves the untrained
// model, which predicts 0.5 for both outputs.
func (m *LogisticModel) Load(ctx context.Context) error {
	var st logisticState
	found, err := docstore.LoadJSON(ctx, m.store, ModelKey, &st)
	if err != nil {
		return fmt.Errorf("load engagement model: %w", err)
	}
	if !found {
		return nil
	}
	if st.Dim <= 0 || len(st.Weights[0]) != st.Dim || len(st.Weights[1]) != st.Dim {
		return errors.New("load engagement model: weights do not match dimension")
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return nil
}

func (m *LogisticModel) Predict(_ context.Context, features []float64) (Prediction, error) {
	if len(features) == 0 {
		return Prediction{}, errors.New("empty feature vector")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	x := m.fixed(features)
	return Prediction{
		Engagement: m.output(0, x),
		Attention:  m.output(1, x),
	}, nil
}

// Fit runs one pass over batch, then persists the weights.
func (m *LogisticModel) Fit(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, s := range batch {
		x := m.fixed(s.Features)
		targets := [2]float64{s.Label.Engagement, s.Label.Attention}
		for k := range targets {
			grad := m.output(k, x) - targets[k]
			for i, v := range x {
				m.state.Weights[k][i] -= m.learningRate * grad * v
			}
			m.state.Bias[k] -= m.learningRate * grad
		}
	}
	m.state.Updates++
	m.state.UpdatedAt = time.Now().UTC()
	snapshot := m.state
	snapshot.Weights = [2][]float64{
		append([]float64(nil), m.state.Weights[0]...),
		append([]float64(nil), m.state.Weights[1]...),
	}
	m.mu.Unlock()

	if err := docstore.SaveJSON(ctx, m.store, ModelKey, snapshot); err != nil {
		return fmt.Errorf("save engagement model: %w", err)
	}
	return nil
}

func (m *LogisticModel) fixed(features []float64) []float64 {
	x := make([]float64, m.state.Dim)
	copy(x, features)
	return x
}

func (m *LogisticModel) output(k int, x []float64) float64 {
	z := m.state.Bias[k]
	for i, v := range x {
		z += m.state.Weights[k][i] * v
	}
	return 1 / (1 + math.Exp(-z))
}
