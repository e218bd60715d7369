// Package engagement predicts engagement and attention from facial landmarks
// and keeps the per-identity, per-session prediction log.
package engagement

import "context"

// Prediction holds two independent scores in [0, 1].
type Prediction struct {
	Engagement float64 `json:"engagement"`
	Attention  float64 `json:"attention"`
}

// Sample is one labelled training example.
type Sample struct {
	Features []float64  `json:"features"`
	Label    Prediction `json:"label"`
}

// Model is a trainable regressor. Fit runs one incremental step over batch
// and leaves the model durable.
type Model interface {
	Predict(ctx context.Context, features []float64) (Prediction, error)
	Fit(ctx context.Context, batch []Sample) error
}
