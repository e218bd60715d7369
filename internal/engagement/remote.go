package engagement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrModelUnavailable = errors.New("engagement model unavailable")

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL: "http://localhost:5010",
		Timeout: 10 * time.Second,
	}
}

// RemoteModel delegates to a model server exposing POST /predict and POST /fit.
// The server owns persistence of its weights.
type RemoteModel struct {
	httpClient *http.Client
	config     RemoteConfig
}

func NewRemoteModel(config RemoteConfig) *RemoteModel {
	return &RemoteModel{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type fitRequest struct {
	Samples []Sample `json:"samples"`
}

func (r *RemoteModel) Predict(ctx context.Context, features []float64) (Prediction, error) {
	var p Prediction
	if err := r.post(ctx, "/predict", predictRequest{Features: features}, &p); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

func (r *RemoteModel) Fit(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}
	return r.post(ctx, "/fit", fitRequest{Samples: batch}, nil)
}

func (r *RemoteModel) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
