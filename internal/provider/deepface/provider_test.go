package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 0
	return NewProvider(config)
}

func TestProviderImplementsInterface(t *testing.T) {
	var _ provider.FaceProvider = (*Provider)(nil)
}

func TestProvider_DetectFaces(t *testing.T) {
	t.Run("maps facial areas and embeddings", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
				{Embedding: []float64{0.1, 0.2}, FacialArea: FacialArea{X: 5, Y: 6, W: 70, H: 80}, Confidence: 0.9},
				{Embedding: []float64{0.3, 0.4}, FacialArea: FacialArea{X: 100, Y: 6, W: 20, H: 20}, Confidence: 0.7},
			}})
		})

		faces, err := p.DetectFaces(context.Background(), []byte("image"))
		require.NoError(t, err)
		require.Len(t, faces, 2)
		assert.Equal(t, provider.Region{X: 5, Y: 6, Width: 70, Height: 80}, faces[0].Region)
		assert.Equal(t, []float64{0.1, 0.2}, faces[0].Embedding)
		assert.Equal(t, 0.7, faces[1].Confidence)
	})

	t.Run("no face answer becomes an empty result", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Face could not be detected. Please confirm that the picture is a face photo"}`))
		})

		faces, err := p.DetectFaces(context.Background(), []byte("image"))
		require.NoError(t, err)
		assert.Empty(t, faces)
	})

	t.Run("other failures are wrapped", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := p.DetectFaces(context.Background(), []byte("image"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	})
}

func TestProvider_Embed(t *testing.T) {
	t.Run("uses the embedding from detection", func(t *testing.T) {
		var calls atomic.Int32
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		face := provider.DetectedFace{Embedding: []float64{1, 2, 3}}
		got, err := p.Embed(context.Background(), []byte("image"), face)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, got)
		assert.Zero(t, calls.Load())

		got[0] = 99
		assert.Equal(t, 1.0, face.Embedding[0], "returned slice must be a copy")
	})

	t.Run("picks the overlapping face", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
				{Embedding: []float64{1}, FacialArea: FacialArea{X: 0, Y: 0, W: 10, H: 10}},
				{Embedding: []float64{2}, FacialArea: FacialArea{X: 50, Y: 50, W: 40, H: 40}},
			}})
		})

		face := provider.DetectedFace{Region: provider.Region{X: 55, Y: 55, Width: 30, Height: 30}}
		got, err := p.Embed(context.Background(), []byte("image"), face)
		require.NoError(t, err)
		assert.Equal(t, []float64{2}, got)
	})

	t.Run("no overlap", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
				{Embedding: []float64{1}, FacialArea: FacialArea{X: 0, Y: 0, W: 10, H: 10}},
			}})
		})

		face := provider.DetectedFace{Region: provider.Region{X: 500, Y: 500, Width: 30, Height: 30}}
		_, err := p.Embed(context.Background(), []byte("image"), face)
		assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
	})
}

func TestProvider_Landmarks(t *testing.T) {
	t.Run("largest face wins", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(LandmarksResponse{Results: []LandmarksResult{
				{FacialArea: FacialArea{W: 10, H: 10}, Landmarks: map[string][][2]float64{"chin": {{1, 1}}}},
				{FacialArea: FacialArea{W: 90, H: 90}, Landmarks: map[string][][2]float64{
					"chin":     {{3, 4}, {5, 6}},
					"nose_tip": {{7, 8}},
				}},
			}})
		})

		lm, err := p.Landmarks(context.Background(), []byte("image"))
		require.NoError(t, err)
		assert.Equal(t, []provider.Point{{X: 3, Y: 4}, {X: 5, Y: 6}}, lm["chin"])
		assert.Equal(t, []provider.Point{{X: 7, Y: 8}}, lm["nose_tip"])
	})

	t.Run("no faces", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(LandmarksResponse{})
		})

		lm, err := p.Landmarks(context.Background(), []byte("image"))
		require.NoError(t, err)
		assert.True(t, lm.Empty())
	})
}
