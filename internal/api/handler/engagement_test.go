package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

type MockEngagementService struct {
	mock.Mock
}

func (m *MockEngagementService) Predict(ctx context.Context, imageBytes []byte, identityID, sessionID string) (*domain.EngagementRecord, error) {
	args := m.Called(ctx, imageBytes, identityID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EngagementRecord), args.Error(1)
}

func (m *MockEngagementService) History(ctx context.Context, identityID, sessionID string) ([]domain.EngagementRecord, error) {
	args := m.Called(ctx, identityID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EngagementRecord), args.Error(1)
}

func (m *MockEngagementService) Feedback(ctx context.Context, identityID, sessionID string, fb domain.EngagementFeedback) (int, error) {
	args := m.Called(ctx, identityID, sessionID, fb)
	return args.Int(0), args.Error(1)
}

var ts = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestEngagementHandler_Predict(t *testing.T) {
	svc := new(MockEngagementService)
	svc.On("Predict", mock.Anything, imageBytes, "alice", "s1").Return(&domain.EngagementRecord{
		Timestamp:  ts,
		Engagement: 0.7,
		Attention:  0.4,
		Features:   []float64{1, 2, 3},
	}, nil)

	h := NewEngagementHandler(svc)
	app := newTestApp()
	app.Post("/api/v1/engagement/predict", h.Predict)

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/engagement/predict", map[string]string{
		"face_data":  base64.StdEncoding.EncodeToString(imageBytes),
		"user_id":    "alice",
		"session_id": "s1",
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0.7, body["engagement"])
	assert.Equal(t, 0.4, body["attention"])
	assert.Equal(t, "2026-03-01T10:00:00Z", body["timestamp"])
	assert.NotContains(t, body, "features")
	svc.AssertExpectations(t)
}

func TestEngagementHandler_PredictNoLandmarks(t *testing.T) {
	svc := new(MockEngagementService)
	svc.On("Predict", mock.Anything, imageBytes, "alice", "s1").Return(nil, domain.ErrNoLandmarksDetected)

	h := NewEngagementHandler(svc)
	app := newTestApp()
	app.Post("/api/v1/engagement/predict", h.Predict)

	resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/engagement/predict", map[string]string{
		"face_data":  base64.StdEncoding.EncodeToString(imageBytes),
		"user_id":    "alice",
		"session_id": "s1",
	}))
	require.NoError(t, err)
	assert.Equal(t, 422, resp.StatusCode)
}

func TestEngagementHandler_History(t *testing.T) {
	svc := new(MockEngagementService)
	svc.On("History", mock.Anything, "alice", "s1").Return([]domain.EngagementRecord{
		{Timestamp: ts, Engagement: 0.5, Attention: 0.6},
		{Timestamp: ts.Add(time.Minute), Engagement: 0.8, Attention: 0.9},
	}, nil)
	svc.On("History", mock.Anything, "bob", "s1").Return([]domain.EngagementRecord(nil), nil)

	h := NewEngagementHandler(svc)
	app := newTestApp()
	app.Get("/api/v1/engagement/history/:user_id/:session_id", h.History)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/engagement/history/alice/s1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "alice", out.UserID)
	require.Len(t, out.Records, 2)
	assert.Equal(t, 0.8, out.Records[1].Engagement)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/engagement/history/bob/s1", nil))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, []interface{}{}, raw["records"])
}

func TestEngagementHandler_Feedback(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockEngagementService)
		body           FeedbackRequest
		expectedStatus int
		wantUpdated    int
	}{
		{
			name: "relabels session",
			body: FeedbackRequest{UserID: "alice", SessionID: "s1", Engagement: 1, Attention: 0.5},
			setupMock: func(m *MockEngagementService) {
				m.On("Feedback", mock.Anything, "alice", "s1", domain.EngagementFeedback{Engagement: 1, Attention: 0.5}).Return(4, nil)
			},
			expectedStatus: 200,
			wantUpdated:    4,
		},
		{
			name: "label out of range",
			body: FeedbackRequest{UserID: "alice", SessionID: "s1", Engagement: 2},
			setupMock: func(m *MockEngagementService) {
				m.On("Feedback", mock.Anything, "alice", "s1", domain.EngagementFeedback{Engagement: 2}).Return(0, domain.ErrValidationFailed)
			},
			expectedStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockEngagementService)
			tt.setupMock(svc)

			h := NewEngagementHandler(svc)
			app := newTestApp()
			app.Post("/api/v1/engagement/feedback", h.Feedback)

			resp, err := app.Test(jsonRequest(t, "POST", "/api/v1/engagement/feedback", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == 200 {
				var out FeedbackResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
				assert.Equal(t, tt.wantUpdated, out.Updated)
			}
			svc.AssertExpectations(t)
		})
	}
}
