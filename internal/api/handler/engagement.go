package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

type EngagementService interface {
	Predict(ctx context.Context, imageBytes []byte, identityID, sessionID string) (*domain.EngagementRecord, error)
	History(ctx context.Context, identityID, sessionID string) ([]domain.EngagementRecord, error)
	Feedback(ctx context.Context, identityID, sessionID string, fb domain.EngagementFeedback) (int, error)
}

type EngagementHandler struct {
	service EngagementService
}

func NewEngagementHandler(service EngagementService) *EngagementHandler {
	return &EngagementHandler{service: service}
}

// EngagementResponse omits the feature vector kept for retraining.
type EngagementResponse struct {
	Engagement float64   `json:"engagement"`
	Attention  float64   `json:"attention"`
	Timestamp  time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	UserID    string               `json:"user_id"`
	SessionID string               `json:"session_id"`
	Records   []EngagementResponse `json:"records"`
}

type FeedbackRequest struct {
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id"`
	Engagement float64 `json:"engagement"`
	Attention  float64 `json:"attention"`
}

type FeedbackResponse struct {
	Updated int `json:"updated"`
}

func toEngagementResponse(r domain.EngagementRecord) EngagementResponse {
	return EngagementResponse{
		Engagement: r.Engagement,
		Attention:  r.Attention,
		Timestamp:  r.Timestamp,
	}
}

// Predict POST /api/v1/engagement/predict
func (h *EngagementHandler) Predict(c *fiber.Ctx) error {
	req, imageBytes, err := parseImageRequest(c)
	if err != nil {
		return err
	}

	rec, err := h.service.Predict(c.UserContext(), imageBytes, req.UserID, req.SessionID)
	if err != nil {
		return err
	}

	return c.JSON(toEngagementResponse(*rec))
}

// History GET /api/v1/engagement/history/:user_id/:session_id
func (h *EngagementHandler) History(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	sessionID := c.Params("session_id")

	records, err := h.service.History(c.UserContext(), userID, sessionID)
	if err != nil {
		return err
	}

	resp := HistoryResponse{
		UserID:    userID,
		SessionID: sessionID,
		Records:   make([]EngagementResponse, 0, len(records)),
	}
	for _, r := range records {
		resp.Records = append(resp.Records, toEngagementResponse(r))
	}

	return c.JSON(resp)
}

// Feedback POST /api/v1/engagement/feedback
func (h *EngagementHandler) Feedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	n, err := h.service.Feedback(c.UserContext(), req.UserID, req.SessionID, domain.EngagementFeedback{
		Engagement: req.Engagement,
		Attention:  req.Attention,
	})
	if err != nil {
		return err
	}

	return c.JSON(FeedbackResponse{Updated: n})
}
