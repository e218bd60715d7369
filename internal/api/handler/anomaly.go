package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

type AnomalyService interface {
	Detect(ctx context.Context, imageBytes []byte, identityID, sessionID string) (*domain.AnomalyResult, error)
}

type AnomalyHandler struct {
	service AnomalyService
}

func NewAnomalyHandler(service AnomalyService) *AnomalyHandler {
	return &AnomalyHandler{service: service}
}

// Detect POST /api/v1/anomaly/detect
func (h *AnomalyHandler) Detect(c *fiber.Ctx) error {
	req, imageBytes, err := parseImageRequest(c)
	if err != nil {
		return err
	}

	result, err := h.service.Detect(c.UserContext(), imageBytes, req.UserID, req.SessionID)
	if err != nil {
		return err
	}

	return c.JSON(result)
}
