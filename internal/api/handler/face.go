package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

type FaceService interface {
	Verify(ctx context.Context, imageBytes []byte, claimedID string) (*domain.Verification, error)
	Register(ctx context.Context, imageBytes []byte, proposedID string) (*domain.Registration, error)
	ResetIdentities(ctx context.Context) (int, error)
}

type FaceHandler struct {
	service FaceService
	logger  *slog.Logger
}

func NewFaceHandler(service FaceService, logger *slog.Logger) *FaceHandler {
	return &FaceHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterResponse response for register endpoint
type RegisterResponse struct {
	FaceID  string               `json:"face_id"`
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Quality domain.QualityReport `json:"quality"`
}

type ResetResponse struct {
	Removed int `json:"removed"`
}

// Verify POST /api/v1/face/verify
func (h *FaceHandler) Verify(c *fiber.Ctx) error {
	req, imageBytes, err := parseImageRequest(c)
	if err != nil {
		return err
	}

	verification, err := h.service.Verify(c.UserContext(), imageBytes, req.UserID)
	if err != nil {
		return err
	}

	return c.JSON(verification)
}

// Register POST /api/v1/face/register
func (h *FaceHandler) Register(c *fiber.Ctx) error {
	req, imageBytes, err := parseImageRequest(c)
	if err != nil {
		return err
	}

	reg, err := h.service.Register(c.UserContext(), imageBytes, req.UserID)
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if reg.Status == domain.RegistrationNew {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(RegisterResponse{
		FaceID:  reg.IdentityID,
		Status:  string(reg.Status),
		Message: reg.Message,
		Quality: reg.Quality,
	})
}

// ResetIdentities DELETE /api/v1/admin/identities
func (h *FaceHandler) ResetIdentities(c *fiber.Ctx) error {
	removed, err := h.service.ResetIdentities(c.UserContext())
	if err != nil {
		return err
	}

	h.logger.Warn("identity table wiped", "removed", removed, "ip", c.IP())

	return c.JSON(ResetResponse{Removed: removed})
}
