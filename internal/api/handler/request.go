package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/imaging"
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
}

// imageRequest is the body shared by every image-bearing endpoint: either
// JSON with a base64 face_data or a multipart form with an image part.
type imageRequest struct {
	FaceData  string `json:"face_data" form:"face_data"`
	UserID    string `json:"user_id" form:"user_id"`
	SessionID string `json:"session_id" form:"session_id"`
}

func parseImageRequest(c *fiber.Ctx) (imageRequest, []byte, error) {
	var req imageRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req.UserID = strings.TrimSpace(c.FormValue("user_id"))
		req.SessionID = strings.TrimSpace(c.FormValue("session_id"))
		imageBytes, err := extractAndValidateImage(c)
		return req, imageBytes, err
	}

	if err := c.BodyParser(&req); err != nil {
		return req, nil, domain.ErrValidationFailed.WithError(err)
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.SessionID = strings.TrimSpace(req.SessionID)

	if req.FaceData == "" {
		return req, nil, domain.ErrValidationFailed.WithError(errors.New("face_data is required"))
	}
	imageBytes, err := imaging.DecodeBase64(req.FaceData)
	if err != nil {
		return req, nil, err
	}
	return req, imageBytes, nil
}

// extractAndValidateImage extracts and validates the image from the form
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("image is required"))
	}

	if file.Size == 0 || file.Size > imaging.MaxImageSize {
		return nil, domain.ErrInvalidImage.WithError(nil)
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(errors.New("unsupported content type " + contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}
