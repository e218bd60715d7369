package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindInvalidImage:       fiber.StatusBadRequest,
	domain.KindValidation:         fiber.StatusBadRequest,
	domain.KindNoFaceDetected:     fiber.StatusUnprocessableEntity,
	domain.KindNoLandmarks:        fiber.StatusUnprocessableEntity,
	domain.KindIdentityConflict:   fiber.StatusConflict,
	domain.KindNotFound:           fiber.StatusNotFound,
	domain.KindUnauthorized:       fiber.StatusUnauthorized,
	domain.KindForbidden:          fiber.StatusForbidden,
	domain.KindRateLimited:        fiber.StatusTooManyRequests,
	domain.KindPersistenceFailure: fiber.StatusInternalServerError,
	domain.KindInternal:           fiber.StatusInternalServerError,
}

// StatusFor maps an error to the HTTP status the API answers it with.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	if status, ok := kindStatus[domain.KindOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "HTTP_ERROR",
					"message": fiberErr.Message,
				},
			})
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			status := StatusFor(appErr)
			if status >= fiber.StatusInternalServerError {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
				)
			}

			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    appErr.Code,
					"message": appErr.Message,
				},
			})
		}

		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "INTERNAL_ERROR",
				"message": "An unexpected error occurred",
			},
		})
	}
}
