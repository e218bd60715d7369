package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/auth"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

const (
	LocalSubject = "auth_subject"
	LocalRole    = "auth_role"
)

// TokenValidator is satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth rejects requests without a valid bearer token. Browsers cannot set
// headers on a websocket handshake, so a token query parameter is accepted too.
func Auth(validator TokenValidator, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return domain.ErrUnauthorized
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.Warn("invalid bearer token",
				"error", err,
				"path", c.Path(),
			)
			return domain.ErrUnauthorized
		}

		c.Locals(LocalSubject, claims.Subject)
		c.Locals(LocalRole, claims.Role)

		return c.Next()
	}
}

// RequireRole must be chained after Auth.
func RequireRole(role string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got, _ := c.Locals(LocalRole).(string)
		if got != role {
			logger.Warn("insufficient privileges", "role", got, "required", role)
			return domain.ErrForbidden
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
