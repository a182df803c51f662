package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SigmaChatSync/pkg/utils"
)

var (
	ErrMissingAuthorization   = errors.New("missing authorization header")
	ErrMalformedAuthorization = errors.New("invalid authorization header format")
)

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header.
func BearerToken(c *fiber.Ctx) (string, error) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return "", ErrMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || scheme != "Bearer" || token == "" {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// AuthRequired stores user_id and role of a valid token in the locals.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := BearerToken(c)
		switch {
		case errors.Is(err, ErrMissingAuthorization):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		case err != nil:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil || claims.UserID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// RequireSharedSecret guards machine-to-machine endpoints. An empty secret
// disables the check.
func RequireSharedSecret(header, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" || subtle.ConstantTimeCompare([]byte(c.Get(header)), []byte(secret)) == 1 {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid shared secret"})
	}
}
