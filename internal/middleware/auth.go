package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/pkg/response"
)

type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the collaborator JWT and stores the token subject
// in c.Locals("subject")
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Invalid or missing token")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid or missing token")
		}

		claims, err := parseJWT(parts[1], cfg.JWTSecret)
		if err != nil {
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}

func parseJWT(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
}

// WebhookApiKeyMiddleware validates the X-Api-Key header against
// WEBHOOK_API_KEY. Used by internal services calling the webhook surface.
func WebhookApiKeyMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-Api-Key")

		if apiKey == "" {
			return response.Unauthorized(c, "Missing API key header")
		}

		if cfg.WebhookApiKey == "" {
			return response.InternalServerError(c, "Webhook API key is not configured")
		}

		if apiKey != cfg.WebhookApiKey {
			return response.Unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}
