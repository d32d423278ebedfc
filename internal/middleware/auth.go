package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/service"
)

// AccessCookie is read when no Authorization header is sent.
const AccessCookie = "feed_access"

// TokenParser verifies an access token.
type TokenParser interface {
	Parse(raw string) (*service.Claims, error)
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Cookies(AccessCookie), true
	}
	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func authenticate(c *fiber.Ctx, tokens TokenParser, raw string) error {
	claims, err := tokens.Parse(raw)
	if err != nil {
		return httpx.Unauthorized(c, "invalid_access_token", "Invalid or expired token")
	}
	viewer, err := claims.ViewerID()
	if err != nil {
		return httpx.Unauthorized(c, "invalid_access_token", "Invalid token")
	}
	c.Locals(httpx.UserIDKey, viewer)
	c.Locals("username", claims.Username)
	return c.Next()
}

func AuthRequired(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
		}
		if tokenString == "" {
			return httpx.Unauthorized(c, "missing_access_token", "Missing access token")
		}
		return authenticate(c, tokens, tokenString)
	}
}

// AuthOptional lets anonymous requests through. A token that is present but
// invalid is still rejected.
func AuthOptional(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
		}
		if tokenString == "" {
			return c.Next()
		}
		return authenticate(c, tokens, tokenString)
	}
}
