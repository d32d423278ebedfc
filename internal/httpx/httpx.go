package httpx

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/service"
)

// UserIDKey is the Locals key the auth middleware stores the viewer id under.
const UserIDKey = "userID"

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

func NotFound(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusNotFound, code, message)
}

func TooManyRequests(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, "rate_limited", "Too many requests")
}

func ServiceUnavailable(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, code, message)
}

// FromError maps service errors onto the envelope. Unknown errors are 500s.
func FromError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return NotFound(c, "not_found", "Resource not found")
	case errors.Is(err, service.ErrSelfLike):
		return BadRequest(c, "self_like", "Cannot like your own content")
	case errors.Is(err, service.ErrInvalidKind):
		return BadRequest(c, "invalid_kind", "Unknown entity kind")
	case errors.Is(err, feed.ErrTransientFetch):
		return ServiceUnavailable(c, "fetch_failed", "Temporarily unavailable, retry later")
	}
	return Internal(c, "internal_error")
}

func LocalUUID(c *fiber.Ctx, key string) (uuid.UUID, error) {
	v := c.Locals(key)
	if v == nil {
		return uuid.Nil, fmt.Errorf("missing local %s", key)
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid local %s", key)
	}
	return id, nil
}

// Viewer returns the authenticated user id, or nil for anonymous requests.
func Viewer(c *fiber.Ctx) *uuid.UUID {
	id, err := LocalUUID(c, UserIDKey)
	if err != nil {
		return nil
	}
	return &id
}
