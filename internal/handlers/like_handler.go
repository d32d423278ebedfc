package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/service"
	"github.com/theposch/mainstream-sub002/internal/validation"
	"go.uber.org/zap"
)

type LikeHandler struct {
	likeService       *service.LikeService
	engagementService *service.EngagementService
	logger            *zap.Logger
}

func NewLikeHandler(likeService *service.LikeService, engagementService *service.EngagementService, logger *zap.Logger) *LikeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LikeHandler{likeService: likeService, engagementService: engagementService, logger: logger}
}

// Like returns a handler for POST /api/{assets,comments}/:id/like.
func (h *LikeHandler) Like(kind models.EntityKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := httpx.LocalUUID(c, httpx.UserIDKey)
		if err != nil {
			return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
		}
		id, err := validation.ParseUUID(c.Params("id"))
		if err != nil {
			return httpx.BadRequest(c, "invalid_id", "Invalid id")
		}

		result, err := h.likeService.Like(c.UserContext(), kind, id, userID)
		if err != nil {
			h.logMutationError("like", kind, err)
			return httpx.FromError(c, err)
		}
		return c.JSON(result)
	}
}

// Unlike returns a handler for DELETE /api/{assets,comments}/:id/like.
func (h *LikeHandler) Unlike(kind models.EntityKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := httpx.LocalUUID(c, httpx.UserIDKey)
		if err != nil {
			return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
		}
		id, err := validation.ParseUUID(c.Params("id"))
		if err != nil {
			return httpx.BadRequest(c, "invalid_id", "Invalid id")
		}

		result, err := h.likeService.Unlike(c.UserContext(), kind, id, userID)
		if err != nil {
			h.logMutationError("unlike", kind, err)
			return httpx.FromError(c, err)
		}
		return c.JSON(result)
	}
}

func (h *LikeHandler) logMutationError(action string, kind models.EntityKind, err error) {
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrSelfLike) {
		return
	}
	h.logger.Error("like mutation failed", zap.String("action", action), zap.String("kind", string(kind)), zap.Error(err))
}

type engagementResponse struct {
	Records []models.EngagementRecord `json:"records"`
}

// GetEngagement serves GET /api/engagement?kind=&ids=a,b,c
func (h *LikeHandler) GetEngagement(c *fiber.Ctx) error {
	kind, ids, err := validation.ParseEngagementQuery(c.Query("kind"), c.Query("ids"))
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrInvalidKind):
			return httpx.BadRequest(c, "invalid_kind", "kind must be asset or comment")
		case errors.Is(err, validation.ErrTooManyIDs):
			return httpx.BadRequest(c, "too_many_ids", "at most 100 ids per request")
		case errors.Is(err, validation.ErrMissingIDs):
			return httpx.BadRequest(c, "missing_ids", "ids is required")
		}
		return httpx.BadRequest(c, "invalid_id", "ids must be uuids")
	}

	records, err := h.engagementService.Records(c.UserContext(), kind, ids, httpx.Viewer(c))
	if err != nil {
		h.logger.Error("engagement lookup failed", zap.Error(err))
		return httpx.FromError(c, err)
	}
	return c.JSON(engagementResponse{Records: records})
}
