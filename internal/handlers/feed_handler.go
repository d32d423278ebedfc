package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/service"
	"github.com/theposch/mainstream-sub002/internal/validation"
	"go.uber.org/zap"
)

type FeedHandler struct {
	feedService    *service.FeedService
	commentService *service.CommentService
	logger         *zap.Logger
}

func NewFeedHandler(feedService *service.FeedService, commentService *service.CommentService, logger *zap.Logger) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{feedService: feedService, commentService: commentService, logger: logger}
}

func pageRequest(c *fiber.Ctx) (service.PageRequest, error) {
	limit, err := validation.ParseLimit(c.Query("limit"))
	if err != nil {
		return service.PageRequest{}, err
	}
	return service.PageRequest{
		Cursor: c.Query("cursor"),
		Limit:  limit,
		Viewer: httpx.Viewer(c),
	}, nil
}

// GetFeed serves GET /api/assets?cursor=&limit=
func (h *FeedHandler) GetFeed(c *fiber.Ctx) error {
	req, err := pageRequest(c)
	if err != nil {
		return httpx.BadRequest(c, "invalid_limit", "limit must be an integer")
	}

	page, err := h.feedService.FetchPage(c.UserContext(), req)
	if err != nil {
		h.logger.Error("fetch feed page failed", zap.Error(err))
		return httpx.FromError(c, err)
	}
	return c.JSON(page)
}

// GetComments serves GET /api/assets/:id/comments?cursor=&limit=
func (h *FeedHandler) GetComments(c *fiber.Ctx) error {
	assetID, err := validation.ParseUUID(c.Params("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid_asset_id", "Invalid asset id")
	}
	req, err := pageRequest(c)
	if err != nil {
		return httpx.BadRequest(c, "invalid_limit", "limit must be an integer")
	}

	page, err := h.commentService.FetchComments(c.UserContext(), assetID, req)
	if err != nil {
		h.logger.Error("fetch comment page failed", zap.String("asset_id", assetID.String()), zap.Error(err))
		return httpx.FromError(c, err)
	}
	return c.JSON(page)
}
