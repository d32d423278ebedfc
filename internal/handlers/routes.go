package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/middleware"
	"github.com/theposch/mainstream-sub002/internal/models"
)

// Routes mounts the HTTP and websocket API.
type Routes struct {
	Feed      *FeedHandler
	Like      *LikeHandler
	WebSocket *WebSocketHandler
	Tokens    middleware.TokenParser

	AllowedOrigins string
	CSRFMode       string
	// LikeRateLimit is like/unlike calls per user per minute; 0 disables it.
	LikeRateLimit int
}

func (r Routes) likeLimiter() fiber.Handler {
	if r.LikeRateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        r.LikeRateLimit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid, err := httpx.LocalUUID(c, httpx.UserIDKey); err == nil {
				return "like:" + uid.String()
			}
			return c.IP()
		},
		LimitReached: httpx.TooManyRequests,
	})
}

func (r Routes) Mount(app *fiber.App) {
	api := app.Group("/api", middleware.OriginAllowed(r.AllowedOrigins))

	// Reads work anonymously; a token only adds the viewer's like state.
	optional := middleware.AuthOptional(r.Tokens)
	api.Get("/assets", optional, r.Feed.GetFeed)
	api.Get("/assets/:id/comments", optional, r.Feed.GetComments)
	api.Get("/engagement", optional, r.Like.GetEngagement)

	// Attached per route so unknown paths under /api still 404.
	auth := middleware.AuthRequired(r.Tokens)
	csrf := middleware.CSRFRequired(r.CSRFMode, r.AllowedOrigins)
	likes := r.likeLimiter()
	api.Post("/assets/:id/like", auth, csrf, likes, r.Like.Like(models.KindAsset))
	api.Delete("/assets/:id/like", auth, csrf, likes, r.Like.Unlike(models.KindAsset))
	api.Post("/comments/:id/like", auth, csrf, likes, r.Like.Like(models.KindComment))
	api.Delete("/comments/:id/like", auth, csrf, likes, r.Like.Unlike(models.KindComment))

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(r.AllowedOrigins),
		middleware.AuthOptional(r.Tokens),
		r.WebSocket.Upgrade,
	)
	app.Get("/ws", websocket.New(r.WebSocket.HandleWebSocket))
}
