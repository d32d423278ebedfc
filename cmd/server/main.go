package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/theposch/mainstream-sub002/internal/cache"
	"github.com/theposch/mainstream-sub002/internal/config"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/handlers"
	"github.com/theposch/mainstream-sub002/internal/handlers/ws"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/logging"
	"github.com/theposch/mainstream-sub002/internal/metrics"
	"github.com/theposch/mainstream-sub002/internal/middleware"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"github.com/theposch/mainstream-sub002/internal/repository"
	"github.com/theposch/mainstream-sub002/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := repository.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Redis is optional: without it counts are uncached and change events
	// stay within this process.
	var redisCache *cache.RedisCache
	if cfg.RedisEnabled() {
		redisCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			log.Warn("redis connection failed, running without cache", zap.Error(err))
			redisCache.Close()
			redisCache = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		}
		cancel()
	}

	collector := metrics.NewCollector("feed")

	broker := realtime.NewBroker(redisCache, log.Named("broker"), collector)
	go func() {
		if err := broker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("change channel stopped", zap.Error(err))
		}
	}()
	hub := ws.NewHub(broker, log.Named("ws"))
	go hub.Run(ctx)

	// Initialize repositories
	assetRepo := repository.NewAssetRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	likeRepo := repository.NewLikeRepository(db)

	// Initialize services
	planner := feed.NewPlanner(cfg.Feed.DefaultLimit, cfg.Feed.MaxLimit, log.Named("planner"))
	counts := service.NewCountService(likeRepo, cache.NewCountCache(redisCache, cfg.Feed.CountCacheTTL), collector, log)
	feedService := service.NewFeedService(assetRepo, likeRepo, counts, planner, collector, log)
	commentService := service.NewCommentService(assetRepo, commentRepo, likeRepo, counts, planner, collector, log)
	likeService := service.NewLikeService(assetRepo, commentRepo, likeRepo, counts, broker, collector, log)
	engagementService := service.NewEngagementService(likeRepo, counts)
	tokens := service.NewTokenService(cfg.JWTSecret, service.DefaultTokenTTL)

	app := fiber.New(fiber.Config{
		AppName:      "Feed Engagement Backend",
		ErrorHandler: errorHandler(log),
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(collector.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		AllowCredentials: cfg.AllowedOrigins != "" && cfg.AllowedOrigins != "*",
	}))

	handlers.Routes{
		Feed:           handlers.NewFeedHandler(feedService, commentService, log),
		Like:           handlers.NewLikeHandler(likeService, engagementService, log),
		WebSocket:      handlers.NewWebSocketHandler(hub, log.Named("ws"), cfg.Log.Level == "debug"),
		Tokens:         tokens,
		AllowedOrigins: cfg.AllowedOrigins,
		CSRFMode:       cfg.CSRFMode,
		LikeRateLimit:  cfg.Feed.LikeRateLimit,
	}.Mount(app)

	app.Get("/metrics", collector.Handler())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status":       "ok",
			"redis":        redisCache != nil,
			"ws_clients":   hub.Count(),
			"feed_watches": broker.SubscriberCount(realtime.AssetScope()),
		}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status["status"] = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		return c.JSON(status)
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
	if redisCache != nil {
		redisCache.Close()
	}
}

// errorHandler renders errors that escape handlers in the API error envelope.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return httpx.Error(c, fe.Code, "http_error", fe.Message)
		}
		log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return httpx.Internal(c, "internal_error")
	}
}
