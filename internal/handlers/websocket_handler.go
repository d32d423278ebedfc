package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/handlers/ws"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

const maxClientFrame = 4 << 10

type WebSocketHandler struct {
	hub    *ws.Hub
	logger *zap.Logger
	debug  bool
}

func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger, debug bool) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{hub: hub, logger: logger, debug: debug}
}

// GetHub returns the hub instance
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	var viewer *uuid.UUID
	if id, ok := c.Locals(httpx.UserIDKey).(uuid.UUID); ok && id != uuid.Nil {
		viewer = &id
	}
	logger := h.logger
	if viewer != nil {
		logger = logger.With(zap.String("user_id", viewer.String()))
	}

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := h.hub.Register(c, viewer, supportsGzip)
	defer h.hub.Unregister(client)

	c.SetReadLimit(maxClientFrame)
	c.SetReadDeadline(time.Now().Add(h.hub.PongTimeout()))
	c.SetPongHandler(func(string) error {
		h.hub.Touch(client)
		return c.SetReadDeadline(time.Now().Add(h.hub.PongTimeout()))
	})

	ctx := &ws.MessageContext{Client: client, Hub: h.hub, Logger: logger}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			logger.Debug("websocket read ended", zap.Error(err))
			break
		}
		h.hub.Touch(client)
		c.SetReadDeadline(time.Now().Add(h.hub.PongTimeout()))

		if h.debug {
			logger.Debug("ws_recv", zap.Int("frame_type", messageType), zap.Int("size", len(messageBytes)))
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.Inflate(messageBytes)
			if err != nil {
				h.hub.SendError(client, "", realtime.CodeInvalidFrame, "Failed to decompress frame")
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Decode(messageBytes)
		if err != nil {
			h.hub.SendError(client, "", realtime.CodeInvalidFrame, "Invalid frame")
			continue
		}

		if err := msg.Process(ctx); err != nil {
			logger.Debug("processing frame failed", zap.String("type", msg.FrameType()), zap.Error(err))
			break
		}
	}
}
