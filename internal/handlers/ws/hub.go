package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 90 * time.Second
	MaxSubscriptions    = 32

	writeWait       = 10 * time.Second
	gzipMinimumSize = 512
)

var ErrClientClosed = errors.New("client connection closed")

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ClientConnection wraps a WebSocket connection with metadata
type ClientConnection struct {
	Conn         Conn
	Viewer       *uuid.UUID
	SupportsGzip bool
	CloseChan    chan struct{}

	mu       sync.Mutex
	lastPong time.Time
	subs     map[string]*realtime.Subscription
	closed   bool

	writeMu sync.Mutex
}

func (c *ClientConnection) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *ClientConnection) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

// Scopes returns the scope keys the client is subscribed to.
func (c *ClientConnection) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	return keys
}

// Hub manages all active WebSocket connections and their scope subscriptions.
type Hub struct {
	broker  *realtime.Broker
	logger  *zap.Logger
	clients map[*ClientConnection]struct{}

	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewHub creates a new Hub instance
func NewHub(broker *realtime.Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broker:       broker,
		logger:       logger,
		clients:      make(map[*ClientConnection]struct{}),
		pingInterval: DefaultPingInterval,
		pongTimeout:  DefaultPongTimeout,
	}
}

func (h *Hub) PongTimeout() time.Duration { return h.pongTimeout }

// Register adds a client connection and starts its ping routine.
func (h *Hub) Register(conn Conn, viewer *uuid.UUID, supportsGzip bool) *ClientConnection {
	client := &ClientConnection{
		Conn:         conn,
		Viewer:       viewer,
		SupportsGzip: supportsGzip,
		CloseChan:    make(chan struct{}),
		lastPong:     time.Now(),
		subs:         make(map[string]*realtime.Subscription),
	}

	h.clientsMux.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.clientsMux.Unlock()

	go h.pingRoutine(client)

	h.logger.Debug("client connected to hub", zap.Int("total", total), zap.Bool("gzip", supportsGzip))
	return client
}

// Unregister drops the client and every subscription it holds. Safe to call
// more than once.
func (h *Hub) Unregister(client *ClientConnection) {
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return
	}
	client.closed = true
	subs := client.subs
	client.subs = map[string]*realtime.Subscription{}
	close(client.CloseChan)
	client.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	h.clientsMux.Lock()
	delete(h.clients, client)
	total := len(h.clients)
	h.clientsMux.Unlock()
	h.logger.Debug("client disconnected from hub", zap.Int("total", total))
}

// Touch records a pong from client.
func (h *Hub) Touch(client *ClientConnection) {
	client.touch()
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// Subscribe attaches client to scope and confirms with a subscribed frame.
// Subscribing to a scope twice is confirmed again without a second
// subscription.
func (h *Hub) Subscribe(client *ClientConnection, key string) error {
	scope, err := realtime.ParseScope(key)
	if err != nil {
		return h.Send(client, realtime.ErrorFrame(key, realtime.CodeInvalidScope, "unknown scope"))
	}
	key = scope.Key()

	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return ErrClientClosed
	}
	if _, ok := client.subs[key]; ok {
		client.mu.Unlock()
		return h.Send(client, realtime.Frame{Type: realtime.FrameSubscribed, Scope: key})
	}
	if len(client.subs) >= MaxSubscriptions {
		client.mu.Unlock()
		return h.Send(client, realtime.ErrorFrame(key, realtime.CodeTooManySubs, "subscription limit reached"))
	}
	sub := h.broker.Subscribe(scope)
	client.subs[key] = sub
	client.mu.Unlock()

	if err := h.Send(client, realtime.Frame{Type: realtime.FrameSubscribed, Scope: key}); err != nil {
		return err
	}
	go h.forward(client, key, sub)
	return nil
}

// Unsubscribe detaches client from scope. Unknown scopes are acknowledged.
func (h *Hub) Unsubscribe(client *ClientConnection, key string) error {
	if scope, err := realtime.ParseScope(key); err == nil {
		key = scope.Key()
	}
	client.mu.Lock()
	sub, ok := client.subs[key]
	delete(client.subs, key)
	client.mu.Unlock()
	if ok {
		sub.Close()
	}
	return h.Send(client, realtime.Frame{Type: realtime.FrameUnsubscribed, Scope: key})
}

// forward writes change frames for one subscription. When the broker cuts a
// lagging subscription off, the client is told so it can resync.
func (h *Hub) forward(client *ClientConnection, key string, sub *realtime.Subscription) {
	for ev := range sub.Events() {
		frame, err := realtime.ChangeFrame(key, ev)
		if err != nil {
			h.logger.Warn("dropping unencodable change event", zap.Error(err))
			continue
		}
		if err := h.Send(client, frame); err != nil {
			h.logger.Debug("change delivery failed", zap.String("scope", key), zap.Error(err))
			h.Unregister(client)
			return
		}
	}

	client.mu.Lock()
	lagged := !client.closed && client.subs[key] == sub
	if lagged {
		delete(client.subs, key)
	}
	client.mu.Unlock()
	if lagged {
		h.Send(client, realtime.ErrorFrame(key, realtime.CodeLagged, "subscription fell behind, resubscribe and resync"))
	}
}

// Send writes one frame, gzip-compressed when the client asked for it and
// the frame is large enough to benefit.
func (h *Hub) Send(client *ClientConnection, frame realtime.Frame) error {
	jsonData, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	finalData := jsonData
	frameType := websocket.TextMessage
	if client.SupportsGzip && len(jsonData) > gzipMinimumSize {
		compressed, err := gzipFrame(jsonData)
		if err == nil && len(compressed) < len(jsonData) {
			finalData = compressed
			frameType = websocket.BinaryMessage
		}
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return client.Conn.WriteMessage(frameType, finalData)
}

// SendError tells client that a frame could not be handled. scope is empty
// for frames that never got as far as naming one.
func (h *Hub) SendError(client *ClientConnection, scope, code, message string) error {
	return h.Send(client, realtime.ErrorFrame(scope, code, message))
}

// pingRoutine sends periodic ping messages to keep connection alive
func (h *Hub) pingRoutine(client *ClientConnection) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.CloseChan:
			return
		case <-ticker.C:
			client.writeMu.Lock()
			err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			client.writeMu.Unlock()
			if err != nil {
				h.logger.Debug("ping failed", zap.Error(err))
				h.Unregister(client)
				client.Conn.Close()
				return
			}
		}
	}
}

// Run removes connections that stopped answering pings until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

func (h *Hub) sweep(now time.Time) int {
	h.clientsMux.RLock()
	dead := make([]*ClientConnection, 0)
	for client := range h.clients {
		if now.Sub(client.LastPong()) > h.pongTimeout {
			dead = append(dead, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range dead {
		h.logger.Info("removing dead connection (no pong received)")
		h.Unregister(client)
		client.Conn.Close()
	}
	return len(dead)
}
