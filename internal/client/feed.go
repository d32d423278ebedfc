package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/theposch/mainstream-sub002/internal/engagement"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

const (
	feedBuffer     = 64
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 << 10
	subscribeReply = 10 * time.Second
)

func (c *Client) websocketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String()
}

// Subscribe opens a websocket for one scope and waits for the server to
// confirm the subscription.
func (c *Client) Subscribe(ctx context.Context, scope realtime.Scope) (engagement.Subscription, error) {
	header := http.Header{}
	if token := c.currentToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.websocketURL(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return nil, &transportError{Err: err}
	}
	conn.SetReadLimit(maxFrameSize)

	if err := confirmSubscription(ctx, conn, scope.Key()); err != nil {
		conn.Close()
		return nil, err
	}

	sub := &wsSubscription{
		conn:   conn,
		scope:  scope.Key(),
		events: make(chan []byte, feedBuffer),
		logger: c.logger.With(zap.String("scope", scope.Key())),
	}
	go sub.readLoop()
	return sub, nil
}

func confirmSubscription(ctx context.Context, conn *websocket.Conn, scope string) error {
	deadline := time.Now().Add(subscribeReply)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(realtime.Frame{Type: realtime.FrameSubscribe, Scope: scope}); err != nil {
		return &transportError{Err: err}
	}

	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		var frame realtime.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return &transportError{Err: err}
		}
		switch frame.Type {
		case realtime.FrameSubscribed:
			if frame.Scope == scope {
				return nil
			}
		case realtime.FrameError:
			var body realtime.ErrorPayload
			_ = json.Unmarshal(frame.Payload, &body)
			return &APIError{Status: http.StatusBadRequest, Code: body.Code, Message: body.Message}
		}
	}
}

type wsSubscription struct {
	conn   *websocket.Conn
	scope  string
	events chan []byte
	logger *zap.Logger

	writeMu sync.Mutex
	once    sync.Once
}

func (s *wsSubscription) Events() <-chan []byte { return s.events }

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteJSON(realtime.Frame{Type: realtime.FrameUnsubscribe, Scope: s.scope})
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// readLoop forwards change payloads until the connection ends. Closing
// events tells the multiplexer to resubscribe and resync.
func (s *wsSubscription) readLoop() {
	defer close(s.events)
	defer s.conn.Close()

	for {
		var frame realtime.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("change feed read ended", zap.Error(err))
			}
			return
		}

		switch frame.Type {
		case realtime.FrameChange:
			if frame.Scope != s.scope {
				continue
			}
			select {
			case s.events <- []byte(frame.Payload):
			default:
				// Falling behind loses events; drop the connection so the
				// multiplexer resyncs.
				s.logger.Warn("change feed consumer lagging, reconnecting")
				return
			}
		case realtime.FrameError:
			var body realtime.ErrorPayload
			_ = json.Unmarshal(frame.Payload, &body)
			s.logger.Warn("change feed error", zap.String("code", body.Code), zap.String("message", body.Message))
			if body.Code == realtime.CodeLagged {
				return
			}
		}
	}
}
