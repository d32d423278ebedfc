// Package client talks to the feed server over HTTP and websockets. A Client
// is the engagement.Source, engagement.ChangeFeed and engagement.Identity of
// a viewing session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"github.com/theposch/mainstream-sub002/internal/engagement"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/models"
	"go.uber.org/zap"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = gobreaker.NewCircuitBreaker(settings) }
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	retry   RetryConfig
	breaker *gobreaker.CircuitBreaker
	dialer  *websocket.Dialer
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   DefaultRetryConfig(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings(c.logger))
	}
	return c, nil
}

func defaultBreakerSettings(logger *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "feed-api",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Definitive rejections say nothing about server health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// SetToken swaps the bearer token, e.g. after re-authentication. ViewerID
// follows immediately.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type viewerClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ViewerID reads the viewer id from the token's claims without verifying the
// signature; the server does that. No token means anonymous.
func (c *Client) ViewerID() (uuid.UUID, bool) {
	token := c.currentToken()
	if token == "" {
		return uuid.Nil, false
	}
	var claims viewerClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return uuid.Nil, false
	}
	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one logical request with retries. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	target := c.endpoint(path, query)
	return RetryWithBackoff(ctx, c.retry, func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, target, out)
		})
		return err
	})
}

func (c *Client) roundTrip(ctx context.Context, method, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &transportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope httpx.ErrorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Error
			apiErr.RequestID = envelope.RequestID
		}
		c.logger.Debug("api error",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func pageQuery(cursor string, limit int) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// FetchPage returns one page of the asset feed. An empty cursor is the first
// page; pass NextCursor from the previous page to continue.
func (c *Client) FetchPage(ctx context.Context, cursor string, limit int) (*models.AssetPage, error) {
	var page models.AssetPage
	if err := c.do(ctx, http.MethodGet, "/api/assets", pageQuery(cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) FetchComments(ctx context.Context, assetID uuid.UUID, cursor string, limit int) (*models.CommentPage, error) {
	var page models.CommentPage
	path := "/api/assets/" + assetID.String() + "/comments"
	if err := c.do(ctx, http.MethodGet, path, pageQuery(cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func likePath(kind models.EntityKind, id uuid.UUID) (string, error) {
	switch kind {
	case models.KindAsset:
		return "/api/assets/" + id.String() + "/like", nil
	case models.KindComment:
		return "/api/comments/" + id.String() + "/like", nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// Like creates the viewer's like edge. Liking twice is not an error.
func (c *Client) Like(ctx context.Context, kind models.EntityKind, id uuid.UUID) error {
	path, err := likePath(kind, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Unlike removes the viewer's like edge. A missing edge is not an error.
func (c *Client) Unlike(ctx context.Context, kind models.EntityKind, id uuid.UUID) error {
	path, err := likePath(kind, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// MaxEngagementIDs is the most ids the engagement endpoint accepts at once.
const MaxEngagementIDs = 100

type engagementResponse struct {
	Records []engagement.Record `json:"records"`
}

// Engagement fetches authoritative like state for ids, in batches.
func (c *Client) Engagement(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) ([]engagement.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]engagement.Record, 0, len(ids))
	for start := 0; start < len(ids); start += MaxEngagementIDs {
		batch := ids[start:min(start+MaxEngagementIDs, len(ids))]
		parts := make([]string, len(batch))
		for i, id := range batch {
			parts[i] = id.String()
		}
		q := url.Values{"kind": {string(kind)}, "ids": {strings.Join(parts, ",")}}

		var resp engagementResponse
		if err := c.do(ctx, http.MethodGet, "/api/engagement", q, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Records...)
	}
	return out, nil
}

// IsRejected reports whether err is a definitive API rejection rather than a
// transport or availability problem.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !IsRetryable(apiErr)
}

var (
	_ engagement.Source     = (*Client)(nil)
	_ engagement.ChangeFeed = (*Client)(nil)
	_ engagement.Identity   = (*Client)(nil)
)
