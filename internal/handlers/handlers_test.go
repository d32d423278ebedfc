package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/handlers/ws"
	"github.com/theposch/mainstream-sub002/internal/httpx"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"github.com/theposch/mainstream-sub002/internal/service"
	"github.com/theposch/mainstream-sub002/internal/testutil"
)

const testSecret = "test-secret-key-12345"

type testEnv struct {
	app    *fiber.App
	fx     *testutil.Fixtures
	tokens *service.TokenService
	broker *realtime.Broker
}

func newTestEnv(t *testing.T, likeRateLimit int) *testEnv {
	t.Helper()
	fx := testutil.NewFixtures(t)
	tokens := service.NewTokenService(testSecret, time.Hour)
	broker := realtime.NewBroker(nil, nil, nil)
	planner := feed.NewPlanner(20, 50, nil)

	counts := service.NewCountService(fx.Likes, nil, nil, nil)
	feedSvc := service.NewFeedService(fx.Assets, fx.Likes, counts, planner, nil, nil)
	commentSvc := service.NewCommentService(fx.Assets, fx.Comments, fx.Likes, counts, planner, nil, nil)
	likeSvc := service.NewLikeService(fx.Assets, fx.Comments, fx.Likes, counts, broker, nil, nil)
	engagementSvc := service.NewEngagementService(fx.Likes, counts)

	app := fiber.New()
	Routes{
		Feed:          NewFeedHandler(feedSvc, commentSvc, nil),
		Like:          NewLikeHandler(likeSvc, engagementSvc, nil),
		WebSocket:     NewWebSocketHandler(ws.NewHub(broker, nil), nil, false),
		Tokens:        tokens,
		LikeRateLimit: likeRateLimit,
	}.Mount(app)

	return &testEnv{app: app, fx: fx, tokens: tokens, broker: broker}
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	raw, err := e.tokens.Issue(user.ID, user.Username)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, method, path, token string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestGetFeedPagination(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.fx.CreateUser("owner")
	viewer := env.fx.CreateUser("viewer")
	first := env.fx.CreateAsset(owner, "first")
	second := env.fx.CreateAsset(owner, "second")
	env.fx.CreateAssetWith(owner, "hidden", models.VisibilityUnlisted)
	third := env.fx.CreateAsset(owner, "third")
	env.fx.Like(models.KindAsset, second.ID, viewer)

	var page models.AssetPage
	status := env.do(t, "GET", "/api/assets?limit=2", env.token(t, viewer), &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Items, 2)
	assert.Equal(t, third.ID, page.Items[0].ID)
	assert.Equal(t, second.ID, page.Items[1].ID)
	assert.EqualValues(t, 1, page.Items[1].LikeCount)
	assert.True(t, page.Items[1].IsLikedByCurrentViewer)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)

	var next models.AssetPage
	status = env.do(t, "GET", "/api/assets?limit=2&cursor="+*page.NextCursor, "", &next)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, next.Items, 1)
	assert.Equal(t, first.ID, next.Items[0].ID)
	assert.False(t, next.HasMore)
	assert.Nil(t, next.NextCursor)
}

func TestGetFeedEdgeCases(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.fx.CreateUser("owner")
	for i := 0; i < 3; i++ {
		env.fx.CreateAsset(owner, fmt.Sprintf("a%d", i))
	}

	var garbage, first models.AssetPage
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets", "", &first))
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets?cursor=not-a-cursor", "", &garbage))
	assert.Equal(t, first, garbage)

	var huge models.AssetPage
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets?limit=1000", "", &huge))
	assert.Len(t, huge.Items, 3)

	var negative models.AssetPage
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets?limit=-5", "", &negative))
	assert.Len(t, negative.Items, 1)

	var errBody httpx.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/assets?limit=ten", "", &errBody))
	assert.Equal(t, "invalid_limit", errBody.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/assets", "garbage", nil))
}

func TestGetFeedEmpty(t *testing.T) {
	env := newTestEnv(t, 0)
	var page models.AssetPage
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets", "", &page))
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestGetComments(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.fx.CreateUser("owner")
	viewer := env.fx.CreateUser("viewer")
	asset := env.fx.CreateAsset(owner, "poster")
	older := env.fx.CreateComment(asset, viewer, "first!")
	newer := env.fx.CreateComment(asset, owner, "thanks")
	env.fx.Like(models.KindComment, older.ID, owner)

	var page models.CommentPage
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/assets/"+asset.ID.String()+"/comments", env.token(t, owner), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].ID)
	assert.Equal(t, older.ID, page.Items[1].ID)
	assert.EqualValues(t, 1, page.Items[1].LikeCount)
	assert.True(t, page.Items[1].IsLikedByCurrentViewer)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/assets/"+uuid.NewString()+"/comments", "", nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/assets/42/comments", "", nil))
}

func TestLikeEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.fx.CreateUser("owner")
	fan := env.fx.CreateUser("fan")
	asset := env.fx.CreateAsset(owner, "poster")
	path := "/api/assets/" + asset.ID.String() + "/like"
	token := env.token(t, fan)

	sub := env.broker.Subscribe(realtime.AssetScope())
	defer sub.Close()

	var liked models.LikeResult
	require.Equal(t, http.StatusOK, env.do(t, "POST", path, token, &liked))
	assert.Equal(t, models.LikeResult{EntityID: asset.ID.String(), Liked: true, Created: true}, liked)

	require.Equal(t, http.StatusOK, env.do(t, "POST", path, token, &liked))
	assert.False(t, liked.Created)

	var records struct {
		Records []models.EngagementRecord `json:"records"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/engagement?kind=asset&ids="+asset.ID.String(), token, &records))
	require.Len(t, records.Records, 1)
	assert.EqualValues(t, 1, records.Records[0].LikeCount)
	assert.True(t, records.Records[0].ViewerHasLiked)

	var unliked models.UnlikeResult
	require.Equal(t, http.StatusOK, env.do(t, "DELETE", path, token, &unliked))
	assert.True(t, unliked.Deleted)
	require.Equal(t, http.StatusOK, env.do(t, "DELETE", path, token, &unliked))
	assert.False(t, unliked.Deleted)

	// Only the two state changes were published.
	got := drain(sub.Events())
	require.Len(t, got, 2)
	assert.Equal(t, realtime.EventInsert, got[0].Type)
	assert.Equal(t, fan.ID, got[0].ActingUserID)
	assert.Equal(t, realtime.EventDelete, got[1].Type)
}

func drain(ch <-chan realtime.ChangeEvent) []realtime.ChangeEvent {
	var out []realtime.ChangeEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestLikeRejections(t *testing.T) {
	env := newTestEnv(t, 0)
	owner := env.fx.CreateUser("owner")
	asset := env.fx.CreateAsset(owner, "poster")
	comment := env.fx.CreateComment(asset, owner, "mine")

	var errBody httpx.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, env.do(t, "POST", "/api/assets/"+asset.ID.String()+"/like", "", nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/assets/"+asset.ID.String()+"/like", env.token(t, owner), &errBody))
	assert.Equal(t, "self_like", errBody.Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/comments/"+comment.ID.String()+"/like", env.token(t, owner), nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/comments/"+uuid.NewString()+"/like", env.token(t, owner), nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, "DELETE", "/api/assets/nope/like", env.token(t, owner), nil))
}

func TestLikeRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)
	owner := env.fx.CreateUser("owner")
	fan := env.fx.CreateUser("fan")
	asset := env.fx.CreateAsset(owner, "poster")
	path := "/api/assets/" + asset.ID.String() + "/like"
	token := env.token(t, fan)

	assert.Equal(t, http.StatusOK, env.do(t, "POST", path, token, nil))
	assert.Equal(t, http.StatusOK, env.do(t, "DELETE", path, token, nil))
	var errBody httpx.ErrorResponse
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, "POST", path, token, &errBody))
	assert.Equal(t, "rate_limited", errBody.Code)
}

func TestGetEngagementValidation(t *testing.T) {
	env := newTestEnv(t, 0)
	many := make([]string, 101)
	for i := range many {
		many[i] = uuid.NewString()
	}

	tests := []struct {
		query string
		code  string
	}{
		{"kind=post&ids=" + uuid.NewString(), "invalid_kind"},
		{"kind=asset", "missing_ids"},
		{"kind=asset&ids=1,2", "invalid_id"},
		{"kind=comment&ids=" + strings.Join(many, ","), "too_many_ids"},
	}
	for _, tt := range tests {
		var errBody httpx.ErrorResponse
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/engagement?"+tt.query, "", &errBody), tt.query)
		assert.Equal(t, tt.code, errBody.Code, tt.query)
	}
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, 0)
	assert.Equal(t, http.StatusUpgradeRequired, env.do(t, "GET", "/ws", "", nil))
}

func TestUnknownAPIPathIsNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/nope", "", nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/assets/"+uuid.NewString()+"/share", "", nil))
}
