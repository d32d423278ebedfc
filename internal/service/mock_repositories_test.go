package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"gorm.io/gorm"
)

// MockAssetRepository keeps assets in memory and applies range queries the
// way the SQL repository does.
type MockAssetRepository struct {
	assets map[uuid.UUID]*models.Asset
	err    error
}

func NewMockAssetRepository() *MockAssetRepository {
	return &MockAssetRepository{assets: make(map[uuid.UUID]*models.Asset)}
}

func (m *MockAssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	m.assets[asset.ID] = asset
	return nil
}

func (m *MockAssetRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	if a, ok := m.assets[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockAssetRepository) FetchRange(ctx context.Context, q feed.Query) ([]models.Asset, error) {
	if m.err != nil {
		return nil, m.err
	}
	var all []models.Asset
	for _, a := range m.assets {
		all = append(all, *a)
	}
	return applyRange(all, q, func(a models.Asset) string { return string(a.Visibility) }), nil
}

type MockCommentRepository struct {
	comments map[uuid.UUID]*models.Comment
}

func NewMockCommentRepository() *MockCommentRepository {
	return &MockCommentRepository{comments: make(map[uuid.UUID]*models.Comment)}
}

func (m *MockCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	m.comments[comment.ID] = comment
	return nil
}

func (m *MockCommentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	if c, ok := m.comments[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockCommentRepository) FetchRange(ctx context.Context, assetID uuid.UUID, q feed.Query) ([]models.Comment, error) {
	var all []models.Comment
	for _, c := range m.comments {
		if c.AssetID == assetID {
			all = append(all, *c)
		}
	}
	return applyRange(all, q, func(models.Comment) string { return "" }), nil
}

func applyRange[T feed.Entity](rows []T, q feed.Query, visibility func(T) string) []T {
	sort.Slice(rows, func(i, j int) bool {
		ai, ii := rows[i].CursorKey()
		aj, ij := rows[j].CursorKey()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return feed.CompareIDs(ii, ij) > 0
	})
	var out []T
	for _, r := range rows {
		at, id := r.CursorKey()
		if !q.Matches(at, id, visibility(r)) {
			continue
		}
		out = append(out, r)
		if len(out) == q.FetchLimit() {
			break
		}
	}
	return out
}

type likeKey struct {
	kind   models.EntityKind
	entity uuid.UUID
	user   uuid.UUID
}

// MockLikeRepository stores like edges in a set. owners lets CountByEntity
// exclude self-likes like the SQL query does.
type MockLikeRepository struct {
	mu         sync.Mutex
	edges      map[likeKey]time.Time
	owners     map[uuid.UUID]uuid.UUID
	countCalls int
	err        error
}

func NewMockLikeRepository() *MockLikeRepository {
	return &MockLikeRepository{
		edges:  make(map[likeKey]time.Time),
		owners: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *MockLikeRepository) Create(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	k := likeKey{kind, entityID, userID}
	if _, ok := m.edges[k]; ok {
		return false, nil
	}
	m.edges[k] = time.Now()
	return true, nil
}

func (m *MockLikeRepository) Delete(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	k := likeKey{kind, entityID, userID}
	if _, ok := m.edges[k]; !ok {
		return false, nil
	}
	delete(m.edges, k)
	return true, nil
}

func (m *MockLikeRepository) LikedBy(ctx context.Context, kind models.EntityKind, viewer uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	liked := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if _, ok := m.edges[likeKey{kind, id, viewer}]; ok {
			liked[id] = true
		}
	}
	return liked, nil
}

func (m *MockLikeRepository) CountByEntity(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	counts := make(map[uuid.UUID]int64)
	for k := range m.edges {
		if k.kind != kind || !want[k.entity] || m.owners[k.entity] == k.user {
			continue
		}
		counts[k.entity]++
	}
	return counts, nil
}

type published struct {
	scope realtime.Scope
	event realtime.ChangeEvent
}

type MockPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *MockPublisher) Publish(ctx context.Context, scope realtime.Scope, ev realtime.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{scope: scope, event: ev})
	return nil
}

var errDatabaseDown = errors.New("database is down")
