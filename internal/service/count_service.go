package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/cache"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/metrics"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/repository"
	"go.uber.org/zap"
)

// CountService serves aggregate like counts, read-through the Redis cache
// when one is configured.
type CountService struct {
	likes   repository.LikeRepositoryInterface
	cache   *cache.CountCache
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewCountService(likes repository.LikeRepositoryInterface, countCache *cache.CountCache, m *metrics.Collector, logger *zap.Logger) *CountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountService{likes: likes, cache: countCache, metrics: m, logger: logger}
}

func (s *CountService) Counts(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts, misses := s.cache.GetCounts(ctx, string(kind), ids)
	s.metrics.CacheLookup(len(ids)-len(misses), len(misses))
	if len(misses) == 0 {
		return counts, nil
	}

	fetched, err := s.likes.CountByEntity(ctx, kind, misses)
	if err != nil {
		return nil, err
	}
	for id, n := range fetched {
		counts[id] = n
	}
	if err := s.cache.SetCounts(ctx, string(kind), misses, fetched); err != nil {
		s.logger.Warn("failed to cache like counts", zap.String("kind", string(kind)), zap.Error(err))
	}
	return counts, nil
}

func (s *CountService) Invalidate(ctx context.Context, kind models.EntityKind, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, string(kind), id); err != nil {
		s.logger.Warn("failed to invalidate like count", zap.String("entity_id", id.String()), zap.Error(err))
	}
}

// For binds the service to one kind for the feed assembler.
func (s *CountService) For(kind models.EntityKind) feed.CountSource {
	return kindCounts{svc: s, kind: kind}
}

type kindCounts struct {
	svc  *CountService
	kind models.EntityKind
}

func (k kindCounts) LikeCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	return k.svc.Counts(ctx, k.kind, ids)
}

type kindLiked struct {
	likes repository.LikeRepositoryInterface
	kind  models.EntityKind
}

func (k kindLiked) LikedBy(ctx context.Context, viewer uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return k.likes.LikedBy(ctx, k.kind, viewer, ids)
}

func likedLookup(likes repository.LikeRepositoryInterface, kind models.EntityKind) feed.LikedLookup {
	return kindLiked{likes: likes, kind: kind}
}
