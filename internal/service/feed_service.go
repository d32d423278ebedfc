package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/cursor"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/metrics"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/repository"
	"go.uber.org/zap"
)

// PageRequest is one fetchPage call. Viewer is nil for anonymous requests.
type PageRequest struct {
	Cursor string
	Limit  int
	Viewer *uuid.UUID
}

type FeedService struct {
	assets  repository.AssetRepositoryInterface
	likes   repository.LikeRepositoryInterface
	counts  *CountService
	planner *feed.Planner
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewFeedService(
	assets repository.AssetRepositoryInterface,
	likes repository.LikeRepositoryInterface,
	counts *CountService,
	planner *feed.Planner,
	m *metrics.Collector,
	logger *zap.Logger,
) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{assets: assets, likes: likes, counts: counts, planner: planner, metrics: m, logger: logger}
}

// FetchPage returns one page of public assets, newest first, annotated with
// like counts and the viewer's like state. A cursor that does not decode is
// treated as a request for the first page.
func (s *FeedService) FetchPage(ctx context.Context, req PageRequest) (*models.AssetPage, error) {
	before, rejected := cursor.FromQuery(req.Cursor)
	if rejected {
		s.logger.Debug("invalid feed cursor, serving first page")
	}

	q := s.planner.Plan(before, req.Limit, true)
	rows, hasMore, err := feed.Execute[models.Asset](ctx, s.planner, s.assets, q)
	if err != nil {
		return nil, err
	}

	asm := feed.Assembler{Counts: s.counts.For(models.KindAsset), Liked: likedLookup(s.likes, models.KindAsset)}
	page, err := feed.Assemble(ctx, asm, rows, hasMore, req.Viewer)
	if err != nil {
		return nil, err
	}
	s.metrics.PageServed(string(models.KindAsset), rejected)

	out := &models.AssetPage{
		Items:      make([]models.AssetResponse, len(page.Items)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for i, item := range page.Items {
		out.Items[i] = item.Entity.ToResponse(item.LikeCount, item.IsLikedByCurrentViewer)
	}
	return out, nil
}
