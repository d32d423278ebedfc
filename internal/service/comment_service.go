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

type CommentService struct {
	assets   repository.AssetRepositoryInterface
	comments repository.CommentRepositoryInterface
	likes    repository.LikeRepositoryInterface
	counts   *CountService
	planner  *feed.Planner
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewCommentService(
	assets repository.AssetRepositoryInterface,
	comments repository.CommentRepositoryInterface,
	likes repository.LikeRepositoryInterface,
	counts *CountService,
	planner *feed.Planner,
	m *metrics.Collector,
	logger *zap.Logger,
) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{
		assets:   assets,
		comments: comments,
		likes:    likes,
		counts:   counts,
		planner:  planner,
		metrics:  m,
		logger:   logger,
	}
}

// FetchComments pages through the comments under assetID with the same
// cursor contract as the asset feed.
func (s *CommentService) FetchComments(ctx context.Context, assetID uuid.UUID, req PageRequest) (*models.CommentPage, error) {
	if _, err := s.assets.FindByID(ctx, assetID); err != nil {
		return nil, notFound(err)
	}

	before, rejected := cursor.FromQuery(req.Cursor)
	q := s.planner.Plan(before, req.Limit, false)
	store := feed.RangeFunc[models.Comment](func(ctx context.Context, q feed.Query) ([]models.Comment, error) {
		return s.comments.FetchRange(ctx, assetID, q)
	})
	rows, hasMore, err := feed.Execute[models.Comment](ctx, s.planner, store, q)
	if err != nil {
		return nil, err
	}

	asm := feed.Assembler{Counts: s.counts.For(models.KindComment), Liked: likedLookup(s.likes, models.KindComment)}
	page, err := feed.Assemble(ctx, asm, rows, hasMore, req.Viewer)
	if err != nil {
		return nil, err
	}
	s.metrics.PageServed(string(models.KindComment), rejected)

	out := &models.CommentPage{
		Items:      make([]models.CommentResponse, len(page.Items)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for i, item := range page.Items {
		out.Items[i] = item.Entity.ToResponse(item.LikeCount, item.IsLikedByCurrentViewer)
	}
	return out, nil
}
