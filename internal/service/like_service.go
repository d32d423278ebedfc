package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/metrics"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"github.com/theposch/mainstream-sub002/internal/repository"
	"go.uber.org/zap"
)

// Publisher fans change events out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, scope realtime.Scope, ev realtime.ChangeEvent) error
}

type LikeService struct {
	assets    repository.AssetRepositoryInterface
	comments  repository.CommentRepositoryInterface
	likes     repository.LikeRepositoryInterface
	counts    *CountService
	publisher Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewLikeService(
	assets repository.AssetRepositoryInterface,
	comments repository.CommentRepositoryInterface,
	likes repository.LikeRepositoryInterface,
	counts *CountService,
	publisher Publisher,
	m *metrics.Collector,
	logger *zap.Logger,
) *LikeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LikeService{
		assets:    assets,
		comments:  comments,
		likes:     likes,
		counts:    counts,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// target resolves the owner of an entity and the scope its likes are
// published on.
func (s *LikeService) target(ctx context.Context, kind models.EntityKind, id uuid.UUID) (uuid.UUID, realtime.Scope, error) {
	switch kind {
	case models.KindAsset:
		asset, err := s.assets.FindByID(ctx, id)
		if err != nil {
			return uuid.Nil, realtime.Scope{}, notFound(err)
		}
		return asset.OwnerID, realtime.AssetScope(), nil
	case models.KindComment:
		comment, err := s.comments.FindByID(ctx, id)
		if err != nil {
			return uuid.Nil, realtime.Scope{}, notFound(err)
		}
		return comment.AuthorID, realtime.CommentScope(comment.AssetID), nil
	}
	return uuid.Nil, realtime.Scope{}, ErrInvalidKind
}

// Like creates the viewer's like edge. Liking twice succeeds with
// Created=false and publishes nothing.
func (s *LikeService) Like(ctx context.Context, kind models.EntityKind, id, userID uuid.UUID) (*models.LikeResult, error) {
	owner, scope, err := s.target(ctx, kind, id)
	if err != nil {
		s.metrics.LikeMutation(string(kind), "like", "error")
		return nil, err
	}
	if owner == userID {
		s.metrics.LikeMutation(string(kind), "like", "rejected")
		return nil, ErrSelfLike
	}

	created, err := s.likes.Create(ctx, kind, id, userID)
	if err != nil {
		s.metrics.LikeMutation(string(kind), "like", "error")
		return nil, err
	}
	if created {
		s.changed(ctx, kind, scope, realtime.ChangeEvent{Type: realtime.EventInsert, EntityID: id, ActingUserID: userID})
		s.metrics.LikeMutation(string(kind), "like", "applied")
	} else {
		s.metrics.LikeMutation(string(kind), "like", "noop")
	}
	return &models.LikeResult{EntityID: id.String(), Liked: true, Created: created}, nil
}

// Unlike removes the viewer's like edge. Removing a missing edge succeeds with
// Deleted=false.
func (s *LikeService) Unlike(ctx context.Context, kind models.EntityKind, id, userID uuid.UUID) (*models.UnlikeResult, error) {
	_, scope, err := s.target(ctx, kind, id)
	if err != nil {
		s.metrics.LikeMutation(string(kind), "unlike", "error")
		return nil, err
	}

	deleted, err := s.likes.Delete(ctx, kind, id, userID)
	if err != nil {
		s.metrics.LikeMutation(string(kind), "unlike", "error")
		return nil, err
	}
	if deleted {
		s.changed(ctx, kind, scope, realtime.ChangeEvent{Type: realtime.EventDelete, EntityID: id, ActingUserID: userID})
		s.metrics.LikeMutation(string(kind), "unlike", "applied")
	} else {
		s.metrics.LikeMutation(string(kind), "unlike", "noop")
	}
	return &models.UnlikeResult{EntityID: id.String(), Liked: false, Deleted: deleted}, nil
}

// changed runs after a committed edge change. The write already succeeded, so
// failures here are logged and not returned.
func (s *LikeService) changed(ctx context.Context, kind models.EntityKind, scope realtime.Scope, ev realtime.ChangeEvent) {
	s.counts.Invalidate(ctx, kind, ev.EntityID)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, scope, ev); err != nil {
		s.logger.Error("failed to publish like change",
			zap.String("scope", scope.Key()),
			zap.String("entity_id", ev.EntityID.String()),
			zap.Error(err))
	}
}
