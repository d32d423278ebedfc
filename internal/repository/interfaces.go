package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/models"
)

// AssetRepositoryInterface defines the contract for asset repository operations
type AssetRepositoryInterface interface {
	Create(ctx context.Context, asset *models.Asset) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	FetchRange(ctx context.Context, q feed.Query) ([]models.Asset, error)
}

// CommentRepositoryInterface defines the contract for comment repository operations
type CommentRepositoryInterface interface {
	Create(ctx context.Context, comment *models.Comment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	FetchRange(ctx context.Context, assetID uuid.UUID, q feed.Query) ([]models.Comment, error)
}

// LikeRepositoryInterface defines the contract for like edge operations
type LikeRepositoryInterface interface {
	Create(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error)
	Delete(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error)
	LikedBy(ctx context.Context, kind models.EntityKind, viewer uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	CountByEntity(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]int64, error)
}
