package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/models"
	"gorm.io/gorm"
)

type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *CommentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// FetchRange pages through one asset's comments, newest first. Comments carry
// no visibility of their own.
func (r *CommentRepository) FetchRange(ctx context.Context, assetID uuid.UUID, q feed.Query) ([]models.Comment, error) {
	tx := r.db.WithContext(ctx).Preload("Author").Where("asset_id = ?", assetID)
	if pred, args := q.Predicate(); pred != "" {
		tx = tx.Where(pred, args...)
	}

	var comments []models.Comment
	err := tx.Order("created_at DESC, id DESC").Limit(q.FetchLimit()).Find(&comments).Error
	return comments, err
}
