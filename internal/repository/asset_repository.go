package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/models"
	"gorm.io/gorm"
)

type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

func (r *AssetRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// FetchRange returns up to q.FetchLimit() assets strictly after the cursor in
// (created_at desc, id desc) order. Keyset predicate, visibility filter and
// ordering all run in one query.
func (r *AssetRepository) FetchRange(ctx context.Context, q feed.Query) ([]models.Asset, error) {
	tx := r.db.WithContext(ctx).Preload("Owner")
	if pred, args := q.Predicate(); pred != "" {
		tx = tx.Where(pred, args...)
	}
	if pred, args := q.VisibilityPredicate(); pred != "" {
		tx = tx.Where(pred, args...)
	}

	var assets []models.Asset
	err := tx.Order("created_at DESC, id DESC").Limit(q.FetchLimit()).Find(&assets).Error
	if err != nil {
		if q.VisibleOnly && isMissingVisibilityColumn(err) {
			return nil, fmt.Errorf("%w: %v", feed.ErrVisibilityUnsupported, err)
		}
		return nil, err
	}
	return assets, nil
}

// isMissingVisibilityColumn recognizes the postgres and sqlite wording for an
// unknown column.
func isMissingVisibilityColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "visibility") {
		return false
	}
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such column")
}
