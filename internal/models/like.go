package models

import (
	"time"

	"github.com/google/uuid"
)

// AssetLike and CommentLike are like edges. The composite primary key makes a
// repeated like by the same user a no-op.
type AssetLike struct {
	AssetID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"asset_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentLike struct {
	CommentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"comment_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
