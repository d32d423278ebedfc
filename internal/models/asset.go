package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssetType string

const (
	AssetUpload AssetType = "upload"
	AssetEmbed  AssetType = "embed"
)

// Asset is a feed item: an uploaded image/video or an embedded design file.
// The feed is ordered by (created_at desc, id desc).
type Asset struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index:idx_assets_feed,priority:1" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner   User      `gorm:"foreignKey:OwnerID" json:"-"`

	Title       string    `gorm:"size:200" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Type        AssetType `gorm:"type:varchar(20);default:'upload'" json:"type"`
	MediaURL    string    `json:"media_url"`
	EmbedURL    string    `json:"embed_url,omitempty"`

	// Empty means unset, which the feed treats like public.
	Visibility Visibility `gorm:"type:varchar(20);index" json:"visibility"`
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a Asset) CursorKey() (time.Time, uuid.UUID) { return a.CreatedAt, a.ID }
func (a Asset) EntityID() uuid.UUID                { return a.ID }

type AssetResponse struct {
	ID                     uuid.UUID     `json:"id"`
	OwnerID                uuid.UUID     `json:"owner_id"`
	Owner                  *UserResponse `json:"owner,omitempty"`
	Title                  string        `json:"title"`
	Description            string        `json:"description"`
	Type                   AssetType     `json:"type"`
	MediaURL               string        `json:"media_url"`
	EmbedURL               string        `json:"embed_url,omitempty"`
	Visibility             Visibility    `json:"visibility"`
	CreatedAt              time.Time     `json:"created_at"`
	LikeCount              int64         `json:"like_count"`
	IsLikedByCurrentViewer bool          `json:"is_liked_by_current_viewer"`
}

func (a *Asset) ToResponse(likeCount int64, liked bool) AssetResponse {
	resp := AssetResponse{
		ID:                     a.ID,
		OwnerID:                a.OwnerID,
		Title:                  a.Title,
		Description:            a.Description,
		Type:                   a.Type,
		MediaURL:               a.MediaURL,
		EmbedURL:               a.EmbedURL,
		Visibility:             a.Visibility,
		CreatedAt:              a.CreatedAt,
		LikeCount:              likeCount,
		IsLikedByCurrentViewer: liked,
	}
	if a.Owner.ID != uuid.Nil {
		owner := a.Owner.ToResponse()
		resp.Owner = &owner
	}
	return resp
}
