package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment belongs to an asset. All comment likes under one asset share one
// realtime scope.
type Comment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AssetID  uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	AuthorID uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   User      `gorm:"foreignKey:AuthorID" json:"-"`
	Body     string    `gorm:"type:text;not null" json:"body"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c Comment) CursorKey() (time.Time, uuid.UUID) { return c.CreatedAt, c.ID }
func (c Comment) EntityID() uuid.UUID                { return c.ID }

type CommentResponse struct {
	ID                     uuid.UUID     `json:"id"`
	AssetID                uuid.UUID     `json:"asset_id"`
	AuthorID               uuid.UUID     `json:"author_id"`
	Author                 *UserResponse `json:"author,omitempty"`
	Body                   string        `json:"body"`
	CreatedAt              time.Time     `json:"created_at"`
	LikeCount              int64         `json:"like_count"`
	IsLikedByCurrentViewer bool          `json:"is_liked_by_current_viewer"`
}

func (c *Comment) ToResponse(likeCount int64, liked bool) CommentResponse {
	resp := CommentResponse{
		ID:                     c.ID,
		AssetID:                c.AssetID,
		AuthorID:               c.AuthorID,
		Body:                   c.Body,
		CreatedAt:              c.CreatedAt,
		LikeCount:              likeCount,
		IsLikedByCurrentViewer: liked,
	}
	if c.Author.ID != uuid.Nil {
		author := c.Author.ToResponse()
		resp.Author = &author
	}
	return resp
}
