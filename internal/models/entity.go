package models

import "fmt"

// EntityKind names a likeable entity type.
type EntityKind string

const (
	KindAsset   EntityKind = "asset"
	KindComment EntityKind = "comment"
)

func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindAsset, KindComment:
		return EntityKind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
)

// EngagementRecord is the aggregate like count for an entity plus one viewer's
// personal like flag.
type EngagementRecord struct {
	EntityID       string `json:"entity_id"`
	LikeCount      int64  `json:"like_count"`
	ViewerHasLiked bool   `json:"viewer_has_liked"`
}
