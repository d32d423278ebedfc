package models

// Page is the JSON shape of one feed or comment page. NextCursor is null on
// the last page.
type Page[T any] struct {
	Items      []T     `json:"items"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type AssetPage = Page[AssetResponse]

type CommentPage = Page[CommentResponse]

// LikeResult answers POST .../like. Created is false when the edge already
// existed.
type LikeResult struct {
	EntityID string `json:"entity_id"`
	Liked    bool   `json:"liked"`
	Created  bool   `json:"created"`
}

// UnlikeResult answers DELETE .../like. Deleted is false when there was no
// edge to remove.
type UnlikeResult struct {
	EntityID string `json:"entity_id"`
	Liked    bool   `json:"liked"`
	Deleted  bool   `json:"deleted"`
}
