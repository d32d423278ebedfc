package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type likeTable struct {
	table       string
	column      string
	parentTable string
	ownerColumn string
}

var likeTables = map[models.EntityKind]likeTable{
	models.KindAsset:   {table: "asset_likes", column: "asset_id", parentTable: "assets", ownerColumn: "owner_id"},
	models.KindComment: {table: "comment_likes", column: "comment_id", parentTable: "comments", ownerColumn: "author_id"},
}

func tableFor(kind models.EntityKind) (likeTable, error) {
	t, ok := likeTables[kind]
	if !ok {
		return likeTable{}, fmt.Errorf("no like table for kind %q", kind)
	}
	return t, nil
}

type LikeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) *LikeRepository {
	return &LikeRepository{db: db}
}

// Create inserts the like edge. An existing edge is not an error; created
// reports whether a row was actually written.
func (r *LikeRepository) Create(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error) {
	var edge interface{}
	switch kind {
	case models.KindAsset:
		edge = &models.AssetLike{AssetID: entityID, UserID: userID}
	case models.KindComment:
		edge = &models.CommentLike{CommentID: entityID, UserID: userID}
	default:
		return false, fmt.Errorf("no like table for kind %q", kind)
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the like edge; deleted is false when there was none.
func (r *LikeRepository) Delete(ctx context.Context, kind models.EntityKind, entityID, userID uuid.UUID) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Exec("DELETE FROM "+t.table+" WHERE "+t.column+" = ? AND user_id = ?", entityID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LikedBy resolves the viewer's like state for a whole page in one query.
func (r *LikeRepository) LikedBy(ctx context.Context, kind models.EntityKind, viewer uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	liked := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 || viewer == uuid.Nil {
		return liked, nil
	}
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var hits []uuid.UUID
	err = r.db.WithContext(ctx).
		Table(t.table).
		Where("user_id = ? AND "+t.column+" IN ?", viewer, ids).
		Pluck(t.column, &hits).Error
	if err != nil {
		return nil, err
	}
	for _, id := range hits {
		liked[id] = true
	}
	return liked, nil
}

type countRow struct {
	EntityID  uuid.UUID `gorm:"column:entity_id"`
	LikeCount int64     `gorm:"column:like_count"`
}

// CountByEntity aggregates like counts for ids. Edges created by the entity's
// own owner are not counted.
func (r *LikeRepository) CountByEntity(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT l.%[2]s AS entity_id, COUNT(*) AS like_count
FROM %[1]s l
JOIN %[3]s p ON p.id = l.%[2]s
WHERE l.%[2]s IN ?
	AND l.user_id <> p.%[4]s
	AND p.deleted_at IS NULL
GROUP BY l.%[2]s
`, t.table, t.column, t.parentTable, t.ownerColumn)

	var rows []countRow
	if err := r.db.WithContext(ctx).Raw(query, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.EntityID] = row.LikeCount
	}
	return counts, nil
}
