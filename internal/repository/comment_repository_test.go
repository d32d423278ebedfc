package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theposch/mainstream-sub002/internal/cursor"
	"github.com/theposch/mainstream-sub002/internal/feed"
	"github.com/theposch/mainstream-sub002/internal/models"
)

func TestCommentFetchRangeScopedToAsset(t *testing.T) {
	db := openMigratedDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()
	author := seedUser(t, db, "author")
	asset, other := uuid.New(), uuid.New()

	for i, id := range []uuid.UUID{idN(1), idN(2), idN(3)} {
		c := models.Comment{ID: id, CreatedAt: at(i), AssetID: asset, AuthorID: author.ID, Body: "c"}
		require.NoError(t, repo.Create(ctx, &c))
	}
	require.NoError(t, repo.Create(ctx, &models.Comment{ID: idN(4), CreatedAt: at(9), AssetID: other, AuthorID: author.ID, Body: "x"}))

	rows, err := repo.FetchRange(ctx, asset, feed.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, idN(3), rows[0].ID)
	assert.Equal(t, "author", rows[0].Author.Username)

	rows, err = repo.FetchRange(ctx, asset, feed.Query{Before: &cursor.Cursor{CreatedAt: at(1), ID: idN(2)}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, idN(1), rows[0].ID)
}
