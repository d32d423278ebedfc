package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/theposch/mainstream-sub002/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func openMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
	return db
}

// idN builds ids whose sort order is controlled by n.
func idN(n byte) uuid.UUID {
	return uuid.UUID{0: 0x10, 15: n}
}

func at(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC)
}

func seedUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	u := models.User{Username: name, DisplayName: name}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedAsset(t *testing.T, repo *AssetRepository, id uuid.UUID, createdAt time.Time, owner uuid.UUID, vis models.Visibility) models.Asset {
	t.Helper()
	a := models.Asset{ID: id, CreatedAt: createdAt, OwnerID: owner, Title: id.String(), Visibility: vis}
	require.NoError(t, repo.Create(context.Background(), &a))
	return a
}
