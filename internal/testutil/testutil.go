// Package testutil builds sqlite-backed fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Fixtures bundles a migrated database with its repositories.
type Fixtures struct {
	t        *testing.T
	DB       *gorm.DB
	Users    *repository.UserRepository
	Assets   *repository.AssetRepository
	Comments *repository.CommentRepository
	Likes    *repository.LikeRepository

	clock time.Time
}

// NewFixtures opens a fresh sqlite database in t.TempDir and migrates it.
func NewFixtures(t *testing.T) *Fixtures {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &Fixtures{
		t:        t,
		DB:       db,
		Users:    repository.NewUserRepository(db),
		Assets:   repository.NewAssetRepository(db),
		Comments: repository.NewCommentRepository(db),
		Likes:    repository.NewLikeRepository(db),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so seeded rows have a known
// feed order.
func (f *Fixtures) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *Fixtures) CreateUser(username string) *models.User {
	f.t.Helper()
	user := &models.User{Username: username, DisplayName: username}
	if err := f.Users.Create(context.Background(), user); err != nil {
		f.t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreateAsset seeds a public asset newer than every asset seeded before it.
func (f *Fixtures) CreateAsset(owner *models.User, title string) *models.Asset {
	f.t.Helper()
	return f.CreateAssetWith(owner, title, models.VisibilityPublic)
}

func (f *Fixtures) CreateAssetWith(owner *models.User, title string, vis models.Visibility) *models.Asset {
	f.t.Helper()
	asset := &models.Asset{
		ID:         uuid.New(),
		CreatedAt:  f.tick(),
		OwnerID:    owner.ID,
		Title:      title,
		Type:       models.AssetUpload,
		MediaURL:   "https://cdn.example.com/" + title + ".png",
		Visibility: vis,
	}
	if err := f.Assets.Create(context.Background(), asset); err != nil {
		f.t.Fatalf("create asset %s: %v", title, err)
	}
	return asset
}

func (f *Fixtures) CreateComment(asset *models.Asset, author *models.User, body string) *models.Comment {
	f.t.Helper()
	comment := &models.Comment{
		ID:        uuid.New(),
		CreatedAt: f.tick(),
		AssetID:   asset.ID,
		AuthorID:  author.ID,
		Body:      body,
	}
	if err := f.Comments.Create(context.Background(), comment); err != nil {
		f.t.Fatalf("create comment: %v", err)
	}
	return comment
}

func (f *Fixtures) Like(kind models.EntityKind, id uuid.UUID, user *models.User) {
	f.t.Helper()
	if _, err := f.Likes.Create(context.Background(), kind, id, user.ID); err != nil {
		f.t.Fatalf("like %s %s: %v", kind, id, err)
	}
}
