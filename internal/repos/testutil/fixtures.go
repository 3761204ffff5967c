package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelbloom/comicforge-backend/internal/types"
)

func SeedUser(tb testing.TB, tx *gorm.DB) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     uuid.NewString() + "@example.com",
		Password:  "not-a-real-hash",
		FirstName: "Test",
		LastName:  "User",
	}
	if err := tx.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedComic(tb testing.TB, tx *gorm.DB, userID uuid.UUID, status types.ComicStatus) *types.Comic {
	tb.Helper()
	now := time.Now().UTC()
	c := &types.Comic{
		ID:        uuid.New(),
		UserID:    &userID,
		Title:     "Seeded Comic",
		Prompt:    "a test prompt",
		Style:     "cartoon",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(c).Error; err != nil {
		tb.Fatalf("seed comic: %v", err)
	}
	return c
}
