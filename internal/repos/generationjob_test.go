package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pixelbloom/comicforge-backend/internal/repos/testutil"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

func TestGenerationJobRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewGenerationJobRepo(db, testutil.Logger(t))

	user := testutil.SeedUser(t, tx)
	comicA := testutil.SeedComic(t, tx, user.ID, types.StatusPending)
	comicB := testutil.SeedComic(t, tx, user.ID, types.StatusPending)

	now := time.Now().UTC()
	older := &types.GenerationJob{
		ID:         uuid.New(),
		ComicID:    comicA.ID,
		UserID:     &user.ID,
		Status:     types.StatusPending,
		Stage:      "story",
		TotalSteps: 5,
		CreatedAt:  now.Add(-2 * time.Hour),
		UpdatedAt:  now.Add(-2 * time.Hour),
	}
	newer := &types.GenerationJob{
		ID:         uuid.New(),
		ComicID:    comicB.ID,
		UserID:     &user.ID,
		Status:     types.StatusPending,
		Stage:      "story",
		TotalSteps: 5,
		CreatedAt:  now.Add(-1 * time.Hour),
		UpdatedAt:  now.Add(-1 * time.Hour),
	}

	if _, err := repo.Create(ctx, tx, []*types.GenerationJob{older, newer}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{older.ID, newer.ID}); err != nil || len(rows) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}

	latest, err := repo.GetLatestByComicID(ctx, tx, comicA.ID)
	if err != nil {
		t.Fatalf("GetLatestByComicID: %v", err)
	}
	if latest == nil || latest.ID != older.ID {
		t.Fatalf("GetLatestByComicID: expected %v got %v", older.ID, latest)
	}

	// Claims walk pending jobs in created_at ASC order.
	claim1, err := repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("ClaimNextPending #1: %v", err)
	}
	if claim1 == nil || claim1.ID != older.ID {
		t.Fatalf("ClaimNextPending #1: expected %v got %v", older.ID, claim1)
	}

	claim2, err := repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("ClaimNextPending #2: %v", err)
	}
	if claim2 == nil || claim2.ID != newer.ID {
		t.Fatalf("ClaimNextPending #2: expected %v got %v", newer.ID, claim2)
	}

	// Nothing pending left. Claimed jobs never come back.
	claim3, err := repo.ClaimNextPending(ctx, tx)
	if err != nil {
		t.Fatalf("ClaimNextPending #3: %v", err)
	}
	if claim3 != nil {
		t.Fatalf("ClaimNextPending #3: expected nil, got %v", claim3)
	}

	// A claimed job carries the first stage status.
	claimedRows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{older.ID})
	if err != nil || len(claimedRows) != 1 {
		t.Fatalf("GetByIDs claimed: err=%v len=%d", err, len(claimedRows))
	}
	if claimedRows[0].Status != types.StatusGeneratingStory {
		t.Fatalf("claimed status: expected %q got %q", types.StatusGeneratingStory, claimedRows[0].Status)
	}
	if claimedRows[0].HeartbeatAt == nil || claimedRows[0].LockedAt == nil {
		t.Fatalf("claimed job missing locked_at/heartbeat_at")
	}

	if err := repo.UpdateFields(ctx, tx, older.ID, map[string]interface{}{
		"status":       types.StatusGeneratingImages,
		"stage":        "images",
		"current_step": 3,
		"message":      "Generating images...",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	if err := repo.Heartbeat(ctx, tx, older.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// FailStale only touches claimed jobs with an old heartbeat.
	stale := now.Add(-30 * time.Minute)
	if err := repo.UpdateFields(ctx, tx, newer.ID, map[string]interface{}{
		"heartbeat_at": stale,
	}); err != nil {
		t.Fatalf("age heartbeat: %v", err)
	}

	n, err := repo.FailStale(ctx, tx, 10*time.Minute)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("FailStale: expected 1 row, got %d", n)
	}

	failedRows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{newer.ID})
	if err != nil || len(failedRows) != 1 {
		t.Fatalf("GetByIDs failed: err=%v len=%d", err, len(failedRows))
	}
	if failedRows[0].Status != types.StatusFailed {
		t.Fatalf("stale job status: expected %q got %q", types.StatusFailed, failedRows[0].Status)
	}
	if failedRows[0].Error == "" {
		t.Fatalf("stale job should carry an error")
	}

	// Terminal jobs ignore heartbeats.
	if err := repo.Heartbeat(ctx, tx, newer.ID); err != nil {
		t.Fatalf("Heartbeat terminal: %v", err)
	}
	afterRows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{newer.ID})
	if err != nil || len(afterRows) != 1 {
		t.Fatalf("GetByIDs after: err=%v len=%d", err, len(afterRows))
	}
	if afterRows[0].Status != types.StatusFailed {
		t.Fatalf("terminal job mutated by heartbeat")
	}
}
