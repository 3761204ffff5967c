package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pixelbloom/comicforge-backend/internal/repos/testutil"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

func TestComicRepoSearchAndLists(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewComicRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, tx)
	other := testutil.SeedUser(t, tx)

	dragon := &types.Comic{
		ID:     uuid.New(),
		UserID: &owner.ID,
		Title:  "Dragon Heist",
		Prompt: "a dragon robs a bank",
		Style:  "noir",
		Status: types.StatusCompleted,
	}
	robot := &types.Comic{
		ID:     uuid.New(),
		UserID: &owner.ID,
		Title:  "Robot Picnic",
		Prompt: "robots on a picnic",
		Style:  "cartoon",
		Status: types.StatusCompleted,
	}
	trashed := &types.Comic{
		ID:        uuid.New(),
		UserID:    &owner.ID,
		Title:     "Deleted Dragon",
		Prompt:    "another dragon",
		Status:    types.StatusCompleted,
		IsDeleted: true,
	}
	otherComic := &types.Comic{
		ID:     uuid.New(),
		UserID: &other.ID,
		Title:  "Space Cats",
		Prompt: "cats in space",
		Status: types.StatusCompleted,
	}

	if _, err := repo.Create(ctx, tx, []*types.Comic{dragon, robot, trashed, otherComic}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Text search is case-insensitive and skips trashed rows.
	found, err := repo.Search(ctx, tx, ComicFilter{Query: "dragon"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].ID != dragon.ID {
		t.Fatalf("Search dragon: expected [%v], got %d rows", dragon.ID, len(found))
	}

	// UserID filter narrows to the owner's comics.
	mine, err := repo.Search(ctx, tx, ComicFilter{UserID: owner.ID})
	if err != nil {
		t.Fatalf("Search by user: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("Search by user: expected 2, got %d", len(mine))
	}

	byID, err := repo.Search(ctx, tx, ComicFilter{ComicID: otherComic.ID})
	if err != nil {
		t.Fatalf("Search by id: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != otherComic.ID {
		t.Fatalf("Search by id: expected [%v]", otherComic.ID)
	}

	// Trash listing is scoped to the owner.
	trash, err := repo.ListTrashedByUser(ctx, tx, owner.ID)
	if err != nil {
		t.Fatalf("ListTrashedByUser: %v", err)
	}
	if len(trash) != 1 || trash[0].ID != trashed.ID {
		t.Fatalf("ListTrashedByUser: expected [%v]", trashed.ID)
	}

	// Likes and favorites join through their tables.
	if err := tx.Create(&types.Like{ID: uuid.New(), ComicID: robot.ID, UserID: other.ID}).Error; err != nil {
		t.Fatalf("seed like: %v", err)
	}
	if err := tx.Create(&types.Favorite{ID: uuid.New(), ComicID: dragon.ID, UserID: other.ID}).Error; err != nil {
		t.Fatalf("seed favorite: %v", err)
	}

	liked, err := repo.ListLikedByUser(ctx, tx, other.ID)
	if err != nil {
		t.Fatalf("ListLikedByUser: %v", err)
	}
	if len(liked) != 1 || liked[0].ID != robot.ID {
		t.Fatalf("ListLikedByUser: expected [%v]", robot.ID)
	}

	faved, err := repo.ListFavoritedByUser(ctx, tx, other.ID)
	if err != nil {
		t.Fatalf("ListFavoritedByUser: %v", err)
	}
	if len(faved) != 1 || faved[0].ID != dragon.ID {
		t.Fatalf("ListFavoritedByUser: expected [%v]", dragon.ID)
	}
}

func TestComicRepoCounters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewComicRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, tx)
	comic := testutil.SeedComic(t, tx, owner.ID, types.StatusCompleted)

	if err := repo.IncrementCounter(ctx, tx, comic.ID, "like_count", 1); err != nil {
		t.Fatalf("IncrementCounter +1: %v", err)
	}
	if err := repo.IncrementCounter(ctx, tx, comic.ID, "view_count", 3); err != nil {
		t.Fatalf("IncrementCounter +3: %v", err)
	}

	rows, err := repo.GetByIDs(ctx, tx, []uuid.UUID{comic.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
	if rows[0].LikeCount != 1 || rows[0].ViewCount != 3 {
		t.Fatalf("counters: like=%d view=%d", rows[0].LikeCount, rows[0].ViewCount)
	}

	// Counters never go below zero.
	if err := repo.IncrementCounter(ctx, tx, comic.ID, "like_count", -5); err != nil {
		t.Fatalf("IncrementCounter -5: %v", err)
	}
	rows, err = repo.GetByIDs(ctx, tx, []uuid.UUID{comic.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs after decrement: err=%v len=%d", err, len(rows))
	}
	if rows[0].LikeCount != 0 {
		t.Fatalf("like_count floor: expected 0 got %d", rows[0].LikeCount)
	}

	if err := repo.IncrementCounter(ctx, tx, comic.ID, "title", 1); err == nil {
		t.Fatalf("IncrementCounter accepted an arbitrary column")
	}
}
