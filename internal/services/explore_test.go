package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pixelbloom/comicforge-backend/internal/logger"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

func TestExploreSearchByJobID(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	ctx := context.Background()

	comicRepo := newFakeComicRepo()
	jobRepo := newFakeJobRepo()
	svc := &exploreService{
		log:       log,
		comicRepo: comicRepo,
		jobRepo:   jobRepo,
		feedSize:  20,
	}

	comicID := uuid.New()
	if _, err := comicRepo.Create(ctx, nil, []*types.Comic{
		{ID: comicID, Title: "Orbit Heist", Prompt: "space"},
		{ID: uuid.New(), Title: "Other Comic", Prompt: "other"},
	}); err != nil {
		t.Fatalf("seed comics: %v", err)
	}

	jobID := uuid.New()
	if _, err := jobRepo.Create(ctx, nil, []*types.GenerationJob{
		{ID: jobID, ComicID: comicID, Status: types.StatusCompleted},
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	// A job id narrows the search to that generation's comic.
	comics, err := svc.Search(ctx, "", uuid.Nil, jobID)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(comics) != 1 || comics[0].ID != comicID {
		t.Fatalf("expected the job's comic, got %d results", len(comics))
	}

	// An unknown job id matches nothing rather than everything.
	comics, err = svc.Search(ctx, "", uuid.Nil, uuid.New())
	if err != nil {
		t.Fatalf("Search unknown job: %v", err)
	}
	if len(comics) != 0 {
		t.Fatalf("expected no results for unknown job id, got %d", len(comics))
	}

	// Without a job filter the query still matches on text.
	comics, err = svc.Search(ctx, "orbit", uuid.Nil, uuid.Nil)
	if err != nil {
		t.Fatalf("Search query: %v", err)
	}
	if len(comics) != 1 || comics[0].ID != comicID {
		t.Fatalf("text search failed, got %d results", len(comics))
	}
}
