package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/pixelbloom/comicforge-backend/internal/logger"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

func TestJobStatusSnapshot(t *testing.T) {
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	ctx := context.Background()

	comicRepo := newFakeComicRepo()
	jobRepo := newFakeJobRepo()
	svc := NewJobStatusService(log, jobRepo, comicRepo)

	comicID := uuid.New()
	if _, err := comicRepo.Create(ctx, nil, []*types.Comic{{
		ID:       comicID,
		Title:    "Space Cats",
		Status:   types.StatusCompleted,
		AudioURL: "https://cdn.test/comics/x/audio/voiceover.mp3",
	}}); err != nil {
		t.Fatalf("seed comic: %v", err)
	}

	jobID := uuid.New()
	if _, err := jobRepo.Create(ctx, nil, []*types.GenerationJob{{
		ID:          jobID,
		ComicID:     comicID,
		Status:      types.StatusCompleted,
		Stage:       "finalize",
		CurrentStep: 5,
		TotalSteps:  5,
		Message:     "Comic generation completed!",
		Story:       "Once upon a time in orbit.",
		Panels:      datatypes.JSON(`[{"image_description":"a cat","panel_text":"meow"}]`),
	}}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	status, err := svc.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status == nil {
		t.Fatal("expected a status snapshot")
	}
	if status.Status != types.StatusCompleted || status.CurrentStep != 5 {
		t.Fatalf("unexpected progress: %s %d/%d", status.Status, status.CurrentStep, status.TotalSteps)
	}
	if status.Story == "" || len(status.Panels) == 0 {
		t.Fatal("completed snapshot should carry story and panels")
	}
	if status.AudioURL != "https://cdn.test/comics/x/audio/voiceover.mp3" {
		t.Fatalf("unexpected audio url %q", status.AudioURL)
	}

	byComic, err := svc.GetStatusByComic(ctx, comicID)
	if err != nil {
		t.Fatalf("GetStatusByComic: %v", err)
	}
	if byComic == nil || byComic.JobID != jobID {
		t.Fatal("latest job lookup by comic failed")
	}

	missing, err := svc.GetStatus(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetStatus missing: %v", err)
	}
	if missing != nil {
		t.Fatal("unknown job id should yield nil")
	}
}
