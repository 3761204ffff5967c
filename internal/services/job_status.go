package services

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

// JobStatus is the polling view of one generation job. Story and panels
// fill in as the stages that produce them finish; audio_url appears once
// the comic row carries it.
type JobStatus struct {
  JobID       uuid.UUID         `json:"job_id"`
  ComicID     uuid.UUID         `json:"comic_id"`
  Status      types.ComicStatus `json:"status"`
  Stage       string            `json:"stage"`
  CurrentStep int               `json:"current_step"`
  TotalSteps  int               `json:"total_steps"`
  Message     string            `json:"message"`
  Story       string            `json:"story,omitempty"`
  Panels      datatypes.JSON    `json:"panels,omitempty"`
  AudioURL    string            `json:"audio_url,omitempty"`
  Error       string            `json:"error,omitempty"`
  CreatedAt   time.Time         `json:"created_at"`
  UpdatedAt   time.Time         `json:"updated_at"`
}

type JobStatusService interface {
  // GetStatus returns nil when no such job exists.
  GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error)

  // GetStatusByComic returns the latest job for a comic, nil when none.
  GetStatusByComic(ctx context.Context, comicID uuid.UUID) (*JobStatus, error)
}

type jobStatusService struct {
  log       *logger.Logger
  jobRepo   repos.GenerationJobRepo
  comicRepo repos.ComicRepo
}

func NewJobStatusService(log *logger.Logger, jobRepo repos.GenerationJobRepo, comicRepo repos.ComicRepo) JobStatusService {
  return &jobStatusService{
    log:       log.With("service", "JobStatusService"),
    jobRepo:   jobRepo,
    comicRepo: comicRepo,
  }
}

func (s *jobStatusService) GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
  if jobID == uuid.Nil {
    return nil, nil
  }
  jobs, err := s.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{jobID})
  if err != nil {
    return nil, err
  }
  if len(jobs) == 0 {
    return nil, nil
  }
  return s.toJobStatus(ctx, jobs[0]), nil
}

func (s *jobStatusService) GetStatusByComic(ctx context.Context, comicID uuid.UUID) (*JobStatus, error) {
  job, err := s.jobRepo.GetLatestByComicID(ctx, nil, comicID)
  if err != nil {
    return nil, err
  }
  if job == nil {
    return nil, nil
  }
  return s.toJobStatus(ctx, job), nil
}

func (s *jobStatusService) toJobStatus(ctx context.Context, job *types.GenerationJob) *JobStatus {
  status := &JobStatus{
    JobID:       job.ID,
    ComicID:     job.ComicID,
    Status:      job.Status,
    Stage:       job.Stage,
    CurrentStep: job.CurrentStep,
    TotalSteps:  job.TotalSteps,
    Message:     job.Message,
    Story:       job.Story,
    Panels:      job.Panels,
    Error:       job.Error,
    CreatedAt:   job.CreatedAt,
    UpdatedAt:   job.UpdatedAt,
  }
  if job.Status == types.StatusCompleted {
    comics, err := s.comicRepo.GetByIDs(ctx, nil, []uuid.UUID{job.ComicID})
    if err != nil {
      s.log.Warn("Failed to load comic for job status", "comic_id", job.ComicID, "error", err)
    } else if len(comics) > 0 {
      status.AudioURL = comics[0].AudioURL
    }
  }
  return status
}
