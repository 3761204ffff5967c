package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type GenerationJobRepo interface {
  Create(ctx context.Context, tx *gorm.DB, jobs []*types.GenerationJob) ([]*types.GenerationJob, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, jobIDs []uuid.UUID) ([]*types.GenerationJob, error)
  GetLatestByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.GenerationJob, error)

  // ClaimNextPending locks and claims the oldest pending job, moving it to
  // the first generation stage. Returns nil when no job is available. Jobs
  // are claimed at most once; there is no retry path back to pending.
  ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.GenerationJob, error)

  UpdateFields(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, updates map[string]interface{}) error
  Heartbeat(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error

  // FailStale marks every claimed, non-terminal job whose heartbeat is older
  // than staleAfter as failed. Used on worker startup and on a sweep ticker
  // so crashed workers do not leave jobs running forever.
  FailStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration) (int64, error)
}

type generationJobRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
  repoLog := baseLog.With("repo", "GenerationJobRepo")
  return &generationJobRepo{db: db, log: repoLog}
}

func (gr *generationJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.GenerationJob) ([]*types.GenerationJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }

  if len(jobs) == 0 {
    return []*types.GenerationJob{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
    return nil, err
  }

  return jobs, nil
}

func (gr *generationJobRepo) GetByIDs(ctx context.Context, tx *gorm.DB, jobIDs []uuid.UUID) ([]*types.GenerationJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }

  var results []*types.GenerationJob
  if len(jobIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", jobIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (gr *generationJobRepo) GetLatestByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.GenerationJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }

  if comicID == uuid.Nil {
    return nil, nil
  }

  var job types.GenerationJob
  err := transaction.WithContext(ctx).
    Where("comic_id = ?", comicID).
    Order("created_at DESC").
    Limit(1).
    Find(&job).Error
  if err != nil {
    return nil, err
  }
  if job.ID == uuid.Nil {
    return nil, nil
  }
  return &job, nil
}

func (gr *generationJobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.GenerationJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }

  now := time.Now()

  var claimed *types.GenerationJob

  err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
    var job types.GenerationJob

    qErr := txx.
      Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
      Where("status = ?", types.StatusPending).
      Order("created_at ASC").
      First(&job).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }

    uErr := txx.Model(&types.GenerationJob{}).
      Where("id = ?", job.ID).
      Updates(map[string]interface{}{
        "status":       types.StatusGeneratingStory,
        "stage":        "story",
        "locked_at":    now,
        "heartbeat_at": now,
        "updated_at":   now,
      }).Error
    if uErr != nil {
      return uErr
    }

    claimed = &job
    return nil
  })

  if err != nil {
    return nil, err
  }
  return claimed, nil
}

func (gr *generationJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }
  if jobID == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.GenerationJob{}).
    Where("id = ?", jobID).
    Updates(updates).Error
}

func (gr *generationJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }
  if jobID == uuid.Nil {
    return nil
  }
  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.GenerationJob{}).
    Where("id = ? AND status NOT IN ?", jobID, []types.ComicStatus{types.StatusCompleted, types.StatusFailed}).
    Updates(map[string]interface{}{
      "heartbeat_at": now,
      "updated_at":   now,
    }).Error
}

func (gr *generationJobRepo) FailStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = gr.db
  }

  now := time.Now()
  cutoff := now.Add(-staleAfter)

  res := transaction.WithContext(ctx).
    Model(&types.GenerationJob{}).
    Where("status NOT IN ?", []types.ComicStatus{types.StatusPending, types.StatusCompleted, types.StatusFailed}).
    Where("heartbeat_at IS NOT NULL AND heartbeat_at < ?", cutoff).
    Updates(map[string]interface{}{
      "status":     types.StatusFailed,
      "error":      "generation worker stopped responding",
      "message":    "Comic generation failed: generation worker stopped responding",
      "updated_at": now,
    })
  if res.Error != nil {
    return 0, res.Error
  }
  return res.RowsAffected, nil
}
