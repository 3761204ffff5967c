package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type ViewRepo interface {
  Create(ctx context.Context, tx *gorm.DB, views []*types.View) ([]*types.View, error)
  CountByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (int64, error)
}

type viewRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewViewRepo(db *gorm.DB, baseLog *logger.Logger) ViewRepo {
  repoLog := baseLog.With("repo", "ViewRepo")
  return &viewRepo{db: db, log: repoLog}
}

func (vr *viewRepo) Create(ctx context.Context, tx *gorm.DB, views []*types.View) ([]*types.View, error) {
  transaction := tx
  if transaction == nil {
    transaction = vr.db
  }

  if len(views) == 0 {
    return []*types.View{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&views).Error; err != nil {
    return nil, err
  }

  return views, nil
}

func (vr *viewRepo) CountByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = vr.db
  }

  var count int64
  if comicID == uuid.Nil {
    return 0, nil
  }

  if err := transaction.WithContext(ctx).
    Model(&types.View{}).
    Where("comic_id = ?", comicID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}
