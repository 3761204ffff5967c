package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type PanelRepo interface {
  Create(ctx context.Context, tx *gorm.DB, panels []*types.Panel) ([]*types.Panel, error)
  GetByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) ([]*types.Panel, error)
  DeleteByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) error
}

type panelRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPanelRepo(db *gorm.DB, baseLog *logger.Logger) PanelRepo {
  repoLog := baseLog.With("repo", "PanelRepo")
  return &panelRepo{db: db, log: repoLog}
}

func (pr *panelRepo) Create(ctx context.Context, tx *gorm.DB, panels []*types.Panel) ([]*types.Panel, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  if len(panels) == 0 {
    return []*types.Panel{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&panels).Error; err != nil {
    return nil, err
  }

  return panels, nil
}

func (pr *panelRepo) GetByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) ([]*types.Panel, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  var results []*types.Panel
  if comicID == uuid.Nil {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("comic_id = ?", comicID).
    Order("sequence ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (pr *panelRepo) DeleteByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  if comicID == uuid.Nil {
    return nil
  }

  return transaction.WithContext(ctx).
    Where("comic_id = ?", comicID).
    Delete(&types.Panel{}).Error
}
