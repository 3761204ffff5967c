package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type LikeRepo interface {
  Create(ctx context.Context, tx *gorm.DB, likes []*types.Like) ([]*types.Like, error)
  GetByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) (*types.Like, error)
  DeleteByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) error
  CountByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (int64, error)
}

type likeRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewLikeRepo(db *gorm.DB, baseLog *logger.Logger) LikeRepo {
  repoLog := baseLog.With("repo", "LikeRepo")
  return &likeRepo{db: db, log: repoLog}
}

func (lr *likeRepo) Create(ctx context.Context, tx *gorm.DB, likes []*types.Like) ([]*types.Like, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  if len(likes) == 0 {
    return []*types.Like{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&likes).Error; err != nil {
    return nil, err
  }

  return likes, nil
}

func (lr *likeRepo) GetByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) (*types.Like, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  if comicID == uuid.Nil || userID == uuid.Nil {
    return nil, nil
  }

  var like types.Like
  err := transaction.WithContext(ctx).
    Where("comic_id = ? AND user_id = ?", comicID, userID).
    First(&like).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &like, nil
}

func (lr *likeRepo) DeleteByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  if comicID == uuid.Nil || userID == uuid.Nil {
    return nil
  }

  return transaction.WithContext(ctx).
    Where("comic_id = ? AND user_id = ?", comicID, userID).
    Delete(&types.Like{}).Error
}

func (lr *likeRepo) CountByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  var count int64
  if comicID == uuid.Nil {
    return 0, nil
  }

  if err := transaction.WithContext(ctx).
    Model(&types.Like{}).
    Where("comic_id = ?", comicID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}
