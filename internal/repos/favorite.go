package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type FavoriteRepo interface {
  Create(ctx context.Context, tx *gorm.DB, favorites []*types.Favorite) ([]*types.Favorite, error)
  GetByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) (*types.Favorite, error)
  DeleteByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) error
}

type favoriteRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewFavoriteRepo(db *gorm.DB, baseLog *logger.Logger) FavoriteRepo {
  repoLog := baseLog.With("repo", "FavoriteRepo")
  return &favoriteRepo{db: db, log: repoLog}
}

func (fr *favoriteRepo) Create(ctx context.Context, tx *gorm.DB, favorites []*types.Favorite) ([]*types.Favorite, error) {
  transaction := tx
  if transaction == nil {
    transaction = fr.db
  }

  if len(favorites) == 0 {
    return []*types.Favorite{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&favorites).Error; err != nil {
    return nil, err
  }

  return favorites, nil
}

func (fr *favoriteRepo) GetByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) (*types.Favorite, error) {
  transaction := tx
  if transaction == nil {
    transaction = fr.db
  }

  if comicID == uuid.Nil || userID == uuid.Nil {
    return nil, nil
  }

  var favorite types.Favorite
  err := transaction.WithContext(ctx).
    Where("comic_id = ? AND user_id = ?", comicID, userID).
    First(&favorite).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &favorite, nil
}

func (fr *favoriteRepo) DeleteByComicAndUser(ctx context.Context, tx *gorm.DB, comicID, userID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = fr.db
  }

  if comicID == uuid.Nil || userID == uuid.Nil {
    return nil
  }

  return transaction.WithContext(ctx).
    Where("comic_id = ? AND user_id = ?", comicID, userID).
    Delete(&types.Favorite{}).Error
}
