package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

// ComicFilter narrows Search. Zero values mean "no filter".
type ComicFilter struct {
  Query   string
  UserID  uuid.UUID
  ComicID uuid.UUID
}

type ComicRepo interface {
  Create(ctx context.Context, tx *gorm.DB, comics []*types.Comic) ([]*types.Comic, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, comicIDs []uuid.UUID) ([]*types.Comic, error)
  GetByIDWithCreator(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.Comic, error)
  GetForUpdate(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.Comic, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, comicID uuid.UUID, updates map[string]interface{}) error
  IncrementCounter(ctx context.Context, tx *gorm.DB, comicID uuid.UUID, column string, delta int) error

  Search(ctx context.Context, tx *gorm.DB, filter ComicFilter) ([]*types.Comic, error)
  RandomSample(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Comic, error)
  TopByViews(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Comic, error)
  ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error)
  ListLikedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error)
  ListFavoritedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error)
  ListTrashedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error)
}

type comicRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewComicRepo(db *gorm.DB, baseLog *logger.Logger) ComicRepo {
  repoLog := baseLog.With("repo", "ComicRepo")
  return &comicRepo{db: db, log: repoLog}
}

func (cr *comicRepo) Create(ctx context.Context, tx *gorm.DB, comics []*types.Comic) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if len(comics) == 0 {
    return []*types.Comic{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&comics).Error; err != nil {
    return nil, err
  }

  return comics, nil
}

func (cr *comicRepo) GetByIDs(ctx context.Context, tx *gorm.DB, comicIDs []uuid.UUID) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var results []*types.Comic

  if len(comicIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", comicIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) GetByIDWithCreator(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if comicID == uuid.Nil {
    return nil, nil
  }

  var comic types.Comic
  err := transaction.WithContext(ctx).
    Preload("User").
    Where("id = ?", comicID).
    First(&comic).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &comic, nil
}

// GetForUpdate locks the row for the duration of the enclosing
// transaction. Callers must pass a tx.
func (cr *comicRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.Comic, error) {
  if tx == nil {
    return nil, errors.New("GetForUpdate requires a transaction")
  }
  if comicID == uuid.Nil {
    return nil, nil
  }

  var comic types.Comic
  err := tx.WithContext(ctx).
    Clauses(clause.Locking{Strength: "UPDATE"}).
    Where("id = ?", comicID).
    First(&comic).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &comic, nil
}

func (cr *comicRepo) UpdateFields(ctx context.Context, tx *gorm.DB, comicID uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if comicID == uuid.Nil || len(updates) == 0 {
    return nil
  }

  return transaction.WithContext(ctx).
    Model(&types.Comic{}).
    Where("id = ?", comicID).
    Updates(updates).Error
}

// IncrementCounter bumps like_count or view_count atomically. The column
// name is validated here because it is interpolated into an expression.
func (cr *comicRepo) IncrementCounter(ctx context.Context, tx *gorm.DB, comicID uuid.UUID, column string, delta int) error {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if comicID == uuid.Nil || delta == 0 {
    return nil
  }
  if column != "like_count" && column != "view_count" {
    return errors.New("unsupported counter column: " + column)
  }

  return transaction.WithContext(ctx).
    Model(&types.Comic{}).
    Where("id = ?", comicID).
    Update(column, gorm.Expr("GREATEST("+column+" + ?, 0)", delta)).Error
}

func (cr *comicRepo) Search(ctx context.Context, tx *gorm.DB, filter ComicFilter) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  q := transaction.WithContext(ctx).
    Model(&types.Comic{}).
    Where("is_deleted = ?", false)

  if filter.ComicID != uuid.Nil {
    q = q.Where("id = ?", filter.ComicID)
  }
  if filter.UserID != uuid.Nil {
    q = q.Where("user_id = ?", filter.UserID)
  }
  if filter.Query != "" {
    pattern := "%" + filter.Query + "%"
    q = q.Where("search_vector ILIKE ? OR title ILIKE ? OR prompt ILIKE ? OR story_text ILIKE ?", pattern, pattern, pattern, pattern)
  }

  var results []*types.Comic
  if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) RandomSample(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if limit <= 0 {
    return []*types.Comic{}, nil
  }

  var results []*types.Comic
  if err := transaction.WithContext(ctx).
    Where("is_deleted = ? AND status = ?", false, types.StatusCompleted).
    Order("RANDOM()").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) TopByViews(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if limit <= 0 {
    return []*types.Comic{}, nil
  }

  var results []*types.Comic
  if err := transaction.WithContext(ctx).
    Where("is_deleted = ? AND status = ?", false, types.StatusCompleted).
    Order("view_count DESC, created_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var results []*types.Comic
  if userID == uuid.Nil {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND is_deleted = ?", userID, false).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) ListLikedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
  return cr.listJoined(ctx, tx, userID, `"like"`)
}

func (cr *comicRepo) ListFavoritedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
  return cr.listJoined(ctx, tx, userID, `"favorite"`)
}

func (cr *comicRepo) listJoined(ctx context.Context, tx *gorm.DB, userID uuid.UUID, joinTable string) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var results []*types.Comic
  if userID == uuid.Nil {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Joins("JOIN "+joinTable+` j ON j.comic_id = "comic".id`).
    Where(`j.user_id = ? AND "comic".is_deleted = ?`, userID, false).
    Order("j.created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (cr *comicRepo) ListTrashedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var results []*types.Comic
  if userID == uuid.Nil {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND is_deleted = ?", userID, true).
    Order("updated_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
