package repos

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type NotificationRepo interface {
  Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error)
  ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unreadOnly bool) ([]*types.Notification, error)
  MarkRead(ctx context.Context, tx *gorm.DB, notificationID, userID uuid.UUID) error
}

type notificationRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
  repoLog := baseLog.With("repo", "NotificationRepo")
  return &notificationRepo{db: db, log: repoLog}
}

func (nr *notificationRepo) Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error) {
  transaction := tx
  if transaction == nil {
    transaction = nr.db
  }

  if len(notifications) == 0 {
    return []*types.Notification{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&notifications).Error; err != nil {
    return nil, err
  }

  return notifications, nil
}

func (nr *notificationRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unreadOnly bool) ([]*types.Notification, error) {
  transaction := tx
  if transaction == nil {
    transaction = nr.db
  }

  var results []*types.Notification
  if userID == uuid.Nil {
    return results, nil
  }

  q := transaction.WithContext(ctx).Where("user_id = ?", userID)
  if unreadOnly {
    q = q.Where("read_at IS NULL")
  }

  if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (nr *notificationRepo) MarkRead(ctx context.Context, tx *gorm.DB, notificationID, userID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = nr.db
  }

  if notificationID == uuid.Nil || userID == uuid.Nil {
    return nil
  }

  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.Notification{}).
    Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
    Update("read_at", now).Error
}
