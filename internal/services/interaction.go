package services

import (
  "context"
  "fmt"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

// ComicStats is the counter snapshot returned after an interaction.
type ComicStats struct {
  ComicID   uuid.UUID `json:"comic_id"`
  LikeCount int       `json:"like_count"`
  ViewCount int       `json:"view_count"`
  Liked     bool      `json:"liked,omitempty"`
  Favorited bool      `json:"favorited,omitempty"`
}

type InteractionService interface {
  // ToggleLike flips the caller's like on a comic and keeps like_count in
  // step, all inside one transaction holding the comic row lock.
  ToggleLike(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error)

  // RecordView appends a view event and bumps view_count. Views are
  // anonymous; repeated views count every time.
  RecordView(ctx context.Context, comicID uuid.UUID) (*ComicStats, error)

  ToggleFavorite(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error)

  Stats(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error)

  // MoveToTrash soft-deletes the caller's own comic. RestoreFromTrash
  // undoes it. Both reject comics the caller does not own.
  MoveToTrash(ctx context.Context, comicID, userID uuid.UUID) error
  RestoreFromTrash(ctx context.Context, comicID, userID uuid.UUID) error
}

var (
  ErrComicNotFound = fmt.Errorf("comic not found")
  ErrNotOwner      = fmt.Errorf("comic belongs to another user")
)

type interactionService struct {
  db  *gorm.DB
  log *logger.Logger

  comicRepo    repos.ComicRepo
  likeRepo     repos.LikeRepo
  viewRepo     repos.ViewRepo
  favoriteRepo repos.FavoriteRepo
}

func NewInteractionService(
  db *gorm.DB,
  log *logger.Logger,
  comicRepo repos.ComicRepo,
  likeRepo repos.LikeRepo,
  viewRepo repos.ViewRepo,
  favoriteRepo repos.FavoriteRepo,
) InteractionService {
  return &interactionService{
    db:           db,
    log:          log.With("service", "InteractionService"),
    comicRepo:    comicRepo,
    likeRepo:     likeRepo,
    viewRepo:     viewRepo,
    favoriteRepo: favoriteRepo,
  }
}

func (s *interactionService) ToggleLike(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error) {
  var stats *ComicStats

  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    comic, err := s.comicRepo.GetForUpdate(ctx, tx, comicID)
    if err != nil {
      return err
    }
    if comic == nil || comic.IsDeleted {
      return ErrComicNotFound
    }

    existing, err := s.likeRepo.GetByComicAndUser(ctx, tx, comicID, userID)
    if err != nil {
      return err
    }

    liked := false
    delta := 0
    if existing == nil {
      if _, err := s.likeRepo.Create(ctx, tx, []*types.Like{{
        ID:      uuid.New(),
        ComicID: comicID,
        UserID:  userID,
      }}); err != nil {
        return err
      }
      liked = true
      delta = 1
    } else {
      if err := s.likeRepo.DeleteByComicAndUser(ctx, tx, comicID, userID); err != nil {
        return err
      }
      delta = -1
    }

    if err := s.comicRepo.IncrementCounter(ctx, tx, comicID, "like_count", delta); err != nil {
      return err
    }

    likeCount := comic.LikeCount + delta
    if likeCount < 0 {
      likeCount = 0
    }
    stats = &ComicStats{
      ComicID:   comicID,
      LikeCount: likeCount,
      ViewCount: comic.ViewCount,
      Liked:     liked,
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return stats, nil
}

func (s *interactionService) RecordView(ctx context.Context, comicID uuid.UUID) (*ComicStats, error) {
  var stats *ComicStats

  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    comic, err := s.comicRepo.GetForUpdate(ctx, tx, comicID)
    if err != nil {
      return err
    }
    if comic == nil || comic.IsDeleted {
      return ErrComicNotFound
    }

    if _, err := s.viewRepo.Create(ctx, tx, []*types.View{{
      ID:      uuid.New(),
      ComicID: comicID,
    }}); err != nil {
      return err
    }
    if err := s.comicRepo.IncrementCounter(ctx, tx, comicID, "view_count", 1); err != nil {
      return err
    }

    stats = &ComicStats{
      ComicID:   comicID,
      LikeCount: comic.LikeCount,
      ViewCount: comic.ViewCount + 1,
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return stats, nil
}

func (s *interactionService) ToggleFavorite(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error) {
  var stats *ComicStats

  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    comic, err := s.comicRepo.GetForUpdate(ctx, tx, comicID)
    if err != nil {
      return err
    }
    if comic == nil || comic.IsDeleted {
      return ErrComicNotFound
    }

    existing, err := s.favoriteRepo.GetByComicAndUser(ctx, tx, comicID, userID)
    if err != nil {
      return err
    }

    favorited := false
    if existing == nil {
      if _, err := s.favoriteRepo.Create(ctx, tx, []*types.Favorite{{
        ID:      uuid.New(),
        ComicID: comicID,
        UserID:  userID,
      }}); err != nil {
        return err
      }
      favorited = true
    } else {
      if err := s.favoriteRepo.DeleteByComicAndUser(ctx, tx, comicID, userID); err != nil {
        return err
      }
    }

    stats = &ComicStats{
      ComicID:   comicID,
      LikeCount: comic.LikeCount,
      ViewCount: comic.ViewCount,
      Favorited: favorited,
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return stats, nil
}

func (s *interactionService) Stats(ctx context.Context, comicID, userID uuid.UUID) (*ComicStats, error) {
  comics, err := s.comicRepo.GetByIDs(ctx, nil, []uuid.UUID{comicID})
  if err != nil {
    return nil, err
  }
  if len(comics) == 0 || comics[0].IsDeleted {
    return nil, ErrComicNotFound
  }
  comic := comics[0]

  stats := &ComicStats{
    ComicID:   comicID,
    LikeCount: comic.LikeCount,
    ViewCount: comic.ViewCount,
  }

  if userID != uuid.Nil {
    like, err := s.likeRepo.GetByComicAndUser(ctx, nil, comicID, userID)
    if err != nil {
      return nil, err
    }
    stats.Liked = like != nil

    favorite, err := s.favoriteRepo.GetByComicAndUser(ctx, nil, comicID, userID)
    if err != nil {
      return nil, err
    }
    stats.Favorited = favorite != nil
  }

  return stats, nil
}

func (s *interactionService) MoveToTrash(ctx context.Context, comicID, userID uuid.UUID) error {
  return s.setTrashed(ctx, comicID, userID, true)
}

func (s *interactionService) RestoreFromTrash(ctx context.Context, comicID, userID uuid.UUID) error {
  return s.setTrashed(ctx, comicID, userID, false)
}

func (s *interactionService) setTrashed(ctx context.Context, comicID, userID uuid.UUID, trashed bool) error {
  return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    comic, err := s.comicRepo.GetForUpdate(ctx, tx, comicID)
    if err != nil {
      return err
    }
    if comic == nil {
      return ErrComicNotFound
    }
    if comic.UserID == nil || *comic.UserID != userID {
      return ErrNotOwner
    }
    if comic.IsDeleted == trashed {
      return nil
    }
    return s.comicRepo.UpdateFields(ctx, tx, comicID, map[string]interface{}{
      "is_deleted": trashed,
    })
  })
}
