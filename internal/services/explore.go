package services

import (
  "context"
  "strings"

  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/types"
  "github.com/pixelbloom/comicforge-backend/internal/utils"
)

// ComicDetail bundles a comic with its ordered panels for the reader view.
type ComicDetail struct {
  Comic  *types.Comic   `json:"comic"`
  Panels []*types.Panel `json:"panels"`
}

type ExploreService interface {
  // Search matches the query against the denormalized search text; a job
  // id narrows the result to that generation's comic.
  Search(ctx context.Context, query string, userID, jobID uuid.UUID) ([]*types.Comic, error)
  // Sample is the small random feed for the landing page; Random is the
  // full-size random browse feed.
  Sample(ctx context.Context) ([]*types.Comic, error)
  Random(ctx context.Context) ([]*types.Comic, error)
  TopViewed(ctx context.Context) ([]*types.Comic, error)

  MyComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error)
  LikedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error)
  FavoriteComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error)
  TrashedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error)

  // GetComicDetail returns nil when the comic does not exist or is trashed
  // for everyone but its owner.
  GetComicDetail(ctx context.Context, comicID, viewerID uuid.UUID) (*ComicDetail, error)
}

type exploreService struct {
  log       *logger.Logger
  comicRepo repos.ComicRepo
  panelRepo repos.PanelRepo
  jobRepo   repos.GenerationJobRepo

  feedSize   int
  sampleSize int
}

func NewExploreService(log *logger.Logger, comicRepo repos.ComicRepo, panelRepo repos.PanelRepo, jobRepo repos.GenerationJobRepo) ExploreService {
  serviceLog := log.With("service", "ExploreService")
  return &exploreService{
    log:        serviceLog,
    comicRepo:  comicRepo,
    panelRepo:  panelRepo,
    jobRepo:    jobRepo,
    feedSize:   utils.GetEnvAsInt("EXPLORE_FEED_SIZE", 20, serviceLog),
    sampleSize: utils.GetEnvAsInt("EXPLORE_SAMPLE_SIZE", 10, serviceLog),
  }
}

func (s *exploreService) Search(ctx context.Context, query string, userID, jobID uuid.UUID) ([]*types.Comic, error) {
  filter := repos.ComicFilter{
    Query:  strings.TrimSpace(query),
    UserID: userID,
  }
  if jobID != uuid.Nil {
    jobs, err := s.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{jobID})
    if err != nil {
      return nil, err
    }
    if len(jobs) == 0 {
      return []*types.Comic{}, nil
    }
    filter.ComicID = jobs[0].ComicID
  }
  return s.comicRepo.Search(ctx, nil, filter)
}

func (s *exploreService) Sample(ctx context.Context) ([]*types.Comic, error) {
  return s.comicRepo.RandomSample(ctx, nil, s.sampleSize)
}

func (s *exploreService) Random(ctx context.Context) ([]*types.Comic, error) {
  return s.comicRepo.RandomSample(ctx, nil, s.feedSize)
}

func (s *exploreService) TopViewed(ctx context.Context) ([]*types.Comic, error) {
  return s.comicRepo.TopByViews(ctx, nil, s.feedSize)
}

func (s *exploreService) MyComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
  return s.comicRepo.ListByUser(ctx, nil, userID)
}

func (s *exploreService) LikedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
  return s.comicRepo.ListLikedByUser(ctx, nil, userID)
}

func (s *exploreService) FavoriteComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
  return s.comicRepo.ListFavoritedByUser(ctx, nil, userID)
}

func (s *exploreService) TrashedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
  return s.comicRepo.ListTrashedByUser(ctx, nil, userID)
}

func (s *exploreService) GetComicDetail(ctx context.Context, comicID, viewerID uuid.UUID) (*ComicDetail, error) {
  comic, err := s.comicRepo.GetByIDWithCreator(ctx, nil, comicID)
  if err != nil {
    return nil, err
  }
  if comic == nil {
    return nil, nil
  }

  // Trashed comics stay visible to their owner only.
  if comic.IsDeleted {
    if comic.UserID == nil || viewerID == uuid.Nil || *comic.UserID != viewerID {
      return nil, nil
    }
  }

  panels, err := s.panelRepo.GetByComicID(ctx, nil, comicID)
  if err != nil {
    return nil, err
  }

  return &ComicDetail{Comic: comic, Panels: panels}, nil
}
