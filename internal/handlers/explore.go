package handlers

import (
  "context"
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/services"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type ExploreHandler struct {
  exploreService services.ExploreService
}

func NewExploreHandler(exploreService services.ExploreService) *ExploreHandler {
  return &ExploreHandler{exploreService: exploreService}
}

// GET /api/v1/explore/search?q=&user_id=&job_id=
func (eh *ExploreHandler) Search(c *gin.Context) {
  var userID, jobID uuid.UUID
  if raw := c.Query("user_id"); raw != "" {
    id, err := uuid.Parse(raw)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid user_id"))
      return
    }
    userID = id
  }
  if raw := c.Query("job_id"); raw != "" {
    id, err := uuid.Parse(raw)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid job_id"))
      return
    }
    jobID = id
  }

  comics, err := eh.exploreService.Search(c.Request.Context(), c.Query("q"), userID, jobID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "search_failed", err)
    return
  }
  RespondOK(c, gin.H{"comics": comics})
}

// GET /api/v1/explore/explore
func (eh *ExploreHandler) Sample(c *gin.Context) {
  comics, err := eh.exploreService.Sample(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "feed_failed", err)
    return
  }
  RespondOK(c, gin.H{"comics": comics})
}

// GET /api/v1/explore/comics
func (eh *ExploreHandler) Random(c *gin.Context) {
  comics, err := eh.exploreService.Random(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "feed_failed", err)
    return
  }
  RespondOK(c, gin.H{"comics": comics})
}

// GET /api/v1/explore/top
func (eh *ExploreHandler) TopViewed(c *gin.Context) {
  comics, err := eh.exploreService.TopViewed(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "feed_failed", err)
    return
  }
  RespondOK(c, gin.H{"comics": comics})
}

// GET /api/v1/me/comics
func (eh *ExploreHandler) MyComics(c *gin.Context) {
  eh.respondUserList(c, eh.exploreService.MyComics)
}

// GET /api/v1/me/likes
func (eh *ExploreHandler) LikedComics(c *gin.Context) {
  eh.respondUserList(c, eh.exploreService.LikedComics)
}

// GET /api/v1/me/favorites
func (eh *ExploreHandler) FavoriteComics(c *gin.Context) {
  eh.respondUserList(c, eh.exploreService.FavoriteComics)
}

// GET /api/v1/me/trash
func (eh *ExploreHandler) TrashedComics(c *gin.Context) {
  eh.respondUserList(c, eh.exploreService.TrashedComics)
}

func (eh *ExploreHandler) respondUserList(c *gin.Context, list func(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error)) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }
  comics, err := list(c.Request.Context(), userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "list_failed", err)
    return
  }
  RespondOK(c, gin.H{"comics": comics})
}
