package handlers

import (
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/services"
)

type ComicHandler struct {
  genService     services.ComicGenerationService
  statusService  services.JobStatusService
  exploreService services.ExploreService
}

func NewComicHandler(
  genService services.ComicGenerationService,
  statusService services.JobStatusService,
  exploreService services.ExploreService,
) *ComicHandler {
  return &ComicHandler{
    genService:     genService,
    statusService:  statusService,
    exploreService: exploreService,
  }
}

// POST /api/v1/comics/generate
func (ch *ComicHandler) Generate(c *gin.Context) {
  var req services.GenerateComicRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }

  var userID *uuid.UUID
  if id := callerID(c); id != uuid.Nil {
    userID = &id
  }

  comic, job, err := ch.genService.Enqueue(c.Request.Context(), userID, req)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "enqueue_failed", err)
    return
  }

  c.JSON(http.StatusAccepted, gin.H{
    "comic_id": comic.ID,
    "job_id":   job.ID,
    "status":   job.Status,
    "message":  job.Message,
  })
}

// GET /api/v1/comics/status/:job_id
func (ch *ComicHandler) GetStatus(c *gin.Context) {
  jobID, err := uuid.Parse(c.Param("job_id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid job id"))
    return
  }

  status, err := ch.statusService.GetStatus(c.Request.Context(), jobID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "status_fetch_failed", err)
    return
  }
  if status == nil {
    RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job not found"))
    return
  }
  RespondOK(c, status)
}

// GET /api/v1/comics/:id
func (ch *ComicHandler) GetComic(c *gin.Context) {
  comicID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid comic id"))
    return
  }

  detail, err := ch.exploreService.GetComicDetail(c.Request.Context(), comicID, callerID(c))
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "comic_fetch_failed", err)
    return
  }
  if detail == nil {
    RespondError(c, http.StatusNotFound, "comic_not_found", fmt.Errorf("comic not found"))
    return
  }
  RespondOK(c, detail)
}

// GET /api/v1/comics/:id/panels
func (ch *ComicHandler) GetPanels(c *gin.Context) {
  comicID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid comic id"))
    return
  }

  detail, err := ch.exploreService.GetComicDetail(c.Request.Context(), comicID, callerID(c))
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "panels_fetch_failed", err)
    return
  }
  if detail == nil {
    RespondError(c, http.StatusNotFound, "comic_not_found", fmt.Errorf("comic not found"))
    return
  }
  RespondOK(c, gin.H{
    "comic_info":   detail.Comic,
    "panels":       detail.Panels,
    "total_panels": len(detail.Panels),
  })
}
