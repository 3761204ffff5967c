package handlers

import (
  "errors"
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/services"
)

type InteractionHandler struct {
  interactionService services.InteractionService
}

func NewInteractionHandler(interactionService services.InteractionService) *InteractionHandler {
  return &InteractionHandler{interactionService: interactionService}
}

// POST /api/v1/comics/:id/like
func (ih *InteractionHandler) ToggleLike(c *gin.Context) {
  comicID, userID, ok := ih.comicAndCaller(c, true)
  if !ok {
    return
  }
  stats, err := ih.interactionService.ToggleLike(c.Request.Context(), comicID, userID)
  if err != nil {
    ih.respondErr(c, err, "like_failed")
    return
  }
  RespondOK(c, stats)
}

// POST /api/v1/comics/:id/view
func (ih *InteractionHandler) RecordView(c *gin.Context) {
  comicID, _, ok := ih.comicAndCaller(c, false)
  if !ok {
    return
  }
  stats, err := ih.interactionService.RecordView(c.Request.Context(), comicID)
  if err != nil {
    ih.respondErr(c, err, "view_failed")
    return
  }
  RespondOK(c, stats)
}

// POST /api/v1/comics/:id/favorite
func (ih *InteractionHandler) ToggleFavorite(c *gin.Context) {
  comicID, userID, ok := ih.comicAndCaller(c, true)
  if !ok {
    return
  }
  stats, err := ih.interactionService.ToggleFavorite(c.Request.Context(), comicID, userID)
  if err != nil {
    ih.respondErr(c, err, "favorite_failed")
    return
  }
  RespondOK(c, stats)
}

// GET /api/v1/comics/:id/stats
func (ih *InteractionHandler) Stats(c *gin.Context) {
  comicID, userID, ok := ih.comicAndCaller(c, false)
  if !ok {
    return
  }
  stats, err := ih.interactionService.Stats(c.Request.Context(), comicID, userID)
  if err != nil {
    ih.respondErr(c, err, "stats_failed")
    return
  }
  RespondOK(c, stats)
}

// POST /api/v1/comics/:id/trash
func (ih *InteractionHandler) MoveToTrash(c *gin.Context) {
  comicID, userID, ok := ih.comicAndCaller(c, true)
  if !ok {
    return
  }
  if err := ih.interactionService.MoveToTrash(c.Request.Context(), comicID, userID); err != nil {
    ih.respondErr(c, err, "trash_failed")
    return
  }
  RespondOK(c, gin.H{"comic_id": comicID, "trashed": true})
}

// POST /api/v1/comics/:id/restore
func (ih *InteractionHandler) RestoreFromTrash(c *gin.Context) {
  comicID, userID, ok := ih.comicAndCaller(c, true)
  if !ok {
    return
  }
  if err := ih.interactionService.RestoreFromTrash(c.Request.Context(), comicID, userID); err != nil {
    ih.respondErr(c, err, "restore_failed")
    return
  }
  RespondOK(c, gin.H{"comic_id": comicID, "trashed": false})
}

func (ih *InteractionHandler) comicAndCaller(c *gin.Context, requireUser bool) (uuid.UUID, uuid.UUID, bool) {
  comicID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid comic id"))
    return uuid.Nil, uuid.Nil, false
  }
  userID := callerID(c)
  if requireUser && userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return uuid.Nil, uuid.Nil, false
  }
  return comicID, userID, true
}

func (ih *InteractionHandler) respondErr(c *gin.Context, err error, code string) {
  switch {
  case errors.Is(err, services.ErrComicNotFound):
    RespondError(c, http.StatusNotFound, "comic_not_found", err)
  case errors.Is(err, services.ErrNotOwner):
    RespondError(c, http.StatusForbidden, "forbidden", err)
  default:
    RespondError(c, http.StatusInternalServerError, code, err)
  }
}
