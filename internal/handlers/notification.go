package handlers

import (
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/repos"
)

type NotificationHandler struct {
  notificationRepo repos.NotificationRepo
}

func NewNotificationHandler(notificationRepo repos.NotificationRepo) *NotificationHandler {
  return &NotificationHandler{notificationRepo: notificationRepo}
}

// GET /api/v1/notifications?unread=true
func (nh *NotificationHandler) List(c *gin.Context) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }
  unreadOnly := c.Query("unread") == "true"
  notifications, err := nh.notificationRepo.ListByUser(c.Request.Context(), nil, userID, unreadOnly)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "list_failed", err)
    return
  }
  RespondOK(c, gin.H{"notifications": notifications})
}

// POST /api/v1/notifications/:id/read
func (nh *NotificationHandler) MarkRead(c *gin.Context) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }
  notificationID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid notification id"))
    return
  }
  if err := nh.notificationRepo.MarkRead(c.Request.Context(), nil, notificationID, userID); err != nil {
    RespondError(c, http.StatusInternalServerError, "mark_read_failed", err)
    return
  }
  RespondOK(c, gin.H{"notification_id": notificationID, "read": true})
}
