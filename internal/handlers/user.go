package handlers

import (
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/requestdata"
  "github.com/pixelbloom/comicforge-backend/internal/services"
)

type UserHandler struct {
  userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
  return &UserHandler{userService: userService}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }
  user, err := uh.userService.GetByID(c.Request.Context(), userID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "user_fetch_failed", err)
    return
  }
  if user == nil {
    RespondError(c, http.StatusNotFound, "user_not_found", fmt.Errorf("user not found"))
    return
  }
  RespondOK(c, gin.H{"user": user})
}

func (uh *UserHandler) UpdateName(c *gin.Context) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }
  var req struct {
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  user, err := uh.userService.UpdateName(c.Request.Context(), userID, req.FirstName, req.LastName)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "user_update_failed", err)
    return
  }
  RespondOK(c, gin.H{"user": user})
}

// callerID pulls the authenticated user from request context; uuid.Nil
// when the request is anonymous.
func callerID(c *gin.Context) uuid.UUID {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    return uuid.Nil
  }
  return rd.UserID
}
