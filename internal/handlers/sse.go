package handlers

import (
  "fmt"
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/sse"
)

type SSEHandler struct {
  log *logger.Logger
  hub *sse.SSEHub
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
  return &SSEHandler{log: log.With("handler", "SSEHandler"), hub: hub}
}

// GET /api/v1/sse/stream?jobs=<id>,<id>
//
// The stream always carries the caller's notification channel; job
// progress channels are added from the jobs query param.
func (sh *SSEHandler) Stream(c *gin.Context) {
  userID := callerID(c)
  if userID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no user in context"))
    return
  }

  client := sh.hub.NewSSEClient(userID)
  sh.hub.AddChannel(client, sse.UserChannel(userID))

  if raw := c.Query("jobs"); raw != "" {
    for _, part := range strings.Split(raw, ",") {
      jobID, err := uuid.Parse(strings.TrimSpace(part))
      if err != nil {
        continue
      }
      sh.hub.AddChannel(client, sse.JobChannel(jobID))
    }
  }

  defer sh.hub.CloseClient(client)
  sh.hub.ServeHTTP(c.Writer, c.Request, client)
}

// GET /api/v1/comics/stream/:job_id
//
// Single-job progress stream. Generation is open to anonymous callers,
// so this stream is too; job ids are unguessable UUIDs.
func (sh *SSEHandler) StreamJob(c *gin.Context) {
  jobID, err := uuid.Parse(c.Param("job_id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid job id"))
    return
  }

  client := sh.hub.NewSSEClient(callerID(c))
  sh.hub.AddChannel(client, sse.JobChannel(jobID))

  defer sh.hub.CloseClient(client)
  sh.hub.ServeHTTP(c.Writer, c.Request, client)
}
