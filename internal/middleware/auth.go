package middleware

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/requestdata"
  "github.com/pixelbloom/comicforge-backend/internal/services"
)

type AuthMiddleware struct {
  log         *logger.Logger
  authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
  middlewareLogger := log.With("middleware", "AuthMiddleware")
  return &AuthMiddleware{log: middlewareLogger, authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }
    userID, err := am.authService.ParseUserID(tokenString)
    if err != nil {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
      return
    }
    if userID == uuid.Nil {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
      return
    }
    ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
      TokenString: tokenString,
      UserID:      userID,
    })
    c.Request = c.Request.WithContext(ctx)
    c.Next()
  }
}

// OptionalAuth attaches the caller's identity when a valid token is
// present but never rejects the request. Used by public browse routes
// that behave differently for signed-in users.
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractToken(c)
    if tokenString != "" {
      if userID, err := am.authService.ParseUserID(tokenString); err == nil && userID != uuid.Nil {
        ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
          TokenString: tokenString,
          UserID:      userID,
        })
        c.Request = c.Request.WithContext(ctx)
      }
    }
    c.Next()
  }
}

func extractToken(c *gin.Context) string {
  // Query token first: EventSource cannot set headers.
  if qToken := c.Query("token"); qToken != "" {
    return qToken
  }
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return ""
}
