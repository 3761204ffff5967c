package server

import (
  "strings"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

  "github.com/pixelbloom/comicforge-backend/internal/handlers"
  "github.com/pixelbloom/comicforge-backend/internal/middleware"
)

type RouterConfig struct {
  ServiceName  string
  AllowOrigins []string

  AuthMiddleware      *middleware.AuthMiddleware
  AuthHandler         *handlers.AuthHandler
  UserHandler         *handlers.UserHandler
  ComicHandler        *handlers.ComicHandler
  ExploreHandler      *handlers.ExploreHandler
  InteractionHandler  *handlers.InteractionHandler
  NotificationHandler *handlers.NotificationHandler
  SSEHandler          *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  serviceName := strings.TrimSpace(cfg.ServiceName)
  if serviceName == "" {
    serviceName = "comicforge"
  }
  router.Use(otelgin.Middleware(serviceName))

  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5173",
    }
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  router.GET("/health", handlers.HealthCheck)
  router.GET("/healthcheck", handlers.HealthCheck)

  api := router.Group("/api/v1")

  // Public
  api.POST("/auth/register", cfg.AuthHandler.Register)
  api.POST("/auth/login", cfg.AuthHandler.Login)
  api.POST("/auth/refresh", cfg.AuthHandler.Refresh)
  api.POST("/auth/logout", cfg.AuthHandler.Logout)

  // Browse routes work anonymously but honor identity when present
  // (trashed-comic visibility, like/favorite flags in stats).
  browse := api.Group("/")
  browse.Use(cfg.AuthMiddleware.OptionalAuth())
  browse.GET("/explore/search", cfg.ExploreHandler.Search)
  browse.GET("/explore/explore", cfg.ExploreHandler.Sample)
  browse.GET("/explore/comics", cfg.ExploreHandler.Random)
  browse.GET("/explore/top", cfg.ExploreHandler.TopViewed)
  browse.GET("/comics/:id", cfg.ComicHandler.GetComic)
  browse.GET("/comics/:id/panels", cfg.ComicHandler.GetPanels)
  browse.GET("/comics/:id/stats", cfg.InteractionHandler.Stats)
  browse.POST("/comics/:id/view", cfg.InteractionHandler.RecordView)
  browse.GET("/comics/status/:job_id", cfg.ComicHandler.GetStatus)
  browse.GET("/comics/stream/:job_id", cfg.SSEHandler.StreamJob)
  browse.POST("/comics/generate", cfg.ComicHandler.Generate)

  // Protected
  protected := api.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  protected.GET("/me", cfg.UserHandler.GetMe)
  protected.PATCH("/me", cfg.UserHandler.UpdateName)
  protected.GET("/me/comics", cfg.ExploreHandler.MyComics)
  protected.GET("/me/likes", cfg.ExploreHandler.LikedComics)
  protected.GET("/me/favorites", cfg.ExploreHandler.FavoriteComics)
  protected.GET("/me/trash", cfg.ExploreHandler.TrashedComics)
  protected.POST("/comics/:id/like", cfg.InteractionHandler.ToggleLike)
  protected.POST("/comics/:id/favorite", cfg.InteractionHandler.ToggleFavorite)
  protected.POST("/comics/:id/trash", cfg.InteractionHandler.MoveToTrash)
  protected.POST("/comics/:id/restore", cfg.InteractionHandler.RestoreFromTrash)
  protected.GET("/notifications", cfg.NotificationHandler.List)
  protected.POST("/notifications/:id/read", cfg.NotificationHandler.MarkRead)
  protected.GET("/sse/stream", cfg.SSEHandler.Stream)

  return router
}
