package main

import (
  "context"
  "fmt"
  "time"

  "github.com/pixelbloom/comicforge-backend/internal/db"
  "github.com/pixelbloom/comicforge-backend/internal/handlers"
  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/middleware"
  "github.com/pixelbloom/comicforge-backend/internal/observability"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/server"
  "github.com/pixelbloom/comicforge-backend/internal/services"
  "github.com/pixelbloom/comicforge-backend/internal/sse"
  "github.com/pixelbloom/comicforge-backend/internal/utils"
)

func main() {
  logMode := "dev"
  log, err := logger.New(logMode)
  if err != nil {
    panic(fmt.Sprintf("failed to initialize logger: %v", err))
  }
  defer log.Sync()
  logMode = utils.GetEnv("LOG_MODE", "dev", log)
  if logMode != "dev" {
    if relog, err := logger.New(logMode); err == nil {
      log = relog
    }
  }

  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "", log)
  if jwtSecretKey == "" {
    log.Fatal("JWT_SECRET_KEY is required")
  }
  accessTTL := time.Duration(utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)) * time.Second
  refreshTTL := time.Duration(utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)) * time.Second

  ctx := context.Background()

  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "comicforge",
    Environment: utils.GetEnv("ENVIRONMENT", "dev", log),
    Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      if err := otelShutdown(shutdownCtx); err != nil {
        log.Warn("OTel shutdown failed", "error", err)
      }
    }()
  }

  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Fatal("Failed to initialize Postgres", "error", err)
  }
  if err := postgresService.AutoMigrateAll(); err != nil {
    log.Fatal("Failed to run migrations", "error", err)
  }
  gdb := postgresService.DB()

  userRepo := repos.NewUserRepo(gdb, log)
  userTokenRepo := repos.NewUserTokenRepo(gdb, log)
  comicRepo := repos.NewComicRepo(gdb, log)
  panelRepo := repos.NewPanelRepo(gdb, log)
  likeRepo := repos.NewLikeRepo(gdb, log)
  viewRepo := repos.NewViewRepo(gdb, log)
  favoriteRepo := repos.NewFavoriteRepo(gdb, log)
  notificationRepo := repos.NewNotificationRepo(gdb, log)
  generationJobRepo := repos.NewGenerationJobRepo(gdb, log)

  hub := sse.NewSSEHub(log)

  bucketService, err := services.NewBucketService(log)
  if err != nil {
    // Generation jobs cannot persist artifacts without a bucket, but the
    // read-only API still works, so keep booting.
    log.Warn("Bucket service unavailable, uploads disabled", "error", err)
  }

  openAIClient, err := services.NewOpenAIClient(log)
  if err != nil {
    log.Fatal("Failed to initialize OpenAI client", "error", err)
  }

  var avatarService services.AvatarService
  if bucketService != nil {
    avatarService, err = services.NewAvatarService(log, userRepo, bucketService)
    if err != nil {
      log.Warn("Avatar service unavailable", "error", err)
    }
  }

  sheetComposer, err := services.NewSheetComposer(log)
  if err != nil {
    log.Fatal("Failed to initialize sheet composer", "error", err)
  }

  authService := services.NewAuthService(gdb, log, userRepo, userTokenRepo, avatarService, jwtSecretKey, accessTTL, refreshTTL)
  userService := services.NewUserService(gdb, log, userRepo, avatarService)
  comicGenerationService := services.NewComicGenerationService(
    gdb, log,
    comicRepo, panelRepo, generationJobRepo, notificationRepo,
    openAIClient, bucketService, sheetComposer, hub,
  )
  jobStatusService := services.NewJobStatusService(log, generationJobRepo, comicRepo)
  exploreService := services.NewExploreService(log, comicRepo, panelRepo, generationJobRepo)
  interactionService := services.NewInteractionService(gdb, log, comicRepo, likeRepo, viewRepo, favoriteRepo)

  comicGenerationService.StartWorker(ctx)

  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  router := server.NewRouter(server.RouterConfig{
    ServiceName:         "comicforge",
    AuthMiddleware:      authMiddleware,
    AuthHandler:         handlers.NewAuthHandler(authService),
    UserHandler:         handlers.NewUserHandler(userService),
    ComicHandler:        handlers.NewComicHandler(comicGenerationService, jobStatusService, exploreService),
    ExploreHandler:      handlers.NewExploreHandler(exploreService),
    InteractionHandler:  handlers.NewInteractionHandler(interactionService),
    NotificationHandler: handlers.NewNotificationHandler(notificationRepo),
    SSEHandler:          handlers.NewSSEHandler(log, hub),
  })

  port := utils.GetEnv("PORT", "8080", log)
  log.Info("Starting server", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server exited", "error", err)
  }
}
