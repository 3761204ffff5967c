package db

import (
  "fmt"

  "gorm.io/driver/postgres"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/types"
  "github.com/pixelbloom/comicforge-backend/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "comicforge", log)

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  serviceLog.Info("Connecting to Postgres...")
  gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    serviceLog.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
  }

  if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
    serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
    return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
  }

  return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.User{},
    &types.UserToken{},
    &types.Comic{},
    &types.Panel{},
    &types.Like{},
    &types.View{},
    &types.Favorite{},
    &types.Notification{},
    &types.GenerationJob{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }

  s.log.Info("Configuring foreign key relationships for postgres tables...")
  constraints := []struct {
    name string
    sql  string
  }{
    {
      name: "fk_user_token_user_id",
      sql: `ALTER TABLE "user_token"
            ADD CONSTRAINT "fk_user_token_user_id"
            FOREIGN KEY ("user_id") REFERENCES "user"("id")
            ON DELETE CASCADE`,
    },
    {
      name: "fk_panel_comic_id",
      sql: `ALTER TABLE "panel"
            ADD CONSTRAINT "fk_panel_comic_id"
            FOREIGN KEY ("comic_id") REFERENCES "comic"("id")
            ON DELETE CASCADE`,
    },
    {
      name: "fk_like_comic_id",
      sql: `ALTER TABLE "like"
            ADD CONSTRAINT "fk_like_comic_id"
            FOREIGN KEY ("comic_id") REFERENCES "comic"("id")
            ON DELETE CASCADE`,
    },
    {
      name: "fk_view_comic_id",
      sql: `ALTER TABLE "view"
            ADD CONSTRAINT "fk_view_comic_id"
            FOREIGN KEY ("comic_id") REFERENCES "comic"("id")
            ON DELETE CASCADE`,
    },
    {
      name: "fk_favorite_comic_id",
      sql: `ALTER TABLE "favorite"
            ADD CONSTRAINT "fk_favorite_comic_id"
            FOREIGN KEY ("comic_id") REFERENCES "comic"("id")
            ON DELETE CASCADE`,
    },
    {
      name: "fk_generation_job_comic_id",
      sql: `ALTER TABLE "generation_job"
            ADD CONSTRAINT "fk_generation_job_comic_id"
            FOREIGN KEY ("comic_id") REFERENCES "comic"("id")
            ON DELETE CASCADE`,
    },
  }
  for _, c := range constraints {
    var exists bool
    if err := s.db.Raw(
      `SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
    ).Scan(&exists).Error; err != nil {
      return fmt.Errorf("failed to check constraint %s: %w", c.name, err)
    }
    if exists {
      continue
    }
    if err := s.db.Exec(c.sql).Error; err != nil {
      return fmt.Errorf("failed to add %s: %w", c.name, err)
    }
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
