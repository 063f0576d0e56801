// Command server runs the upload API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/storyforge/storyforge-backend/internal/api"
	"github.com/storyforge/storyforge-backend/internal/config"
	"github.com/storyforge/storyforge-backend/internal/database"
	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/queue"
	"github.com/storyforge/storyforge-backend/internal/repository"
	"github.com/storyforge/storyforge-backend/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("storyforge-api", "production").Fatal().Err(err).Msg("load config")
	}
	log := logging.New("storyforge-api", cfg.Server.Environment)

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewProjectRepository(pool)

	store, err := s3storage.New(cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bucket")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	server := api.New(cfg, repo, store, queue.NewClient(asynqClient), log)
	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
