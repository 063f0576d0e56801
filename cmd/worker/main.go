// Command worker consumes processing jobs from the queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyforge/storyforge-backend/internal/config"
	"github.com/storyforge/storyforge-backend/internal/database"
	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/pipeline"
	"github.com/storyforge/storyforge-backend/internal/progress"
	"github.com/storyforge/storyforge-backend/internal/repository"
	"github.com/storyforge/storyforge-backend/internal/s3storage"
	"github.com/storyforge/storyforge-backend/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("storyforge-worker", "production").Fatal().Err(err).Msg("load config")
	}
	log := logging.New("storyforge-worker", cfg.Server.Environment)

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	notifier := progress.NewNotifier(redisClient, log)

	pipe := pipeline.New(repo, store, log, pipeline.WithNotifier(notifier))
	processor := worker.NewProcessor(pipe, log)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
