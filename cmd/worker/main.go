package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshitverma317/diagnoai/internal/cache"
	"github.com/akshitverma317/diagnoai/internal/config"
	"github.com/akshitverma317/diagnoai/internal/database"
	"github.com/akshitverma317/diagnoai/internal/log"
	"github.com/akshitverma317/diagnoai/internal/queue"
	"github.com/akshitverma317/diagnoai/internal/repository"
	"github.com/akshitverma317/diagnoai/internal/storage"
	"github.com/akshitverma317/diagnoai/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "diagnoai-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, "diagnoai-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		repository.NewAccountRepository(dbPool),
		repository.NewStudyRepository(dbPool),
		objectStore,
		tasks.Options{
			PremiumLimit: cfg.Quota.PremiumLimit,
			StudyTTL:     cfg.Retention.StudyTTL,
			BatchSize:    cfg.Retention.BatchSize,
		},
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
