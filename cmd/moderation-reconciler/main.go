package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/salehop/salehop-api/internal/config"
	"github.com/salehop/salehop-api/internal/domain/moderation"
	"github.com/salehop/salehop-api/internal/domain/reference"
	"github.com/salehop/salehop-api/internal/pkg/database"
	"github.com/salehop/salehop-api/internal/pkg/logger"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read configuration")
	}

	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		Service:     "moderation-reconciler",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Dur("interval", cfg.ReconcileInterval).
		Dur("grace", cfg.ReconcileGrace).
		Msg("Starting moderation reconciler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object store client")
	}

	// Optional: sync-miss notices trigger an immediate sweep (polling still runs)
	wake := make(chan struct{}, 1)
	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, polling only")
	} else if rdb != nil {
		defer database.CloseRedis(rdb)
		go moderation.SubscribeWakeups(ctx, rdb, wake)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	reconciler := moderation.NewReconciler(moderation.ReconcilerConfig{
		Store:         store,
		References:    reference.NewRepository(db),
		Rejections:    moderation.NewRejectionRepository(db),
		Bucket:        cfg.DefaultBucket,
		PublicBaseURL: cfg.PublicBaseURL,
		Grace:         cfg.ReconcileGrace,
		Batch:         cfg.ReconcileBatch,
	})

	// Sweep once at startup, then on every tick or wake-up.
	wake <- struct{}{}
	reconciler.Run(ctx, cfg.ReconcileInterval, wake)
}
