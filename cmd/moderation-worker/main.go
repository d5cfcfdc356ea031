package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/salehop/salehop-api/internal/config"
	"github.com/salehop/salehop-api/internal/domain/moderation"
	"github.com/salehop/salehop-api/internal/domain/reference"
	"github.com/salehop/salehop-api/internal/domain/strike"
	"github.com/salehop/salehop-api/internal/middleware"
	"github.com/salehop/salehop-api/internal/pkg/database"
	"github.com/salehop/salehop-api/internal/pkg/logger"
	"github.com/salehop/salehop-api/internal/pkg/response"
	"github.com/salehop/salehop-api/internal/pkg/safety"
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
		Service:     "moderation-worker",
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting moderation worker")

	// Connections are made on the first event so that a bad configuration
	// fails each delivery (and is retried) instead of the process.
	provider := moderation.NewLazyProvider(func(ctx context.Context) (*moderation.Pipeline, func(), error) {
		return buildPipeline(ctx, cfg)
	})
	defer provider.Close()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(moderation.NewHandler(provider)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ModerationDeadline + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ModerationDeadline+5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited properly")
}

func newRouter(h *moderation.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"service": "moderation-worker",
		})
	})

	r.Mount("/moderation", h.Routes())
	r.HandleFunc("/", h.HandleEvent)

	return r
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*moderation.Pipeline, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	policy, err := safety.NewPolicy(cfg.SafetyThreshold, cfg.SafetyGatedCategories)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewS3Store(ctx, storageConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	classifier, err := buildClassifier(cfg, store)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseName)
	if err != nil {
		return nil, nil, err
	}

	deps := moderation.EngineDeps{
		Store: store,
		Assessor: safety.NewChecker(safety.WithRetry(classifier, safety.RetryConfig{
			MaxRetries:   cfg.ClassifierMaxRetries,
			InitialDelay: cfg.ClassifierRetryDelay,
			Jitter:       0.1,
		}), policy),
		References:    reference.NewRepository(db),
		Strikes:       strike.NewLedger(strike.NewRepository(db)),
		Rejections:    moderation.NewRejectionRepository(db),
		PublicBaseURL: cfg.PublicBaseURL,
	}

	// Redis is optional: without it there is no per-object lock and the
	// reconciler only runs on its interval.
	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without lock and notifications")
		rdb = nil
	}
	if rdb != nil {
		deps.Locker = moderation.NewRedisLocker(rdb, cfg.LockTTL)
		deps.Notifier = moderation.NewRedisNotifier(rdb)
	}

	engine := moderation.NewEngine(deps)
	pipeline := moderation.NewPipeline(moderation.NewNormalizer(store), engine, cfg.ModerationDeadline)

	closeFn := func() {
		database.CloseRedis(rdb)
		database.ClosePostgres(db)
	}
	return pipeline, closeFn, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	}
}
