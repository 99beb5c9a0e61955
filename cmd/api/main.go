package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelmint/backend/internal/auth"
	"github.com/pixelmint/backend/internal/billing"
	"github.com/pixelmint/backend/internal/config"
	"github.com/pixelmint/backend/internal/dashboard"
	"github.com/pixelmint/backend/internal/generate"
	"github.com/pixelmint/backend/internal/idempotency"
	"github.com/pixelmint/backend/internal/ledger"
	"github.com/pixelmint/backend/internal/middleware"
	"github.com/pixelmint/backend/internal/provider"
	"github.com/pixelmint/backend/internal/ratelimit"
	"github.com/pixelmint/backend/internal/repository"
	"github.com/pixelmint/backend/internal/router"
	"github.com/pixelmint/backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure it is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Ledger
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))

	// Background workers: credit grants from billing webhooks.
	workers := river.NewWorkers()
	river.AddWorker(workers, billing.NewGrantCreditsWorker(ledgerSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Redis backs the rate limiter and idempotency store when
	// configured. Without it each instance falls back to in-process
	// state, fine for a single node.
	var limiter ratelimit.Limiter
	var idemStore idempotency.Store
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := goredis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Cannot reach Redis", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedisLimiter(rdb, logger)
		idemStore = idempotency.NewRedisStore(rdb, 0)
		slog.Info("Connected to Redis")
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		idemStore = idempotency.NewMemoryStore(0)
		slog.Warn("REDIS_URL not set, using in-process rate limiting and idempotency")
	}

	// Object storage for generated artifacts.
	var store storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			slog.Error("Object storage init failed", "error", err)
			os.Exit(1)
		}
		store = minioStore
	} else {
		store = storage.NewMemoryStore()
		slog.Warn("MINIO_ENDPOINT not set, storing objects in memory")
	}

	// Generation pipeline.
	kie := provider.NewKieClient(cfg.KieBaseURL, cfg.KieAPIKey, nil)
	runner := provider.NewRunner(kie, store, provider.RunnerConfig{
		InlineLimit:  cfg.InlineLimit,
		PollTimeout:  cfg.PollTimeout,
		PollInterval: cfg.PollInterval,
	}, logger)

	userRepo := repository.NewUserRepo(pool)
	assetRepo := repository.NewAssetRepo(pool)
	signer := storage.NewURLSigner(cfg.SignerSecret)

	genSvc := generate.NewService(ledgerSvc, idemStore, limiter, runner, assetRepo, signer, generate.Config{
		CreditsPerImage: cfg.CreditsPerImage,
		RateLimit:       cfg.RateLimit,
		RateWindow:      cfg.RateWindow,
		WatermarkText:   cfg.WatermarkText,
	}, logger)

	// Handlers
	authSvc := auth.NewService(auth.NewRepository(pool), ledgerSvc, logger)
	deps := router.Deps{
		Auth:    auth.NewHandler(authSvc, logger),
		Tools:   &generate.Handler{Service: genSvc, Logger: logger},
		Dash:    dashboard.NewHandler(ledgerSvc, assetRepo, userRepo, store, signer, logger),
		Billing: &billing.WebhookHandler{Jobs: riverClient, Secret: cfg.WebhookSecret, Logger: logger},

		SessionAuth: middleware.SessionAuth(authSvc, userRepo),
		OriginCheck: middleware.OriginCheck(cfg.AllowedOrigins),
		SpendLimit:  middleware.SpendLimit(pool, cfg.CreditsPerImage),
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(router.New(deps))

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
