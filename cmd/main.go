/**
 * @description
 * This is the main entry point for the sync-service. It is responsible for
 * initializing all components of the service, including configuration,
 * database connection, provider clients, message brokers, repositories, the
 * sync orchestrator, the cron scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Distributed sync locks.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/provider: Clients for external data providers.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/ledgerhub/sync-service/internal/api"
	"github.com/ledgerhub/sync-service/internal/app"
	"github.com/ledgerhub/sync-service/internal/config"
	"github.com/ledgerhub/sync-service/internal/store"
	"github.com/ledgerhub/sync-service/pkg/provider"
	"github.com/ledgerhub/sync-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env during local development; in deployment the environment is
	// injected and the file is absent.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		logger.Error("internal api key must be configured", "env", "INTERNAL_API_KEY")
		os.Exit(1)
	}

	logger.Info("starting sync-service", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Redis backs the per-account sync locks. Missing Redis degrades to a
	// process-local no-op lock rather than preventing boot; a single-worker
	// deployment does not need the distributed lock anyway.
	var locker app.SyncLocker = app.NoopSyncLocker{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using local sync locks", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using local sync locks", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				locker = app.NewRedisSyncLocker(redisClient, "sync:lock", time.Duration(cfg.SyncLockTTLSeconds)*time.Second)
				logger.Info("redis connected")
			}
		}
	} else {
		logger.Warn("redis url missing; using local sync locks", "env", "REDIS_URL")
	}

	// Initialize the RabbitMQ producer for job publishing (including the
	// delayed-retry topology) and the consumer for job processing.
	producer, err := rabbitmq.NewProducer(cfg.RabbitMQURL, cfg.SyncJobsExchange, cfg.SyncDelayQueue)
	if err != nil {
		logger.Error("rabbitmq producer init failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("rabbitmq producer connected")

	// Register the provider integrations this deployment supports.
	providers := provider.NewRegistry()
	for _, kind := range []provider.Kind{provider.KindMercury, provider.KindWise, provider.KindSnaptrade, provider.KindKraken} {
		providers.Register(provider.NewRESTClient(kind, cfg.ProviderAPIBaseURL, cfg.ProviderAPIKey))
	}

	// Wire the sync pipeline.
	importer := app.NewImporter(repository, logger)
	holdings := app.NewHoldingsMaterializer(repository, logger)
	balances := app.NewBalanceMaterializer(repository, logger)
	retry := app.NewRetryScheduler(
		producer,
		cfg.FetchRetryMaxAttempts,
		time.Duration(cfg.FetchRetryDelaySeconds)*time.Second,
		logger,
	)
	orchestrator := app.NewOrchestrator(repository, providers, importer, holdings, balances, retry, locker, producer, logger)

	// Start consuming sync jobs.
	jobConsumer := app.NewJobConsumer(orchestrator, logger)
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("rabbitmq consumer init failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	if err := consumer.ConsumeWithBindings(cfg.SyncJobsExchange, cfg.SyncJobsQueue, jobConsumer.Bindings()); err != nil {
		logger.Error("job consumer start failed", "error", err)
		os.Exit(1)
	}

	// Start the cron scheduler for the periodic sync sweep.
	jobs := app.NewJobs(repository, producer, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	// Set up the HTTP router and start the server.
	handlers := api.NewSyncHandlers(repository, producer, cfg, logger)
	webhooks := api.NewWebhookHandler(producer, cfg, logger)
	router := api.SyncRoutes(handlers, webhooks, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	logger.Info("shutdown complete")
}
