package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clinicore/backoffice/internal/config"
	"github.com/clinicore/backoffice/internal/infra/postgresql"
	"github.com/clinicore/backoffice/internal/infra/postgresql/migrations"
	infraredis "github.com/clinicore/backoffice/internal/infra/redis"
	"github.com/clinicore/backoffice/internal/observability"
	"github.com/clinicore/backoffice/internal/provider"
	"github.com/clinicore/backoffice/internal/queue"
	"github.com/clinicore/backoffice/internal/repository"
	"github.com/clinicore/backoffice/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewServiceLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	triggerProvider, err := provider.NewHTTPTriggerProvider(cfg.ProviderTriggerURL, cfg.ProviderAPIKey)
	if err != nil {
		logger.Fatal("trigger provider initialization failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, cfg.ParseChannelRateLimits())
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	metrics := observability.NewMetrics()

	dispatchService, err := service.NewDispatchService(
		notificationRepo,
		triggerProvider,
		service.NewWorkflowResolver(cfg.ParseWorkflowMap()),
		rateLimiter,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatch service initialization failed", zap.Error(err))
	}
	dispatchService.SetMetrics(metrics)

	scanner, err := service.NewPendingScanner(
		notificationRepo,
		dispatchService,
		time.Duration(cfg.PendingScanInterval)*time.Second,
		0,
		logger,
	)
	if err != nil {
		logger.Fatal("pending scanner initialization failed", zap.Error(err))
	}
	scanner.SetMetrics(metrics)

	consumer, err := queue.NewTriggerConsumer(rabbit, dispatchService, cfg.ConsumerPrefetch, logger)
	if err != nil {
		logger.Fatal("trigger consumer initialization failed", zap.Error(err))
	}
	consumer.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("notification trigger consumer started",
			zap.String("queue", queue.NotificationTriggerQueue),
		)
		return consumer.Run(groupCtx)
	})

	g.Go(func() error {
		logger.Info("pending scanner started",
			zap.Int("intervalSeconds", cfg.PendingScanInterval),
		)
		return scanner.Start(groupCtx)
	})

	logger.Info("clinic backoffice worker started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}
