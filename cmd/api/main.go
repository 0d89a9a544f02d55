package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clinicore/backoffice/internal/config"
	"github.com/clinicore/backoffice/internal/handler"
	"github.com/clinicore/backoffice/internal/infra/postgresql"
	"github.com/clinicore/backoffice/internal/infra/postgresql/migrations"
	infraredis "github.com/clinicore/backoffice/internal/infra/redis"
	"github.com/clinicore/backoffice/internal/observability"
	"github.com/clinicore/backoffice/internal/provider"
	"github.com/clinicore/backoffice/internal/queue"
	"github.com/clinicore/backoffice/internal/repository"
	"github.com/clinicore/backoffice/internal/service"
	"github.com/clinicore/backoffice/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewServiceLogger("api", cfg.LogLevel)
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

	publisher := queue.NewRabbitMQPublisher(rabbit)

	triggerProvider, err := provider.NewHTTPTriggerProvider(cfg.ProviderTriggerURL, cfg.ProviderAPIKey)
	if err != nil {
		logger.Fatal("trigger provider initialization failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, cfg.ParseChannelRateLimits())
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	appointmentRepo := repository.NewGormAppointmentRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)

	metrics := observability.NewMetrics()

	schedulingService, err := service.NewSchedulingService(
		appointmentRepo,
		publisher,
		cfg.AllowCancelCompleted,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduling service initialization failed", zap.Error(err))
	}
	schedulingService.SetMetrics(metrics)

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

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	app.Get("/metrics", metrics.FiberHandler())

	if err := handler.RegisterAppointmentRoutes(app, schedulingService); err != nil {
		logger.Fatal("appointment routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(app, dispatchService); err != nil {
		logger.Fatal("notification routes registration failed", zap.Error(err))
	}

	go func() {
		logger.Info("clinic backoffice api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("http server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
}
