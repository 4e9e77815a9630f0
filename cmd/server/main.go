package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartflow/internal/api"
	"cartflow/internal/config"
	"cartflow/internal/event"
	"cartflow/internal/metrics"
	"cartflow/internal/model"
	"cartflow/internal/platform"
	"cartflow/internal/repository"
	"cartflow/internal/service"
	"cartflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// Repositories
	outboxRepo := repository.NewOutboxRepository(db)
	processedRepo := repository.NewProcessedEventRepository(db)
	rejectedRepo := repository.NewRejectedTaskRepository(db)
	failedPlatformRepo := repository.NewFailedPlatformEventRepository(db)
	productRepo := repository.NewProductRepository(db)
	rankingStore := repository.NewRankingStore(rdb, cfg.Ranking.DailyTTL, cfg.Ranking.WeeklyTTL)

	// Services
	observer := metrics.NewPrometheusObserver()
	locker := service.NewRedisLocker(rdb, cfg.Scheduler.LockTTL)

	rankingSvc := service.NewRankingService(rankingStore, productRepo, cfg.Ranking.DefaultLimit, cfg.Ranking.MaxLimit)

	breakerCfg := platform.BreakerConfig{
		RetryAttempts:    cfg.Platform.RetryAttempts,
		RetryDelay:       cfg.Platform.RetryDelay,
		FailureThreshold: cfg.Platform.FailureThreshold,
		Cooldown:         cfg.Platform.BreakerCooldown,
	}
	dataPlatform := platform.NewResilientDataPlatformClient(
		platform.NewHTTPDataPlatformClient(cfg.Platform.DataPlatformURL, cfg.Platform.Timeout), breakerCfg)
	notifier := platform.NewResilientNotificationClient(
		platform.NewHTTPNotificationClient(cfg.Platform.NotificationURL, cfg.Platform.Timeout), breakerCfg)

	bus := event.NewBus()
	consumer := service.NewEventConsumer(rankingSvc, processedRepo, rejectedRepo, failedPlatformRepo, dataPlatform, notifier)
	consumer.Register(bus)

	relay := service.NewRelay(outboxRepo, bus, locker, observer, cfg.Outbox)
	retrySvc := service.NewDeadLetterRetryService(
		rejectedRepo, failedPlatformRepo, rankingSvc, dataPlatform, notifier,
		locker, observer, cfg.DeadLetter, cfg.Outbox.RetentionDays)
	popularCache := service.NewPopularProductsCache(rdb, rankingSvc, locker, observer, cfg.Cache)

	// Background workers
	go func() {
		logger.Info("starting outbox relay")
		relay.Run(ctx)
	}()
	go func() {
		logger.Info("starting dead letter retry service")
		retrySvc.Run(ctx)
	}()
	go func() {
		logger.Info("starting popular products cache")
		popularCache.Run(ctx)
	}()

	// HTTP server
	r := api.RegisterRoutes(
		api.NewRankingHandler(rankingSvc, popularCache),
		api.NewOpsHandler(outboxRepo, rejectedRepo, db, rdb),
		rdb,
		cfg.RateLimit.RequestsPerSecond,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Dev convenience; production schemas belong to a real migration tool.
	err = db.AutoMigrate(
		&model.OutboxEvent{},
		&model.ProcessedEvent{},
		&model.RejectedTask{},
		&model.FailedPlatformEvent{},
		&model.Product{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
