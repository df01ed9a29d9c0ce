package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pricepulse/pricepulse/configs"
	"github.com/pricepulse/pricepulse/internal/cache"
	"github.com/pricepulse/pricepulse/internal/handler"
	"github.com/pricepulse/pricepulse/internal/pricereader"
	"github.com/pricepulse/pricepulse/internal/producer"
	"github.com/pricepulse/pricepulse/internal/provider"
	"github.com/pricepulse/pricepulse/internal/ratelimit"
	"github.com/pricepulse/pricepulse/internal/router"
	"github.com/pricepulse/pricepulse/internal/scheduler"
	"github.com/pricepulse/pricepulse/internal/service"
	"github.com/pricepulse/pricepulse/internal/storage"
)

// The api binary hosts the HTTP endpoints and the polling job
// scheduler: jobs submitted over the API run in this process.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := configs.AppLoad()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Error("Failed to connect to DB", "error", err)
		os.Exit(1)
	}
	store := storage.NewGormStore(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	priceCache := cache.NewRedisCache(redisClient, cfg.Redis.PriceTTL, cfg.Redis.NegativeTTL, logger)

	providers := provider.NewRegistry(cfg.Provider.Default)
	providers.Register(provider.NewAlphaVantage(
		cfg.Provider.AlphaVantageKey,
		cfg.Provider.AlphaVantageURL,
		cfg.Provider.RequestTimeout,
	))

	limiter := ratelimit.New(cfg.Provider.RatePerMinute, cfg.Provider.AcquireMaxWait)

	events := producer.New(
		producer.NewWriter(cfg.Kafka.Broker, cfg.Kafka.PriceTopic),
		producer.NewWriter(cfg.Kafka.Broker, cfg.Kafka.AverageTopic),
		cfg.Kafka.PublishTimeout,
		cfg.Kafka.RetryQueueSize,
		logger,
	)

	reader := pricereader.New(providers, limiter, priceCache, store, events, logger)

	sched := scheduler.New(reader, store, scheduler.Config{
		MaxConcurrentFetches: cfg.Scheduler.MaxConcurrentFetches,
		FailureThreshold:     cfg.Scheduler.FailureThreshold,
		DefaultInterval:      cfg.Scheduler.DefaultInterval,
	}, logger)

	marketService := service.NewMarketService(reader, sched, store)

	engine := router.NewRouter(&router.Config{
		PriceHandler: handler.NewPriceHandler(marketService),
		JobHandler:   handler.NewJobHandler(marketService),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events.Start(ctx)

	go func() {
		if err := sched.Start(ctx); err != nil {
			logger.Error("Scheduler stopped with error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}

	go func() {
		logger.Info("API server started", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server stopped with error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}

	if err := events.Close(); err != nil {
		logger.Error("Error closing producer", "error", err)
	}

	logger.Info("Shutdown complete")
}
