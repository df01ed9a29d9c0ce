package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pricepulse/pricepulse/configs"
	"github.com/pricepulse/pricepulse/internal/consumer"
	"github.com/pricepulse/pricepulse/internal/producer"
	"github.com/pricepulse/pricepulse/internal/storage"
)

// The consumer binary subscribes to price events, computes per-symbol
// moving averages and publishes the derived average events.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := configs.AppLoad()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Error("Failed to connect to DB", "error", err)
		os.Exit(1)
	}
	store := storage.NewGormStore(db)

	events := producer.New(
		producer.NewWriter(cfg.Kafka.Broker, cfg.Kafka.PriceTopic),
		producer.NewWriter(cfg.Kafka.Broker, cfg.Kafka.AverageTopic),
		cfg.Kafka.PublishTimeout,
		cfg.Kafka.RetryQueueSize,
		logger,
	)

	kafkaReader := consumer.NewReader(cfg.Kafka.Broker, cfg.Kafka.PriceTopic, cfg.Kafka.GroupID)

	svc := consumer.New(kafkaReader, store, events, consumer.Config{
		Period:  cfg.Consumer.Period,
		Workers: cfg.Consumer.Workers,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events.Start(ctx)

	logger.Info("Moving-average consumer started")

	if err := svc.Start(ctx); err != nil {
		logger.Error("Consumer stopped with error", "error", err)
		os.Exit(1)
	}

	if err := events.Close(); err != nil {
		logger.Error("Error closing producer", "error", err)
	}

	logger.Info("Consumer shutdown complete")
}
