// Package main provides the outbox publisher that polls undelivered
// order events and delivers them to the order events stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/merchkit/sales-pipeline/internal/broker"
	"github.com/merchkit/sales-pipeline/internal/config"
	"github.com/merchkit/sales-pipeline/internal/logger"
	"github.com/merchkit/sales-pipeline/internal/repository"
	"github.com/merchkit/sales-pipeline/internal/service"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return dbPool, nil
}

func setupRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	return redisClient, nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping publisher")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, "publisher"))

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := setupRedisClient(cfg)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	eventBroker := broker.NewRedisBroker(redisClient)
	publisher := service.NewPublisherServiceImpl(outboxRepo, eventBroker, cfg.PublisherSendTimeout)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	slog.Info("starting outbox publisher",
		slog.Duration("poll_interval", cfg.PublisherPollInterval),
		slog.Int("batch_size", cfg.PublisherBatchSize),
		slog.Duration("send_timeout", cfg.PublisherSendTimeout),
	)

	ticker := time.NewTicker(cfg.PublisherPollInterval)
	defer ticker.Stop()

	publisher.Run(ctx, ticker.C, cfg.PublisherBatchSize)
}
