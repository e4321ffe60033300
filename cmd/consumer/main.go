// Package main provides the aggregation consumer reading order event
// batches from the order events stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/repository"
	"github.com/merchkit/sales-pipeline/internal/service"
)

const (
	redisBlockTimeout = 1000 // milliseconds
	errorRetryDelay   = 1 * time.Second
	signalBufferSize  = 1
	exitCode          = 1

	// pendingReadID re-reads this consumer's own pending entries, the
	// messages delivered to it but never acknowledged. Entries of a
	// failed or interrupted batch live there; a plain ">" read would
	// never return them again.
	pendingReadID = "0"
	// newMessagesID reads messages never delivered to the group.
	newMessagesID = ">"
)

// BatchConsumer reads order event batches from the stream and hands them
// to the aggregator. A batch is acknowledged only after the aggregator's
// unit of work commits; any failure, including a payload that does not
// parse, withholds the ACK. Unacknowledged entries stay in this
// consumer's pending list and the read id routes back through it after
// every failure and on startup, so the batch is retried until it
// commits. The idempotency guard makes those replays safe.
type BatchConsumer struct {
	redisClient rueidis.Client
	aggregator  service.AggregatorService
	group       string
	consumer    string
	batchSize   int
	readID      string
}

// NewBatchConsumer creates a new batch consumer instance. Reads start
// at the pending list so a restart resumes any batch that was in flight.
func NewBatchConsumer(
	redisClient rueidis.Client,
	aggregator service.AggregatorService,
	group, consumer string,
	batchSize int,
) *BatchConsumer {
	return &BatchConsumer{
		redisClient: redisClient,
		aggregator:  aggregator,
		group:       group,
		consumer:    consumer,
		batchSize:   batchSize,
		readID:      pendingReadID,
	}
}

// markPendingDrained switches reads over to undelivered messages once
// the consumer's own pending entries are exhausted.
func (c *BatchConsumer) markPendingDrained() {
	c.readID = newMessagesID
}

// rewindToPending routes the next read back through the pending list so
// the entries of a failed batch are retried before anything new.
func (c *BatchConsumer) rewindToPending() {
	c.readID = pendingReadID
}

func (c *BatchConsumer) readBatch(ctx context.Context) ([]rueidis.XRangeEntry, error) {
	readCmd := c.redisClient.B().Xreadgroup().Group(c.group, c.consumer).
		Count(int64(c.batchSize)).
		Block(redisBlockTimeout).
		Streams().
		Key(broker.StreamKey).
		Id(c.readID).
		Build()

	result := c.redisClient.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil // block timeout, nothing pending
		}

		return nil, err
	}

	streams, err := result.AsXRead()
	if err != nil {
		return nil, err
	}

	return streams[broker.StreamKey], nil
}

func decodeBatch(messages []rueidis.XRangeEntry) ([]*model.OrderPlacedEvent, error) {
	events := make([]*model.OrderPlacedEvent, 0, len(messages))

	for _, message := range messages {
		payload, ok := message.FieldValues[broker.FieldPayload]
		if !ok {
			return nil, fmt.Errorf("message %s is missing payload", message.ID)
		}

		kind, ok := message.FieldValues[broker.FieldEventKind]
		if !ok {
			return nil, fmt.Errorf("message %s is missing event_kind", message.ID)
		}

		if model.EventKind(kind) != model.EventKindOrderPlaced {
			slog.Warn("skipping unknown event kind",
				slog.String("message_id", message.ID),
				slog.String("event_kind", kind),
			)

			continue
		}

		event := &model.OrderPlacedEvent{}
		if err := json.Unmarshal([]byte(payload), event); err != nil {
			return nil, fmt.Errorf("failed to parse order event in message %s: %w", message.ID, err)
		}

		events = append(events, event)
	}

	return events, nil
}

func (c *BatchConsumer) acknowledge(ctx context.Context, messages []rueidis.XRangeEntry) error {
	ids := make([]string, len(messages))
	for i, message := range messages {
		ids[i] = message.ID
	}

	ackCmd := c.redisClient.B().Xack().Key(broker.StreamKey).Group(c.group).Id(ids...).Build()
	if err := c.redisClient.Do(ctx, ackCmd).Error(); err != nil {
		return fmt.Errorf("failed to ACK batch: %w", err)
	}

	return nil
}

func (c *BatchConsumer) consumeBatch(ctx context.Context) error {
	messages, err := c.readBatch(ctx)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		c.markPendingDrained()
		return nil
	}

	events, err := decodeBatch(messages)
	if err != nil {
		// No ACK: the batch stays pending and is redelivered.
		return err
	}

	if err := c.aggregator.Aggregate(ctx, events); err != nil {
		return err
	}

	return c.acknowledge(ctx, messages)
}

func (c *BatchConsumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		default:
			if err := c.consumeBatch(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}

				slog.Error("error consuming batch", slog.String("error", err.Error()))
				c.rewindToPending()
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func createConsumerGroup(ctx context.Context, redisClient rueidis.Client, group string) {
	createGroupCmd := redisClient.B().XgroupCreate().
		Key(broker.StreamKey).Group(group).Id("0").Mkstream().Build()
	if err := redisClient.Do(ctx, createGroupCmd).Error(); err != nil {
		slog.Info("consumer group creation result (may already exist)", slog.String("error", err.Error()))
	}
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping consumer")
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

	slog.SetDefault(logger.Setup(cfg.LogLevel, "consumer"))

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	markerRepo := repository.NewMarkerRepositoryImpl(dbPool)
	authoritative := repository.NewAggregateStoreImpl(dbPool)
	txManager := repository.NewTransactionManagerImpl(dbPool)

	var replicas []repository.AggregateStore
	if cfg.RankingReplicaEnabled {
		replicas = append(replicas, repository.NewRankingStoreImpl(redisClient))
	}

	aggregator := service.NewAggregatorServiceImpl(markerRepo, authoritative, replicas, txManager)
	consumer := NewBatchConsumer(redisClient, aggregator, cfg.ConsumerGroup, cfg.ConsumerName, cfg.ConsumerBatchSize)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	createConsumerGroup(ctx, redisClient, cfg.ConsumerGroup)

	slog.Info("starting aggregation consumer",
		slog.String("stream", broker.StreamKey),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("consumer", cfg.ConsumerName),
		slog.Int("batch_size", cfg.ConsumerBatchSize),
	)

	consumer.run(ctx)
}
