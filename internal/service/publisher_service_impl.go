package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchkit/sales-pipeline/internal/broker"
	"github.com/merchkit/sales-pipeline/internal/repository"
)

// PublisherServiceImpl implements PublisherService: on every tick it
// selects the oldest undelivered events in creation order, delivers each
// to the broker with a bounded wait for acknowledgment, and marks an
// event delivered only after the ack. A failed or timed-out send stops
// the tick so later events never overtake earlier ones; the undelivered
// rows simply accumulate until the broker recovers.
type PublisherServiceImpl struct {
	outboxRepo  repository.OutboxRepository
	broker      broker.Broker
	sendTimeout time.Duration
	now         func() time.Time
}

// NewPublisherServiceImpl creates a new PublisherService implementation.
func NewPublisherServiceImpl(
	outboxRepo repository.OutboxRepository,
	eventBroker broker.Broker,
	sendTimeout time.Duration,
) *PublisherServiceImpl {
	return &PublisherServiceImpl{
		outboxRepo:  outboxRepo,
		broker:      eventBroker,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// WithClock overrides the clock used for delivered-at stamps.
func (s *PublisherServiceImpl) WithClock(now func() time.Time) *PublisherServiceImpl {
	s.now = now

	return s
}

// ProcessUndeliveredEvents performs one publisher tick.
func (s *PublisherServiceImpl) ProcessUndeliveredEvents(ctx context.Context, limit int) error {
	events, err := s.outboxRepo.ListUndelivered(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list undelivered events: %w", err)
	}

	for _, event := range events {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		messageID, err := s.broker.Publish(sendCtx, event)

		cancel()

		if err != nil {
			// Stop here: delivering later events first would break FIFO.
			return fmt.Errorf("failed to deliver event %d: %w", event.ID, err)
		}

		if err := s.outboxRepo.MarkDelivered(ctx, event.ID, s.now()); err != nil {
			// The event was delivered but stays undelivered in the log,
			// so the next tick re-sends it; the idempotency guard
			// downstream absorbs the duplicate.
			return fmt.Errorf("failed to mark event %d delivered: %w", event.ID, err)
		}

		slog.Info("delivered outbox event",
			slog.Int64("event_id", event.ID),
			slog.Int64("order_id", event.OrderID),
			slog.String("message_id", messageID),
		)
	}

	return nil
}

// Run drives ticks until ctx is canceled. The tick channel is injected
// so tests can step the loop deterministically; a tick is fully handled
// before the next one is read, so ticks never overlap.
func (s *PublisherServiceImpl) Run(ctx context.Context, ticks <-chan time.Time, batchSize int) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("publisher stopped")
			return
		case <-ticks:
			if err := s.ProcessUndeliveredEvents(ctx, batchSize); err != nil {
				slog.Error("publisher tick failed", slog.String("error", err.Error()))
			}
		}
	}
}
