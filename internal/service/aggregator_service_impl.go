package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchkit/sales-pipeline/internal/bucket"
	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/repository"
)

// AggregatorServiceImpl implements AggregatorService. For each batch it
// filters out order ids already claimed, claims the remainder, folds the
// fresh events into DAY/WEEK/MONTH deltas, and applies them to the
// authoritative store, all inside one transaction, so a failed write
// releases the claims and the redelivered batch retries cleanly.
// Replica stores are written after commit and never fail the batch.
type AggregatorServiceImpl struct {
	markerRepo    repository.MarkerRepository
	authoritative repository.AggregateStore
	replicas      []repository.AggregateStore
	txManager     repository.TransactionManager
	now           func() time.Time
}

// NewAggregatorServiceImpl creates a new AggregatorService implementation.
func NewAggregatorServiceImpl(
	markerRepo repository.MarkerRepository,
	authoritative repository.AggregateStore,
	replicas []repository.AggregateStore,
	txManager repository.TransactionManager,
) *AggregatorServiceImpl {
	return &AggregatorServiceImpl{
		markerRepo:    markerRepo,
		authoritative: authoritative,
		replicas:      replicas,
		txManager:     txManager,
		now:           time.Now,
	}
}

// WithClock overrides the clock used for processed-at stamps.
func (s *AggregatorServiceImpl) WithClock(now func() time.Time) *AggregatorServiceImpl {
	s.now = now

	return s
}

// Aggregate processes one batch of order events.
func (s *AggregatorServiceImpl) Aggregate(ctx context.Context, events []*model.OrderPlacedEvent) error {
	if len(events) == 0 {
		return nil
	}

	orderIDs := make([]int64, len(events))
	for i, event := range events {
		orderIDs[i] = event.OrderID
	}

	var deltas bucket.Deltas

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		freshIDs, err := s.markerRepo.FindUnprocessed(ctx, orderIDs)
		if err != nil {
			return fmt.Errorf("failed to check idempotency markers: %w", err)
		}

		fresh := filterEvents(events, freshIDs)
		if len(fresh) == 0 {
			return nil
		}

		claimIDs := make([]int64, len(fresh))
		for i, event := range fresh {
			claimIDs[i] = event.OrderID
		}

		if err := s.markerRepo.Claim(ctx, claimIDs, s.now()); err != nil {
			return fmt.Errorf("failed to claim order ids: %w", err)
		}

		deltas = bucket.Fold(fresh)

		for _, bucketType := range model.BucketTypes {
			rows := bucket.Rows(bucketType, deltas[bucketType])
			if err := s.authoritative.UpsertAdditive(ctx, bucketType, rows); err != nil {
				return fmt.Errorf("failed to upsert %s aggregates: %w", bucketType, err)
			}
		}

		slog.Info("aggregated order events",
			slog.Int("batch_size", len(events)),
			slog.Int("fresh_events", len(fresh)),
			slog.Int("day_buckets", len(deltas[model.BucketDay])),
			slog.Int("week_buckets", len(deltas[model.BucketWeek])),
			slog.Int("month_buckets", len(deltas[model.BucketMonth])),
		)

		return nil
	})
	if err != nil {
		return err
	}

	if deltas != nil {
		s.writeReplicas(ctx, deltas)
	}

	return nil
}

// writeReplicas applies the committed deltas to each secondary store.
// A replica failure is a reconciliation gap for an out-of-band repair
// job, never a batch failure: the authoritative store already holds the
// truth and the markers are committed.
func (s *AggregatorServiceImpl) writeReplicas(ctx context.Context, deltas bucket.Deltas) {
	for _, replica := range s.replicas {
		for _, bucketType := range model.BucketTypes {
			rows := bucket.Rows(bucketType, deltas[bucketType])
			if err := replica.UpsertAdditive(ctx, bucketType, rows); err != nil {
				slog.Error("replica aggregate write failed",
					slog.String("bucket_type", string(bucketType)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func filterEvents(events []*model.OrderPlacedEvent, freshIDs []int64) []*model.OrderPlacedEvent {
	fresh := make(map[int64]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}

	result := make([]*model.OrderPlacedEvent, 0, len(freshIDs))

	for _, event := range events {
		if _, ok := fresh[event.OrderID]; ok {
			result = append(result, event)
			// A batch can carry the same order twice; only the first
			// occurrence may contribute.
			delete(fresh, event.OrderID)
		}
	}

	return result
}
