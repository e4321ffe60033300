// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/merchkit/sales-pipeline/internal/model"
)

// OrderRepository defines methods for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order, items []model.OrderItem) (*model.Order, error)
	GetByExternalID(ctx context.Context, externalOrderID string) (*model.Order, error)
	CountItems(ctx context.Context, orderID int64) (int, error)
}

// OutboxRepository defines methods for the durable event log. Rows are
// appended by the intake transaction and marked delivered by the
// publisher; nothing ever deletes them here.
type OutboxRepository interface {
	Append(ctx context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error)
	ListUndelivered(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time) error
}

// MarkerRepository is the idempotency guard over processed order ids.
// FindUnprocessed is a single set-membership batch check; Claim is
// append-only and treats duplicate inserts as already claimed.
type MarkerRepository interface {
	FindUnprocessed(ctx context.Context, orderIDs []int64) ([]int64, error)
	Claim(ctx context.Context, orderIDs []int64, processedAt time.Time) error
}

// AggregateStore applies per-bucket-type deltas as additive upserts.
type AggregateStore interface {
	UpsertAdditive(ctx context.Context, bucketType model.BucketType, rows []model.UpsertRow) error
}

// AggregateQueryStore serves ranked top-category reads.
type AggregateQueryStore interface {
	TopCategories(ctx context.Context, query model.TopCategoryQuery) ([]model.TopCategory, error)
}

// CategoryCatalog resolves category ids to display names.
type CategoryCatalog interface {
	Names(ctx context.Context, categoryIDs []int64) (map[int64]string, error)
}

// TransactionManager defines methods for database transaction management.
// The transaction travels in the context; repositories route their
// queries through it when present.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
