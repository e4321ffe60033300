// Package service provides business logic layer implementations.
package service

import (
	"context"
	"time"

	"github.com/merchkit/sales-pipeline/internal/model"
)

// OrderService defines business logic methods for order intake.
type OrderService interface {
	CreateOrder(ctx context.Context, params *model.CreateOrderParams) (*model.CreateOrderResult, error)
}

// PublisherService drains the outbox into the broker. Run drives
// ProcessUndeliveredEvents from a tick channel; ticks never overlap.
type PublisherService interface {
	ProcessUndeliveredEvents(ctx context.Context, limit int) error
	Run(ctx context.Context, ticks <-chan time.Time, batchSize int)
}

// AggregatorService folds one batch of order events into the aggregate
// stores, exactly once per order id.
type AggregatorService interface {
	Aggregate(ctx context.Context, events []*model.OrderPlacedEvent) error
}

// TopCategoryService serves the ranked top-category read path.
type TopCategoryService interface {
	TopCategories(ctx context.Context, query model.TopCategoryQuery) ([]model.TopCategory, error)
}
