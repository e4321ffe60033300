package model

import (
	"time"

	"github.com/merchkit/sales-pipeline/internal/money"
)

// EventKind represents the type of domain event.
type EventKind string

const (
	// EventKindOrderPlaced represents the order placement event kind.
	EventKindOrderPlaced EventKind = "order_placed"
)

// OrderPlacedEvent is the payload published to the order events stream.
// OrderID doubles as the downstream idempotency key.
type OrderPlacedEvent struct {
	OrderID    int64            `json:"order_id"`
	MerchantID int64            `json:"merchant_id"`
	OrderDate  time.Time        `json:"order_date"`
	Items      []OrderEventItem `json:"items"`
}

// OrderEventItem is one order line inside an OrderPlacedEvent.
type OrderEventItem struct {
	CategoryID int64        `json:"category_id"`
	Quantity   int64        `json:"quantity"`
	LineAmount money.Amount `json:"line_amount"`
}
