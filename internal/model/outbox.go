package model

import "time"

// OutboxEvent represents a durably stored domain event awaiting delivery.
// Rows are created by the intake transaction and mutated only by the
// publisher, which sets Delivered after broker acknowledgment.
type OutboxEvent struct {
	ID          int64      `json:"id"`
	OrderID     int64      `json:"order_id"`
	MerchantID  int64      `json:"merchant_id"`
	EventKind   EventKind  `json:"event_kind"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// CreateOutboxEventParams represents parameters for appending a new
// outbox event.
type CreateOutboxEventParams struct {
	OrderID    int64
	MerchantID int64
	EventKind  EventKind
	Payload    []byte
}
