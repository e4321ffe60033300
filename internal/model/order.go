// Package model defines domain models and data structures.
package model

import (
	"time"

	"github.com/merchkit/sales-pipeline/internal/money"
)

// Order represents a persisted commerce order.
type Order struct {
	ID              int64        `json:"id"`
	ExternalOrderID string       `json:"external_order_id"`
	MerchantID      int64        `json:"merchant_id"`
	OrderDate       time.Time    `json:"order_date"`
	TotalAmount     money.Amount `json:"total_amount"`
	CreatedAt       time.Time    `json:"created_at"`
}

// OrderItem represents a single line of an order.
type OrderItem struct {
	ID         int64        `json:"id"`
	OrderID    int64        `json:"order_id"`
	ProductID  int64        `json:"product_id"`
	CategoryID int64        `json:"category_id"`
	Quantity   int64        `json:"quantity"`
	UnitPrice  money.Amount `json:"unit_price"`
	LineAmount money.Amount `json:"line_amount"`
}

// CreateOrderItemParams represents one requested order line.
type CreateOrderItemParams struct {
	ProductID  int64        `json:"product_id"`
	CategoryID int64        `json:"category_id"`
	Quantity   int64        `json:"quantity"`
	UnitPrice  money.Amount `json:"unit_price"`
}

// CreateOrderParams represents parameters for creating a new order.
// ExternalOrderID is the client-supplied idempotency key; when empty the
// service generates one.
type CreateOrderParams struct {
	ExternalOrderID string                  `json:"external_order_id"`
	MerchantID      int64                   `json:"merchant_id"`
	OrderDate       time.Time               `json:"order_date"`
	Items           []CreateOrderItemParams `json:"items"`
}

// Validate validates the create order parameters.
func (p *CreateOrderParams) Validate() error {
	if p.MerchantID <= 0 {
		return ErrInvalidMerchant
	}

	if p.OrderDate.IsZero() {
		return ErrInvalidOrderDate
	}

	if len(p.Items) == 0 {
		return ErrEmptyOrder
	}

	for _, item := range p.Items {
		if item.CategoryID <= 0 {
			return ErrInvalidCategory
		}

		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}

	return nil
}

// OrderStatus describes the outcome of an order intake request.
type OrderStatus string

const (
	// OrderStatusCreated indicates a new order was persisted.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusSkipped indicates the external order id was already known.
	OrderStatusSkipped OrderStatus = "SKIPPED_ALREADY_EXISTS"
)

// CreateOrderResult is the intake response for an order request.
type CreateOrderResult struct {
	OrderID         int64        `json:"order_id"`
	ExternalOrderID string       `json:"external_order_id"`
	MerchantID      int64        `json:"merchant_id"`
	TotalAmount     money.Amount `json:"total_amount"`
	ItemCount       int          `json:"item_count"`
	Status          OrderStatus  `json:"status"`
}
