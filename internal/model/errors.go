package model

import "errors"

var (
	// ErrInvalidMerchant is returned when the merchant id is missing or invalid.
	ErrInvalidMerchant = errors.New("merchant id is required")
	// ErrInvalidOrderDate is returned when the order date is missing.
	ErrInvalidOrderDate = errors.New("order date is required")
	// ErrEmptyOrder is returned when an order has no items.
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrInvalidCategory is returned when an item has no category id.
	ErrInvalidCategory = errors.New("category id is required")
	// ErrInvalidQuantity is returned when an item quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidBucketType is returned for an unrecognized bucket type.
	ErrInvalidBucketType = errors.New("unknown bucket type")
	// ErrOrderNotFound is returned when an order is not found in database.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when an insert loses the race for an
	// external order id that already exists.
	ErrDuplicateOrder = errors.New("order with this external id already exists")
)
