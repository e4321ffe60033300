package model

import (
	"time"

	"github.com/merchkit/sales-pipeline/internal/money"
)

// BucketType identifies the granularity of a sales aggregate bucket.
type BucketType string

const (
	// BucketDay aggregates by UTC calendar day.
	BucketDay BucketType = "DAY"
	// BucketWeek aggregates by ISO week starting Monday, UTC.
	BucketWeek BucketType = "WEEK"
	// BucketMonth aggregates by UTC calendar month.
	BucketMonth BucketType = "MONTH"
)

// BucketTypes lists all granularities in fold order.
var BucketTypes = []BucketType{BucketDay, BucketWeek, BucketMonth}

// ParseBucketType validates a bucket type string from the read API.
func ParseBucketType(s string) (BucketType, error) {
	switch BucketType(s) {
	case BucketDay, BucketWeek, BucketMonth:
		return BucketType(s), nil
	default:
		return "", ErrInvalidBucketType
	}
}

// AggregationKey identifies one aggregate bucket within a bucket type.
// BucketStart is always normalized to the start of its period in UTC.
type AggregationKey struct {
	MerchantID  int64
	CategoryID  int64
	BucketStart time.Time
}

// AggregateDelta holds accumulated contributions for one aggregation key.
// These are deltas relative to whatever the stores already hold, not
// absolute totals.
type AggregateDelta struct {
	TotalAmount money.Amount
	TotalUnits  int64
	OrderCount  int64
}

// Add folds one order line into the delta. Order count increments once
// per line, matching the source system's per-line counting.
func (d *AggregateDelta) Add(item OrderEventItem) {
	d.TotalAmount = d.TotalAmount.Add(item.LineAmount)
	d.TotalUnits += item.Quantity
	d.OrderCount++
}

// UpsertRow is one additive-upsert instruction for an aggregate store.
type UpsertRow struct {
	MerchantID      int64
	CategoryID      int64
	BucketStart     time.Time
	BucketEnd       time.Time
	AmountDelta     money.Amount
	UnitsDelta      int64
	OrderCountDelta int64
}

// TopCategory is one row of the top-category read API, ordered by
// descending total sales amount.
type TopCategory struct {
	CategoryID       int64        `json:"category_id"`
	CategoryName     string       `json:"category_name"`
	TotalSalesAmount money.Amount `json:"total_sales_amount"`
	TotalUnitsSold   int64        `json:"total_units_sold"`
	OrderCount       int64        `json:"order_count"`
}

// TopCategoryQuery describes a top-category request. BucketEnd set means
// a custom range over DAY buckets; otherwise an exact bucket lookup.
type TopCategoryQuery struct {
	MerchantID  int64
	BucketType  BucketType
	BucketStart time.Time
	BucketEnd   time.Time
	Limit       int
}

// IsRange reports whether the query is a custom date range rather than a
// single-bucket point lookup.
func (q TopCategoryQuery) IsRange() bool {
	return !q.BucketEnd.IsZero()
}
