// Package bucket maps order timestamps to DAY/WEEK/MONTH buckets and
// folds order events into per-key aggregate deltas. All functions are
// pure; callers own the returned maps.
package bucket

import (
	"time"

	"github.com/merchkit/sales-pipeline/internal/model"
)

const daysPerWeek = 7

// Start returns the UTC start of the bucket containing t for the given
// bucket type: day truncation, the Monday at or before t, or the first
// of the month.
func Start(bucketType model.BucketType, t time.Time) time.Time {
	utc := t.UTC()

	switch bucketType {
	case model.BucketWeek:
		day := truncateDay(utc)
		// time.Weekday numbers Sunday as 0; shift so Monday is 0.
		offset := (int(day.Weekday()) + daysPerWeek - 1) % daysPerWeek

		return day.AddDate(0, 0, -offset)
	case model.BucketMonth:
		return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	case model.BucketDay:
		return truncateDay(utc)
	default:
		return truncateDay(utc)
	}
}

// End returns the exclusive end of the bucket beginning at start: one
// day, seven days, or one calendar month later.
func End(bucketType model.BucketType, start time.Time) time.Time {
	switch bucketType {
	case model.BucketWeek:
		return start.AddDate(0, 0, daysPerWeek)
	case model.BucketMonth:
		return start.AddDate(0, 1, 0)
	case model.BucketDay:
		return start.AddDate(0, 0, 1)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Deltas holds one batch's accumulated contributions per bucket type.
type Deltas map[model.BucketType]map[model.AggregationKey]*model.AggregateDelta

// Fold accumulates a batch of deduplicated order events into DAY, WEEK,
// and MONTH deltas in a single pass. Every line item contributes to all
// three granularities.
func Fold(events []*model.OrderPlacedEvent) Deltas {
	deltas := make(Deltas, len(model.BucketTypes))
	for _, bucketType := range model.BucketTypes {
		deltas[bucketType] = make(map[model.AggregationKey]*model.AggregateDelta)
	}

	for _, event := range events {
		for _, item := range event.Items {
			for _, bucketType := range model.BucketTypes {
				key := model.AggregationKey{
					MerchantID:  event.MerchantID,
					CategoryID:  item.CategoryID,
					BucketStart: Start(bucketType, event.OrderDate),
				}

				delta, ok := deltas[bucketType][key]
				if !ok {
					delta = &model.AggregateDelta{}
					deltas[bucketType][key] = delta
				}

				delta.Add(item)
			}
		}
	}

	return deltas
}

// Rows converts one bucket type's deltas into upsert rows with bucket
// ends derived from the key.
func Rows(bucketType model.BucketType, deltas map[model.AggregationKey]*model.AggregateDelta) []model.UpsertRow {
	rows := make([]model.UpsertRow, 0, len(deltas))

	for key, delta := range deltas {
		rows = append(rows, model.UpsertRow{
			MerchantID:      key.MerchantID,
			CategoryID:      key.CategoryID,
			BucketStart:     key.BucketStart,
			BucketEnd:       End(bucketType, key.BucketStart),
			AmountDelta:     delta.TotalAmount,
			UnitsDelta:      delta.TotalUnits,
			OrderCountDelta: delta.OrderCount,
		})
	}

	return rows
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
