package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
	"github.com/merchkit/sales-pipeline/internal/repository"
)

// fakeMarkerRepo is an in-memory idempotency guard.
type fakeMarkerRepo struct {
	processed map[int64]time.Time
}

func newFakeMarkerRepo() *fakeMarkerRepo {
	return &fakeMarkerRepo{processed: make(map[int64]time.Time)}
}

func (f *fakeMarkerRepo) FindUnprocessed(_ context.Context, orderIDs []int64) ([]int64, error) {
	var fresh []int64

	for _, id := range orderIDs {
		if _, ok := f.processed[id]; !ok {
			fresh = append(fresh, id)
		}
	}

	return fresh, nil
}

func (f *fakeMarkerRepo) Claim(_ context.Context, orderIDs []int64, processedAt time.Time) error {
	for _, id := range orderIDs {
		if _, ok := f.processed[id]; !ok {
			f.processed[id] = processedAt
		}
	}

	return nil
}

func (f *fakeMarkerRepo) snapshot() map[int64]time.Time {
	copied := make(map[int64]time.Time, len(f.processed))
	for k, v := range f.processed {
		copied[k] = v
	}

	return copied
}

// fakeAggregateStore accumulates deltas per key, like a real additive upsert.
type fakeAggregateStore struct {
	totals   map[model.BucketType]map[model.AggregationKey]*model.AggregateDelta
	failNext int
	calls    int
}

func newFakeAggregateStore() *fakeAggregateStore {
	totals := make(map[model.BucketType]map[model.AggregationKey]*model.AggregateDelta)
	for _, bucketType := range model.BucketTypes {
		totals[bucketType] = make(map[model.AggregationKey]*model.AggregateDelta)
	}

	return &fakeAggregateStore{totals: totals}
}

func (f *fakeAggregateStore) UpsertAdditive(
	_ context.Context, bucketType model.BucketType, rows []model.UpsertRow,
) error {
	f.calls++

	if f.failNext > 0 {
		f.failNext--
		return errors.New("store unavailable")
	}

	for _, row := range rows {
		key := model.AggregationKey{
			MerchantID:  row.MerchantID,
			CategoryID:  row.CategoryID,
			BucketStart: row.BucketStart,
		}

		total, ok := f.totals[bucketType][key]
		if !ok {
			total = &model.AggregateDelta{}
			f.totals[bucketType][key] = total
		}

		total.TotalAmount = total.TotalAmount.Add(row.AmountDelta)
		total.TotalUnits += row.UnitsDelta
		total.OrderCount += row.OrderCountDelta
	}

	return nil
}

func (f *fakeAggregateStore) snapshot() map[model.BucketType]map[model.AggregationKey]*model.AggregateDelta {
	copied := make(map[model.BucketType]map[model.AggregationKey]*model.AggregateDelta)

	for bucketType, keys := range f.totals {
		copied[bucketType] = make(map[model.AggregationKey]*model.AggregateDelta, len(keys))

		for key, total := range keys {
			clone := *total
			copied[bucketType][key] = &clone
		}
	}

	return copied
}

// TopCategories ranks the accumulated totals for one bucket, so the
// fake can stand in as an AggregateQueryStore behind the query service.
func (f *fakeAggregateStore) TopCategories(
	_ context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	var rows []model.TopCategory

	for key, total := range f.totals[query.BucketType] {
		if key.MerchantID != query.MerchantID || !key.BucketStart.Equal(query.BucketStart) {
			continue
		}

		rows = append(rows, model.TopCategory{
			CategoryID:       key.CategoryID,
			TotalSalesAmount: total.TotalAmount,
			TotalUnitsSold:   total.TotalUnits,
			OrderCount:       total.OrderCount,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TotalSalesAmount.Cmp(rows[j].TotalSalesAmount) > 0
	})

	if len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return rows, nil
}

// fakeTxManager runs fn directly; begin may return an undo closure that
// simulates rollback of the in-memory state on error.
type fakeTxManager struct {
	begin func() (rollback func())
}

func (m *fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	var rollback func()
	if m.begin != nil {
		rollback = m.begin()
	}

	if err := fn(ctx); err != nil {
		if rollback != nil {
			rollback()
		}

		return err
	}

	return nil
}

func placedEvent(orderID int64, at time.Time, items ...model.OrderEventItem) *model.OrderPlacedEvent {
	return &model.OrderPlacedEvent{
		OrderID:    orderID,
		MerchantID: 1,
		OrderDate:  at,
		Items:      items,
	}
}

func eventItem(categoryID, quantity int64, amount string) model.OrderEventItem {
	return model.OrderEventItem{
		CategoryID: categoryID,
		Quantity:   quantity,
		LineAmount: money.MustParse(amount),
	}
}

func dayKey(categoryID int64, day time.Time) model.AggregationKey {
	return model.AggregationKey{MerchantID: 1, CategoryID: categoryID, BucketStart: day}
}

func TestAggregate(t *testing.T) {
	orderedAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("folds a single order into all three bucket types", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		})
		require.NoError(t, err)

		for _, bucketType := range model.BucketTypes {
			require.Len(t, store.totals[bucketType], 1, "bucket type %s", bucketType)
		}

		day := store.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
		assert.Equal(t, int64(3), day.TotalUnits)
		assert.Equal(t, int64(1), day.OrderCount)
	})

	t.Run("aggregating the same batch twice equals aggregating it once", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		batch := []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		}

		require.NoError(t, agg.Aggregate(context.Background(), batch))
		require.NoError(t, agg.Aggregate(context.Background(), batch))

		day := store.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
		assert.Equal(t, int64(1), day.OrderCount)
	})

	t.Run("duplicate order ids within one batch contribute once", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		})
		require.NoError(t, err)

		day := store.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
	})

	t.Run("disjoint batches accumulate additively in any order", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		require.NoError(t, agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(2, orderedAt, eventItem(101, 1, "0.66")),
		}))
		require.NoError(t, agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(1, orderedAt, eventItem(101, 2, "12.34")),
		}))

		day := store.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("13.00")))
		assert.Equal(t, int64(3), day.TotalUnits)
		assert.Equal(t, int64(2), day.OrderCount)
	})

	t.Run("replica failure does not fail the batch", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		authoritative := newFakeAggregateStore()
		replica := newFakeAggregateStore()
		replica.failNext = 3

		agg := NewAggregatorServiceImpl(markers, authoritative,
			[]repository.AggregateStore{replica}, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		})
		require.NoError(t, err)

		day := authoritative.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
	})

	t.Run("replica receives the committed deltas on success", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		authoritative := newFakeAggregateStore()
		replica := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, authoritative,
			[]repository.AggregateStore{replica}, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		})
		require.NoError(t, err)

		day := replica.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
	})

	t.Run("authoritative failure rolls back the claims and the retry succeeds", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		store.failNext = 1

		txManager := &fakeTxManager{begin: func() func() {
			markerState := markers.snapshot()
			storeState := store.snapshot()

			return func() {
				markers.processed = markerState
				store.totals = storeState
			}
		}}

		agg := NewAggregatorServiceImpl(markers, store, nil, txManager)

		batch := []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		}

		require.Error(t, agg.Aggregate(context.Background(), batch))
		assert.Empty(t, markers.processed, "claims must not survive the rollback")

		require.NoError(t, agg.Aggregate(context.Background(), batch))

		day := store.totals[model.BucketDay][dayKey(101, jan1)]
		require.NotNil(t, day)
		assert.Equal(t, 0, day.TotalAmount.Cmp(money.MustParse("30.00")))
		assert.Equal(t, int64(1), day.OrderCount)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		require.NoError(t, agg.Aggregate(context.Background(), nil))
		assert.Zero(t, store.calls)
	})
}

// TestAggregateThenTopCategories runs the write and read paths against
// the same store, so the bucket keys produced by aggregation are the
// ones the query services look up.
func TestAggregateThenTopCategories(t *testing.T) {
	orderedAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("an aggregated order is served back by every bucket type", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(42, orderedAt, eventItem(101, 3, "30.00")),
		})
		require.NoError(t, err)

		svc := NewTopCategoryServiceImpl(store, nil, &fakeCatalog{names: map[int64]string{101: "Beverages"}})

		// 2024-01-01 is a Monday and the first of the month, so the
		// day, week, and month buckets all start at the same instant.
		for _, bucketType := range model.BucketTypes {
			rows, err := svc.TopCategories(context.Background(), model.TopCategoryQuery{
				MerchantID:  1,
				BucketType:  bucketType,
				BucketStart: jan1,
				Limit:       5,
			})
			require.NoError(t, err, "bucket type %s", bucketType)

			require.Len(t, rows, 1, "bucket type %s", bucketType)
			assert.Equal(t, int64(101), rows[0].CategoryID)
			assert.Equal(t, "Beverages", rows[0].CategoryName)
			assert.Equal(t, 0, rows[0].TotalSalesAmount.Cmp(money.MustParse("30.00")))
			assert.Equal(t, int64(3), rows[0].TotalUnitsSold)
			assert.Equal(t, int64(1), rows[0].OrderCount)
		}
	})

	t.Run("categories rank by descending sales amount", func(t *testing.T) {
		markers := newFakeMarkerRepo()
		store := newFakeAggregateStore()
		agg := NewAggregatorServiceImpl(markers, store, nil, &fakeTxManager{})

		err := agg.Aggregate(context.Background(), []*model.OrderPlacedEvent{
			placedEvent(1, orderedAt, eventItem(101, 1, "9.99")),
			placedEvent(2, orderedAt, eventItem(102, 2, "50.00")),
		})
		require.NoError(t, err)

		svc := NewTopCategoryServiceImpl(store, nil, &fakeCatalog{})

		rows, err := svc.TopCategories(context.Background(), model.TopCategoryQuery{
			MerchantID:  1,
			BucketType:  model.BucketDay,
			BucketStart: jan1,
			Limit:       1,
		})
		require.NoError(t, err)

		require.Len(t, rows, 1, "the limit caps the result")
		assert.Equal(t, int64(102), rows[0].CategoryID)
		assert.Equal(t, 0, rows[0].TotalSalesAmount.Cmp(money.MustParse("50.00")))
	})
}
