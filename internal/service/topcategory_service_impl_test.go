package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
)

// fakeQueryStore returns canned rows and records the queries it served.
type fakeQueryStore struct {
	rows    []model.TopCategory
	err     error
	queries []model.TopCategoryQuery
}

func (f *fakeQueryStore) TopCategories(
	_ context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	f.queries = append(f.queries, query)

	if f.err != nil {
		return nil, f.err
	}

	return f.rows, nil
}

// fakeCatalog resolves names from a fixed map.
type fakeCatalog struct {
	names map[int64]string
	err   error
}

func (f *fakeCatalog) Names(_ context.Context, categoryIDs []int64) (map[int64]string, error) {
	if f.err != nil {
		return nil, f.err
	}

	result := make(map[int64]string)

	for _, id := range categoryIDs {
		if name, ok := f.names[id]; ok {
			result[id] = name
		}
	}

	return result, nil
}

func topRow(categoryID int64, amount string, units, orders int64) model.TopCategory {
	return model.TopCategory{
		CategoryID:       categoryID,
		TotalSalesAmount: money.MustParse(amount),
		TotalUnitsSold:   units,
		OrderCount:       orders,
	}
}

func pointQuery(limit int) model.TopCategoryQuery {
	return model.TopCategoryQuery{
		MerchantID:  1,
		BucketType:  model.BucketDay,
		BucketStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:       limit,
	}
}

func TestTopCategories(t *testing.T) {
	t.Run("point lookup served from the ranking replica with enriched names", func(t *testing.T) {
		ranking := &fakeQueryStore{rows: []model.TopCategory{topRow(101, "30.00", 3, 1)}}
		authoritative := &fakeQueryStore{}
		catalog := &fakeCatalog{names: map[int64]string{101: "Beverages"}}
		svc := NewTopCategoryServiceImpl(authoritative, ranking, catalog)

		rows, err := svc.TopCategories(context.Background(), pointQuery(5))
		require.NoError(t, err)

		require.Len(t, rows, 1)
		assert.Equal(t, int64(101), rows[0].CategoryID)
		assert.Equal(t, "Beverages", rows[0].CategoryName)
		assert.Equal(t, 0, rows[0].TotalSalesAmount.Cmp(money.MustParse("30.00")))
		assert.Equal(t, int64(3), rows[0].TotalUnitsSold)
		assert.Equal(t, int64(1), rows[0].OrderCount)
		assert.Empty(t, authoritative.queries, "authoritative store must not be hit")
	})

	t.Run("falls back to the authoritative store when the replica errors", func(t *testing.T) {
		ranking := &fakeQueryStore{err: errors.New("replica down")}
		authoritative := &fakeQueryStore{rows: []model.TopCategory{topRow(101, "30.00", 3, 1)}}
		catalog := &fakeCatalog{names: map[int64]string{101: "Beverages"}}
		svc := NewTopCategoryServiceImpl(authoritative, ranking, catalog)

		rows, err := svc.TopCategories(context.Background(), pointQuery(5))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Beverages", rows[0].CategoryName)
	})

	t.Run("falls back when the replica has no data for the bucket", func(t *testing.T) {
		ranking := &fakeQueryStore{}
		authoritative := &fakeQueryStore{rows: []model.TopCategory{topRow(102, "9.99", 1, 1)}}
		catalog := &fakeCatalog{names: map[int64]string{102: "Snacks"}}
		svc := NewTopCategoryServiceImpl(authoritative, ranking, catalog)

		rows, err := svc.TopCategories(context.Background(), pointQuery(5))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(102), rows[0].CategoryID)
	})

	t.Run("custom range goes straight to the authoritative store", func(t *testing.T) {
		ranking := &fakeQueryStore{rows: []model.TopCategory{topRow(999, "1.00", 1, 1)}}
		authoritative := &fakeQueryStore{rows: []model.TopCategory{topRow(101, "60.00", 6, 2)}}
		catalog := &fakeCatalog{names: map[int64]string{101: "Beverages"}}
		svc := NewTopCategoryServiceImpl(authoritative, ranking, catalog)

		query := pointQuery(5)
		query.BucketEnd = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

		rows, err := svc.TopCategories(context.Background(), query)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(101), rows[0].CategoryID)
		assert.Empty(t, ranking.queries, "replica cannot serve range scans")
	})

	t.Run("unknown category ids get a placeholder label", func(t *testing.T) {
		authoritative := &fakeQueryStore{rows: []model.TopCategory{topRow(777, "5.00", 1, 1)}}
		svc := NewTopCategoryServiceImpl(authoritative, nil, &fakeCatalog{})

		rows, err := svc.TopCategories(context.Background(), pointQuery(5))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Unknown Category: 777", rows[0].CategoryName)
	})

	t.Run("applies the default limit when none is given", func(t *testing.T) {
		authoritative := &fakeQueryStore{}
		svc := NewTopCategoryServiceImpl(authoritative, nil, &fakeCatalog{})

		_, err := svc.TopCategories(context.Background(), pointQuery(0))
		require.NoError(t, err)

		require.Len(t, authoritative.queries, 1)
		assert.Equal(t, defaultTopCategoryLimit, authoritative.queries[0].Limit)
	})

	t.Run("empty aggregates return an empty list, not an error", func(t *testing.T) {
		authoritative := &fakeQueryStore{}
		catalog := &fakeCatalog{err: errors.New("catalog must not be queried")}
		svc := NewTopCategoryServiceImpl(authoritative, nil, catalog)

		rows, err := svc.TopCategories(context.Background(), pointQuery(5))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
