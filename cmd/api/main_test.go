package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchkit/sales-pipeline/internal/model"
)

func TestParseTopCategoryQuery(t *testing.T) {
	t.Run("parses a point lookup", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?merchantId=1&bucketType=DAY&bucketStart=2024-01-01T00:00:00Z&limit=3", nil)

		query, err := parseTopCategoryQuery(r)
		require.NoError(t, err)

		assert.Equal(t, int64(1), query.MerchantID)
		assert.Equal(t, model.BucketDay, query.BucketType)
		assert.True(t, query.BucketStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, 3, query.Limit)
		assert.False(t, query.IsRange())
	})

	t.Run("bucketEnd switches the request to a custom range", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?merchantId=1&bucketType=DAY&bucketStart=2024-01-01T00:00:00Z&bucketEnd=2024-01-31T00:00:00Z", nil)

		query, err := parseTopCategoryQuery(r)
		require.NoError(t, err)
		assert.True(t, query.IsRange())
		assert.True(t, query.BucketEnd.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("rejects a missing merchant", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?bucketType=DAY&bucketStart=2024-01-01T00:00:00Z", nil)

		_, err := parseTopCategoryQuery(r)
		assert.Error(t, err)
	})

	t.Run("rejects an unknown bucket type", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?merchantId=1&bucketType=HOUR&bucketStart=2024-01-01T00:00:00Z", nil)

		_, err := parseTopCategoryQuery(r)
		assert.ErrorIs(t, err, model.ErrInvalidBucketType)
	})

	t.Run("rejects a malformed bucket start", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?merchantId=1&bucketType=DAY&bucketStart=yesterday", nil)

		_, err := parseTopCategoryQuery(r)
		assert.Error(t, err)
	})

	t.Run("rejects a non-positive limit", func(t *testing.T) {
		r := httptest.NewRequest("GET",
			"/top-categories?merchantId=1&bucketType=DAY&bucketStart=2024-01-01T00:00:00Z&limit=0", nil)

		_, err := parseTopCategoryQuery(r)
		assert.Error(t, err)
	})
}
