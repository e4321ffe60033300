package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/merchkit/sales-pipeline/internal/money"
)

func TestCreateOrderParamsValidate(t *testing.T) {
	valid := func() *CreateOrderParams {
		return &CreateOrderParams{
			MerchantID: 1,
			OrderDate:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			Items: []CreateOrderItemParams{
				{ProductID: 7, CategoryID: 101, Quantity: 3, UnitPrice: money.MustParse("10.00")},
			},
		}
	}

	t.Run("accepts a well-formed order", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects a missing merchant", func(t *testing.T) {
		params := valid()
		params.MerchantID = 0
		assert.ErrorIs(t, params.Validate(), ErrInvalidMerchant)
	})

	t.Run("rejects a zero order date", func(t *testing.T) {
		params := valid()
		params.OrderDate = time.Time{}
		assert.ErrorIs(t, params.Validate(), ErrInvalidOrderDate)
	})

	t.Run("rejects an order without items", func(t *testing.T) {
		params := valid()
		params.Items = nil
		assert.ErrorIs(t, params.Validate(), ErrEmptyOrder)
	})

	t.Run("rejects a non-positive quantity", func(t *testing.T) {
		params := valid()
		params.Items[0].Quantity = 0
		assert.ErrorIs(t, params.Validate(), ErrInvalidQuantity)
	})

	t.Run("rejects an item without a category", func(t *testing.T) {
		params := valid()
		params.Items[0].CategoryID = 0
		assert.ErrorIs(t, params.Validate(), ErrInvalidCategory)
	})
}

func TestParseBucketType(t *testing.T) {
	t.Run("accepts the three granularities", func(t *testing.T) {
		for _, s := range []string{"DAY", "WEEK", "MONTH"} {
			bucketType, err := ParseBucketType(s)
			assert.NoError(t, err)
			assert.Equal(t, BucketType(s), bucketType)
		}
	})

	t.Run("rejects anything else", func(t *testing.T) {
		for _, s := range []string{"", "day", "HOUR", "CUSTOM"} {
			_, err := ParseBucketType(s)
			assert.ErrorIs(t, err, ErrInvalidBucketType, "input %q", s)
		}
	})
}
