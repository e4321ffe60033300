package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/money"
)

const commandsPerUpsertRow = 4

// ErrRangeUnsupported is returned when a custom date range is sent to
// the ranking replica, which only serves single-bucket lookups.
var ErrRangeUnsupported = errors.New("ranking store does not serve range queries")

// RankingStoreImpl is a best-effort aggregate replica on Redis, shaped
// for top-N point lookups: a sorted set per (merchant, bucket type,
// bucket start) scored by sales amount, plus a detail hash per category.
// Scores are floating approximations; the authoritative store keeps the
// exact decimals.
type RankingStoreImpl struct {
	client rueidis.Client
}

// NewRankingStoreImpl creates a new ranking replica implementation.
func NewRankingStoreImpl(client rueidis.Client) *RankingStoreImpl {
	return &RankingStoreImpl{client: client}
}

// UpsertAdditive folds deltas into the rank sets and detail hashes with
// ZINCRBY/HINCRBY, pipelined per batch.
func (s *RankingStoreImpl) UpsertAdditive(
	ctx context.Context, bucketType model.BucketType, rows []model.UpsertRow,
) error {
	if len(rows) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(rows)*commandsPerUpsertRow)

	for _, row := range rows {
		amount, err := row.AmountDelta.Float64()
		if err != nil {
			return fmt.Errorf("failed to score %s delta for category %d: %w",
				bucketType, row.CategoryID, err)
		}

		rankKey := rankKey(row.MerchantID, bucketType, row.BucketStart.Unix())
		detailKey := detailKey(row.MerchantID, bucketType, row.BucketStart.Unix(), row.CategoryID)
		member := strconv.FormatInt(row.CategoryID, 10)

		cmds = append(cmds,
			s.client.B().Zincrby().Key(rankKey).Increment(amount).Member(member).Build(),
			s.client.B().Hincrbyfloat().Key(detailKey).Field("amount").Increment(amount).Build(),
			s.client.B().Hincrby().Key(detailKey).Field("units").Increment(row.UnitsDelta).Build(),
			s.client.B().Hincrby().Key(detailKey).Field("orders").Increment(row.OrderCountDelta).Build(),
		)
	}

	for _, result := range s.client.DoMulti(ctx, cmds...) {
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to write %s deltas to ranking replica: %w", bucketType, err)
		}
	}

	return nil
}

// TopCategories serves an exact-bucket top-N lookup from the rank set,
// hydrating units and order counts from the detail hashes.
func (s *RankingStoreImpl) TopCategories(
	ctx context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	if query.IsRange() {
		return nil, ErrRangeUnsupported
	}

	key := rankKey(query.MerchantID, query.BucketType, query.BucketStart.Unix())

	rankCmd := s.client.B().Zrevrange().Key(key).
		Start(0).Stop(int64(query.Limit) - 1).Withscores().Build()

	scores, err := s.client.Do(ctx, rankCmd).AsZScores()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read rank set: %w", err)
	}

	if len(scores) == 0 {
		return nil, nil
	}

	detailCmds := make(rueidis.Commands, 0, len(scores))
	categoryIDs := make([]int64, 0, len(scores))

	for _, entry := range scores {
		categoryID, err := strconv.ParseInt(entry.Member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected rank member %q: %w", entry.Member, err)
		}

		categoryIDs = append(categoryIDs, categoryID)
		detailCmds = append(detailCmds, s.client.B().Hmget().
			Key(detailKey(query.MerchantID, query.BucketType, query.BucketStart.Unix(), categoryID)).
			Field("amount", "units", "orders").Build())
	}

	details := s.client.DoMulti(ctx, detailCmds...)

	result := make([]model.TopCategory, 0, len(scores))

	for i, entry := range scores {
		row := model.TopCategory{CategoryID: categoryIDs[i]}

		amountStr := strconv.FormatFloat(entry.Score, 'f', -1, 64)

		if fields, err := details[i].ToArray(); err == nil && len(fields) == 3 {
			if v, err := fields[0].ToString(); err == nil {
				amountStr = v
			}

			if v, err := fields[1].AsInt64(); err == nil {
				row.TotalUnitsSold = v
			}

			if v, err := fields[2].AsInt64(); err == nil {
				row.OrderCount = v
			}
		}

		amount, err := money.Parse(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse replica amount: %w", err)
		}

		row.TotalSalesAmount = amount

		result = append(result, row)
	}

	return result, nil
}

func rankKey(merchantID int64, bucketType model.BucketType, bucketStartUnix int64) string {
	return fmt.Sprintf("sales:rank:%d:%s:%d", merchantID, bucketType, bucketStartUnix)
}

func detailKey(merchantID int64, bucketType model.BucketType, bucketStartUnix, categoryID int64) string {
	return fmt.Sprintf("sales:detail:%d:%s:%d:%d", merchantID, bucketType, bucketStartUnix, categoryID)
}
