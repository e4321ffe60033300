package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/merchkit/sales-pipeline/internal/model"
	"github.com/merchkit/sales-pipeline/internal/repository"
)

const defaultTopCategoryLimit = 5

// TopCategoryServiceImpl implements TopCategoryService. Point lookups
// prefer the ranking replica when one is configured, falling back to the
// authoritative store when the replica errors or has no data; custom
// ranges always scan the authoritative store. Rows are enriched with
// catalog names, with a placeholder for unknown ids.
type TopCategoryServiceImpl struct {
	authoritative repository.AggregateQueryStore
	ranking       repository.AggregateQueryStore
	catalog       repository.CategoryCatalog
}

// NewTopCategoryServiceImpl creates a new TopCategoryService
// implementation. ranking may be nil when no replica is deployed.
func NewTopCategoryServiceImpl(
	authoritative repository.AggregateQueryStore,
	ranking repository.AggregateQueryStore,
	catalog repository.CategoryCatalog,
) *TopCategoryServiceImpl {
	return &TopCategoryServiceImpl{
		authoritative: authoritative,
		ranking:       ranking,
		catalog:       catalog,
	}
}

// TopCategories returns the top categories for the query, ordered by
// descending total sales amount. Tie order is whatever the selected
// store returns.
func (s *TopCategoryServiceImpl) TopCategories(
	ctx context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	if query.Limit <= 0 {
		query.Limit = defaultTopCategoryLimit
	}

	rows, err := s.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return []model.TopCategory{}, nil
	}

	categoryIDs := make([]int64, len(rows))
	for i, row := range rows {
		categoryIDs[i] = row.CategoryID
	}

	names, err := s.catalog.Names(ctx, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category names: %w", err)
	}

	for i := range rows {
		if name, ok := names[rows[i].CategoryID]; ok {
			rows[i].CategoryName = name
		} else {
			rows[i].CategoryName = fmt.Sprintf("Unknown Category: %d", rows[i].CategoryID)
		}
	}

	return rows, nil
}

func (s *TopCategoryServiceImpl) lookup(
	ctx context.Context, query model.TopCategoryQuery,
) ([]model.TopCategory, error) {
	if !query.IsRange() && s.ranking != nil {
		rows, err := s.ranking.TopCategories(ctx, query)
		if err != nil {
			slog.Warn("ranking replica lookup failed, using authoritative store",
				slog.String("error", err.Error()),
			)
		} else if len(rows) > 0 {
			return rows, nil
		}
	}

	return s.authoritative.TopCategories(ctx, query)
}
