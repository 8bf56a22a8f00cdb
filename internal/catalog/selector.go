package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
)

// Selector picks the candidate list for a new session.
type Selector struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewSelector creates a selector over the given catalog.
func NewSelector(c Catalog, logger *zap.Logger) *Selector {
	return &Selector{catalog: c, logger: logger.Named("catalog")}
}

// SelectCandidates returns the ids of restaurants matching filters in
// catalog order. When nothing matches it falls back to the entire catalog,
// ignoring filters. An empty catalog is reported as unavailable since a
// session cannot exist without candidates.
func (s *Selector) SelectCandidates(ctx context.Context, filters domain.Filters) ([]string, error) {
	restaurants, err := s.catalog.QueryRestaurants(ctx, filters)
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	if len(restaurants) == 0 && filters != (domain.Filters{}) {
		s.logger.Info("no restaurants match filters, falling back to full catalog",
			zap.String("category", filters.Category),
			zap.String("price_range", filters.PriceRange))

		restaurants, err = s.catalog.QueryRestaurants(ctx, domain.Filters{})
		if err != nil {
			return nil, wrapUnavailable(err)
		}
	}

	if len(restaurants) == 0 {
		return nil, fmt.Errorf("catalog: catalog is empty: %w", domain.ErrCatalogUnavailable)
	}

	ids := make([]string, len(restaurants))
	for i, r := range restaurants {
		ids[i] = r.ID
	}
	return ids, nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, domain.ErrCatalogUnavailable) {
		return err
	}
	return fmt.Errorf("catalog: select candidates: %w: %w", domain.ErrCatalogUnavailable, err)
}
