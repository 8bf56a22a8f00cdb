// Package catalog reads the restaurant catalog and turns a session's filters
// into its fixed candidate list.
package catalog

import (
	"context"

	"github.com/tastebuds/match-app/internal/domain"
)

// Catalog is the read side of the restaurant catalog.
type Catalog interface {
	// QueryRestaurants returns restaurants matching every non-empty filter
	// field. Empty filters return the whole catalog.
	QueryRestaurants(ctx context.Context, filters domain.Filters) ([]domain.Restaurant, error)
	// GetRestaurant returns a single restaurant or domain.ErrNotFound.
	GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error)
}
