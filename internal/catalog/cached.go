package catalog

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tastebuds/match-app/internal/domain"
)

// CachedCatalog memoizes GetRestaurant lookups. Candidate selection always
// goes to the underlying catalog so new sessions see fresh data.
type CachedCatalog struct {
	next  Catalog
	cache *cache.Cache
}

// NewCachedCatalog wraps next with a restaurant cache of the given TTL.
func NewCachedCatalog(next Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedCatalog) QueryRestaurants(ctx context.Context, filters domain.Filters) ([]domain.Restaurant, error) {
	return c.next.QueryRestaurants(ctx, filters)
}

func (c *CachedCatalog) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	if x, found := c.cache.Get(id); found {
		r := x.(domain.Restaurant)
		return &r, nil
	}

	r, err := c.next.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(id, *r, cache.DefaultExpiration)
	return r, nil
}
