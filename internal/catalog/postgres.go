package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/tastebuds/match-app/internal/domain"
)

const restaurantsTable = "restaurants"

var restaurantColumns = []string{
	"id", "name", "category", "price_range", "image_url", "rating", "description",
}

// PostgresCatalog serves the catalog from the restaurants table.
type PostgresCatalog struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewPostgresCatalog creates a catalog backed by the given database handle.
func NewPostgresCatalog(db *sqlx.DB) *PostgresCatalog {
	return &PostgresCatalog{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// QueryRestaurants applies an equality condition per non-empty filter field,
// ordered by name then id.
func (c *PostgresCatalog) QueryRestaurants(ctx context.Context, filters domain.Filters) ([]domain.Restaurant, error) {
	query := c.sb.Select(restaurantColumns...).
		From(restaurantsTable).
		OrderBy("name ASC", "id ASC")

	where := squirrel.Eq{}
	if filters.Category != "" {
		where["category"] = filters.Category
	}
	if filters.PriceRange != "" {
		where["price_range"] = filters.PriceRange
	}
	if len(where) > 0 {
		query = query.Where(where)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog: build query: %w", err)
	}

	var restaurants []domain.Restaurant
	if err := c.db.SelectContext(ctx, &restaurants, stmt, args...); err != nil {
		return nil, fmt.Errorf("catalog: query restaurants: %w: %w", domain.ErrCatalogUnavailable, err)
	}
	return restaurants, nil
}

// GetRestaurant loads one restaurant by id.
func (c *PostgresCatalog) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	stmt, args, err := c.sb.Select(restaurantColumns...).
		From(restaurantsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog: build query: %w", err)
	}

	var r domain.Restaurant
	if err := c.db.GetContext(ctx, &r, stmt, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("catalog: restaurant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: get restaurant: %w: %w", domain.ErrCatalogUnavailable, err)
	}
	return &r, nil
}
