package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tastebuds/match-app/internal/domain"
)

// Repository persists matches. Insert must be a no-op returning false when a
// match for the same session and restaurant already exists.
type Repository interface {
	Insert(ctx context.Context, m *domain.Match) (bool, error)
	FindBySessionRestaurant(ctx context.Context, sessionID, restaurantID string) (*domain.Match, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Match, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Match, error)
}

// PostgresRepository stores matches in the matches table, whose unique
// (session_id, restaurant_id) constraint backs Insert's no-op semantics.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a repository backed by the given handle.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, m *domain.Match) (bool, error) {
	const query = `
		INSERT INTO matches (id, session_id, restaurant_id, user1_id, user2_id, created_at)
		VALUES (:id, :session_id, :restaurant_id, :user1_id, :user2_id, :created_at)
		ON CONFLICT (session_id, restaurant_id) DO NOTHING`

	res, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return false, storeErr("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("insert", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) FindBySessionRestaurant(ctx context.Context, sessionID, restaurantID string) (*domain.Match, error) {
	const query = `
		SELECT id, session_id, restaurant_id, user1_id, user2_id, created_at
		FROM matches
		WHERE session_id = $1 AND restaurant_id = $2`

	var m domain.Match
	err := r.db.GetContext(ctx, &m, query, sessionID, restaurantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("matching: match %s/%s: %w", sessionID, restaurantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("find", err)
	}
	return &m, nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.Match, error) {
	const query = `
		SELECT id, session_id, restaurant_id, user1_id, user2_id, created_at
		FROM matches
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC`

	matches := []domain.Match{}
	if err := r.db.SelectContext(ctx, &matches, query, sessionID); err != nil {
		return nil, storeErr("list by session", err)
	}
	return matches, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Match, error) {
	const query = `
		SELECT id, session_id, restaurant_id, user1_id, user2_id, created_at
		FROM matches
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY created_at DESC, id DESC`

	matches := []domain.Match{}
	if err := r.db.SelectContext(ctx, &matches, query, userID); err != nil {
		return nil, storeErr("list by user", err)
	}
	return matches, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("matching: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
