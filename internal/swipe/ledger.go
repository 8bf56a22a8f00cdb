// Package swipe records participants' like/dislike decisions. The ledger is
// append-only: duplicates are stored as-is and resolved by the match
// detector.
package swipe

import (
	"context"

	"github.com/tastebuds/match-app/internal/domain"
)

// Ledger stores swipes per session.
type Ledger interface {
	Append(ctx context.Context, s *domain.Swipe) error
	// ListForUser returns the distinct restaurant ids userID has swiped.
	ListForUser(ctx context.Context, sessionID, userID string) ([]string, error)
	// ListForRestaurant returns every swipe on restaurantID in append order.
	ListForRestaurant(ctx context.Context, sessionID, restaurantID string) ([]domain.Swipe, error)
	// DecidedCount returns how many distinct restaurants userID has swiped.
	DecidedCount(ctx context.Context, sessionID, userID string) (int64, error)
}
