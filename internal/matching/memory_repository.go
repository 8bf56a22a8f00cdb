package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tastebuds/match-app/internal/domain"
)

// MemoryRepository is an in-process Repository enforcing the same
// one-match-per-restaurant rule as the matches table.
type MemoryRepository struct {
	mu      sync.Mutex
	matches []domain.Match
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Insert(_ context.Context, m *domain.Match) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.matches {
		if existing.SessionID == m.SessionID && existing.RestaurantID == m.RestaurantID {
			return false, nil
		}
	}
	r.matches = append(r.matches, *m)
	return true, nil
}

func (r *MemoryRepository) FindBySessionRestaurant(_ context.Context, sessionID, restaurantID string) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		if m.SessionID == sessionID && m.RestaurantID == restaurantID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("matching: match %s/%s: %w", sessionID, restaurantID, domain.ErrNotFound)
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID string) ([]domain.Match, error) {
	return r.filter(func(m domain.Match) bool { return m.SessionID == sessionID }), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]domain.Match, error) {
	return r.filter(func(m domain.Match) bool { return m.User1ID == userID || m.User2ID == userID }), nil
}

func (r *MemoryRepository) filter(keep func(domain.Match) bool) []domain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Match{}
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
