package swipe

import (
	"context"
	"sort"
	"sync"

	"github.com/tastebuds/match-app/internal/domain"
)

// MemoryLedger is an in-process Ledger for tests and the local simulator.
type MemoryLedger struct {
	mu     sync.Mutex
	swipes map[string][]domain.Swipe // by session id
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{swipes: make(map[string][]domain.Swipe)}
}

func (m *MemoryLedger) Append(_ context.Context, s *domain.Swipe) error {
	m.mu.Lock()
	m.swipes[s.SessionID] = append(m.swipes[s.SessionID], *s)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) ListForUser(_ context.Context, sessionID, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	ids := []string{}
	for _, s := range m.swipes[sessionID] {
		if s.UserID == userID && !seen[s.RestaurantID] {
			seen[s.RestaurantID] = true
			ids = append(ids, s.RestaurantID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryLedger) ListForRestaurant(_ context.Context, sessionID, restaurantID string) ([]domain.Swipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Swipe
	for _, s := range m.swipes[sessionID] {
		if s.RestaurantID == restaurantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryLedger) DecidedCount(ctx context.Context, sessionID, userID string) (int64, error) {
	ids, err := m.ListForUser(ctx, sessionID, userID)
	return int64(len(ids)), err
}
