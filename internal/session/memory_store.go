package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tastebuds/match-app/internal/domain"
)

// MemoryStore is an in-process Store with the same conditional-write
// semantics as RedisStore. It backs tests and the local simulator.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	codes    map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		codes:    make(map[string]string),
	}
}

func (m *MemoryStore) ReserveCode(_ context.Context, code, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.codes[code]; taken {
		return false, nil
	}
	m.codes[code] = sessionID
	return true, nil
}

func (m *MemoryStore) ReleaseCode(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.codes, code)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	out := clone(&s)
	return &out, nil
}

func (m *MemoryStore) GetByCode(ctx context.Context, code string) (*domain.Session, error) {
	m.mu.Lock()
	id, ok := m.codes[code]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session: code %s: %w", code, domain.ErrNotFound)
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) UpdateParticipants(_ context.Context, id string, expected, participants []string, status domain.SessionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	if !slices.Equal(s.ParticipantIDs, expected) {
		return fmt.Errorf("session: %s: %w", id, domain.ErrConflict)
	}
	s.ParticipantIDs = slices.Clone(participants)
	s.Status = status
	s.UpdatedAt = at
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to domain.SessionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	if s.Status != from {
		return fmt.Errorf("session: %s: %w", id, domain.ErrConflict)
	}
	s.Status = to
	s.UpdatedAt = at
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) Touch(context.Context, *domain.Session) error { return nil }

func clone(s *domain.Session) domain.Session {
	out := *s
	out.CandidateIDs = slices.Clone(s.CandidateIDs)
	out.ParticipantIDs = slices.Clone(s.ParticipantIDs)
	return out
}
