package session

import (
	"context"
	"time"

	"github.com/tastebuds/match-app/internal/domain"
)

// Store persists session records. Implementations must make
// UpdateParticipants and UpdateStatus conditional writes: they fail with
// domain.ErrConflict when the stored value no longer equals the expected one.
type Store interface {
	// ReserveCode claims code for sessionID. It returns false when the code
	// is already held by a live session.
	ReserveCode(ctx context.Context, code, sessionID string) (bool, error)
	ReleaseCode(ctx context.Context, code string) error

	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	GetByCode(ctx context.Context, code string) (*domain.Session, error)

	UpdateParticipants(ctx context.Context, id string, expected, participants []string, status domain.SessionStatus, at time.Time) error
	UpdateStatus(ctx context.Context, id string, from, to domain.SessionStatus, at time.Time) error

	// Touch extends the session's lifetime.
	Touch(ctx context.Context, s *domain.Session) error
}
