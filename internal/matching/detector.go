package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/audit"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/metrics"
)

// SessionReader loads sessions.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
}

// SwipeReader lists the swipes on one restaurant.
type SwipeReader interface {
	ListForRestaurant(ctx context.Context, sessionID, restaurantID string) ([]domain.Swipe, error)
}

// DetectorDeps are the collaborators of Detector. Notifier and Audit are
// optional.
type DetectorDeps struct {
	Sessions SessionReader
	Swipes   SwipeReader
	Repo     Repository
	Notifier Notifier
	Audit    audit.Publisher
	Logger   *zap.Logger
}

// Detector creates matches when both participants liked a restaurant.
type Detector struct {
	sessions SessionReader
	swipes   SwipeReader
	repo     Repository
	notifier Notifier
	audit    audit.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewDetector wires a Detector.
func NewDetector(deps DetectorDeps) *Detector {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("matcher")
	auditor := deps.Audit
	if auditor == nil {
		auditor = audit.NewNoop(logger)
	}
	return &Detector{
		sessions: deps.Sessions,
		swipes:   deps.Swipes,
		repo:     deps.Repo,
		notifier: deps.Notifier,
		audit:    auditor,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnSwipeRecorded checks whether both participants liked restaurantID and
// creates the match if it does not exist yet. It returns the match (new or
// existing) and whether this call created it. Each participant's first swipe
// on the restaurant is their decision; later duplicates are ignored.
func (d *Detector) OnSwipeRecorded(ctx context.Context, sessionID, restaurantID string) (*domain.Match, bool, error) {
	sess, err := d.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if len(sess.ParticipantIDs) < domain.MaxParticipants {
		return nil, false, nil
	}

	swipes, err := d.swipes.ListForRestaurant(ctx, sessionID, restaurantID)
	if err != nil {
		return nil, false, err
	}
	if !bothLiked(sess.ParticipantIDs, swipes) {
		return nil, false, nil
	}

	existing, err := d.repo.FindBySessionRestaurant(ctx, sessionID, restaurantID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	users := []string{sess.ParticipantIDs[0], sess.ParticipantIDs[1]}
	sort.Strings(users)
	m := &domain.Match{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		RestaurantID: restaurantID,
		User1ID:      users[0],
		User2ID:      users[1],
		CreatedAt:    d.now(),
	}

	inserted, err := d.repo.Insert(ctx, m)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// Another detector run won the insert.
		existing, err := d.repo.FindBySessionRestaurant(ctx, sessionID, restaurantID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	metrics.MatchesCreated.Inc()
	d.logger.Info("match created",
		zap.String("session_id", sessionID),
		zap.String("restaurant_id", restaurantID),
		zap.String("match_id", m.ID))

	if d.notifier != nil {
		if err := PublishMatchFound(d.notifier, m); err != nil {
			d.logger.Warn("publish match.found", zap.String("match_id", m.ID), zap.Error(err))
		}
	}
	if err := d.audit.Publish(ctx, audit.Event{
		Type:       audit.EventMatchCreated,
		SessionID:  sessionID,
		OccurredAt: m.CreatedAt,
		Data:       map[string]any{"matchId": m.ID, "restaurantId": restaurantID},
	}); err != nil {
		d.logger.Warn("audit match.created", zap.Error(err))
	}
	return m, true, nil
}

// ListMatchesForSession returns the session's matches newest first. Only
// participants may read them.
func (d *Detector) ListMatchesForSession(ctx context.Context, sessionID, userID string) ([]domain.Match, error) {
	sess, err := d.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, fmt.Errorf("matching: user %s in session %s: %w", userID, sessionID, domain.ErrForbidden)
	}
	return d.repo.ListBySession(ctx, sessionID)
}

// ListMatchesForUser returns every match involving userID, newest first.
func (d *Detector) ListMatchesForUser(ctx context.Context, userID string) ([]domain.Match, error) {
	return d.repo.ListByUser(ctx, userID)
}

// bothLiked reports whether every participant's first swipe is a like.
func bothLiked(participants []string, swipes []domain.Swipe) bool {
	decisions := make(map[string]bool, len(participants))
	for _, s := range swipes {
		if _, decided := decisions[s.UserID]; decided {
			continue
		}
		decisions[s.UserID] = s.Liked
	}
	for _, p := range participants {
		liked, decided := decisions[p]
		if !decided || !liked {
			return false
		}
	}
	return true
}
