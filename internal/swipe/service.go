package swipe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/metrics"
	"github.com/tastebuds/match-app/internal/ratelimit"
)

// Sessions is the part of the session service the ledger needs.
type Sessions interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	Complete(ctx context.Context, id string) (bool, error)
	Touch(ctx context.Context, s *domain.Session)
}

// Detector derives matches after a swipe.
type Detector interface {
	OnSwipeRecorded(ctx context.Context, sessionID, restaurantID string) (*domain.Match, bool, error)
}

// EventPublisher announces recorded swipes.
type EventPublisher interface {
	PublishSwipeRecorded(data []byte) error
}

// RateLimiter throttles per-user actions.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// ServiceDeps are the collaborators of Service. Detector, Publisher and
// Limiter are optional.
type ServiceDeps struct {
	Ledger    Ledger
	Sessions  Sessions
	Detector  Detector
	Publisher EventPublisher
	Limiter   RateLimiter
	Rule      ratelimit.Rule
	Logger    *zap.Logger
}

// Result is the outcome of RecordSwipe. Match is set only when this swipe
// created one.
type Result struct {
	Swipe *domain.Swipe `json:"swipe"`
	Match *domain.Match `json:"match,omitempty"`
}

// Service validates and records swipes.
type Service struct {
	ledger    Ledger
	sessions  Sessions
	detector  Detector
	publisher EventPublisher
	limiter   RateLimiter
	rule      ratelimit.Rule
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a swipe service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger:    deps.Ledger,
		sessions:  deps.Sessions,
		detector:  deps.Detector,
		publisher: deps.Publisher,
		limiter:   deps.Limiter,
		rule:      deps.Rule,
		logger:    logger.Named("swipe"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordSwipe appends userID's decision on restaurantID. The session must
// exist, userID must participate and restaurantID must be a candidate.
// Duplicates are accepted. Detection runs synchronously; its failure does not
// fail the swipe since the matcher re-runs detection from swipe.recorded.
func (s *Service) RecordSwipe(ctx context.Context, sessionID, userID, restaurantID string, liked bool) (*Result, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, fmt.Errorf("swipe: user %s in session %s: %w", userID, sessionID, domain.ErrForbidden)
	}
	if !sess.HasCandidate(restaurantID) {
		return nil, fmt.Errorf("swipe: restaurant %s in session %s: %w", restaurantID, sessionID, domain.ErrInvalidCandidate)
	}
	if err := s.allow(ctx, userID); err != nil {
		return nil, err
	}

	sw := &domain.Swipe{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		UserID:       userID,
		RestaurantID: restaurantID,
		Liked:        liked,
		CreatedAt:    s.now(),
	}
	if err := s.ledger.Append(ctx, sw); err != nil {
		return nil, err
	}
	s.sessions.Touch(ctx, sess)

	decision := "dislike"
	if liked {
		decision = "like"
	}
	metrics.SwipesTotal.WithLabelValues(decision).Inc()

	result := &Result{Swipe: sw}
	if s.detector != nil {
		start := time.Now()
		match, created, err := s.detector.OnSwipeRecorded(ctx, sessionID, restaurantID)
		metrics.DetectorRuns.WithLabelValues("sync").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("match detection failed, deferring to matcher",
				zap.String("session_id", sessionID),
				zap.String("restaurant_id", restaurantID),
				zap.Error(err))
		} else if created {
			result.Match = match
		}
	}

	s.publishRecorded(sw)
	if sess.Status == domain.StatusActive {
		if _, err := s.CheckCompletion(ctx, sess); err != nil {
			s.logger.Warn("completion check failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return result, nil
}

// ListSwipesForUser returns the restaurant ids userID has already decided
// in the session.
func (s *Service) ListSwipesForUser(ctx context.Context, sessionID, userID string) ([]string, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, fmt.Errorf("swipe: user %s in session %s: %w", userID, sessionID, domain.ErrForbidden)
	}
	return s.ledger.ListForUser(ctx, sessionID, userID)
}

// CheckCompletion completes an active session once every participant has
// decided every candidate. It reports whether this call completed it.
func (s *Service) CheckCompletion(ctx context.Context, sess *domain.Session) (bool, error) {
	if sess.Status != domain.StatusActive || !sess.IsFull() {
		return false, nil
	}
	for _, p := range sess.ParticipantIDs {
		n, err := s.ledger.DecidedCount(ctx, sess.ID, p)
		if err != nil {
			return false, err
		}
		if n < int64(len(sess.CandidateIDs)) {
			return false, nil
		}
	}
	return s.sessions.Complete(ctx, sess.ID)
}

func (s *Service) allow(ctx context.Context, userID string) error {
	if s.limiter == nil || s.rule.Limit == 0 {
		return nil
	}
	ok, _ := s.limiter.Allow(ctx, userID, s.rule)
	if !ok {
		return fmt.Errorf("swipe: %w", domain.ErrRateLimited)
	}
	return nil
}

func (s *Service) publishRecorded(sw *domain.Swipe) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(messaging.SwipeRecordedEvent{
		SwipeID:      sw.ID,
		SessionID:    sw.SessionID,
		UserID:       sw.UserID,
		RestaurantID: sw.RestaurantID,
		Liked:        sw.Liked,
		RecordedAt:   sw.CreatedAt,
	})
	if err != nil {
		s.logger.Error("marshal swipe event", zap.Error(err))
		return
	}
	if err := s.publisher.PublishSwipeRecorded(data); err != nil {
		s.logger.Warn("publish swipe.recorded", zap.String("session_id", sw.SessionID), zap.Error(err))
	}
}
