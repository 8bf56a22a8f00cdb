package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/audit"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/metrics"
	"github.com/tastebuds/match-app/internal/ratelimit"
)

// joinAttempts is the initial participant write plus one retry after a
// compare-and-set rejection.
const joinAttempts = 2

// CandidateSelector produces the candidate list for new sessions.
type CandidateSelector interface {
	SelectCandidates(ctx context.Context, filters domain.Filters) ([]string, error)
}

// EventPublisher fans session updates out to push subscribers.
type EventPublisher interface {
	PublishSessionUpdate(sessionID string, data []byte) error
}

// RateLimiter throttles per-user actions.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// ServiceDeps are the collaborators of Service. Publisher, Audit and Limiter
// are optional.
type ServiceDeps struct {
	Store     Store
	Selector  CandidateSelector
	Publisher EventPublisher
	Audit     audit.Publisher
	Limiter   RateLimiter
	Logger    *zap.Logger
}

// ServiceConfig tunes Service.
type ServiceConfig struct {
	CodeAttempts int
	CreateRule   ratelimit.Rule
	JoinRule     ratelimit.Rule
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CodeAttempts: 8,
		CreateRule:   ratelimit.CreateSessionRule(10),
		JoinRule:     ratelimit.JoinRule(20),
	}
}

// Service implements session creation, joining and lookup.
type Service struct {
	store     Store
	selector  CandidateSelector
	publisher EventPublisher
	audit     audit.Publisher
	limiter   RateLimiter
	cfg       ServiceConfig
	logger    *zap.Logger

	newCode func() (string, error)
	now     func() time.Time
}

// NewService wires a session service.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")
	auditor := deps.Audit
	if auditor == nil {
		auditor = audit.NewNoop(logger)
	}
	if cfg.CodeAttempts < 1 {
		cfg.CodeAttempts = 1
	}
	return &Service{
		store:     deps.Store,
		selector:  deps.Selector,
		publisher: deps.Publisher,
		audit:     auditor,
		limiter:   deps.Limiter,
		cfg:       cfg,
		logger:    logger,
		newCode:   GenerateCode,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession builds a waiting session owned by creatorID with a freshly
// selected candidate list and a unique share code.
func (s *Service) CreateSession(ctx context.Context, creatorID string, filters domain.Filters) (*domain.Session, error) {
	if err := s.allow(ctx, creatorID, s.cfg.CreateRule); err != nil {
		return nil, err
	}

	filters, err := NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	candidates, err := s.selector.SelectCandidates(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	id := uuid.New().String()
	code, err := s.reserveCode(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &domain.Session{
		ID:             id,
		Code:           code,
		Filters:        filters,
		CandidateIDs:   candidates,
		ParticipantIDs: []string{creatorID},
		Status:         domain.StatusWaiting,
		CreatedBy:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		if relErr := s.store.ReleaseCode(ctx, code); relErr != nil {
			s.logger.Warn("release code after failed create", zap.String("code", code), zap.Error(relErr))
		}
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	s.emitAudit(ctx, audit.EventSessionCreated, sess, creatorID, map[string]any{
		"candidates": len(candidates),
		"code":       code,
	})
	s.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("code", code),
		zap.Int("candidates", len(candidates)))
	return sess, nil
}

// JoinSession admits userID into the session identified by code. Rejoining
// returns the session unchanged. The participant write is conditional on the
// list read; a rejected write is re-evaluated once before reporting the
// session as full.
func (s *Service) JoinSession(ctx context.Context, code, userID string) (*domain.Session, error) {
	if err := s.allow(ctx, userID, s.cfg.JoinRule); err != nil {
		return nil, err
	}

	normalized, ok := NormalizeCode(code)
	if !ok {
		metrics.SessionJoins.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("session: code %q: %w", code, domain.ErrNotFound)
	}

	for attempt := 0; attempt < joinAttempts; attempt++ {
		sess, err := s.store.GetByCode(ctx, normalized)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.SessionJoins.WithLabelValues("not_found").Inc()
			}
			return nil, err
		}

		if sess.IsParticipant(userID) {
			metrics.SessionJoins.WithLabelValues("rejoined").Inc()
			return sess, nil
		}
		if sess.IsFull() {
			metrics.SessionJoins.WithLabelValues("full").Inc()
			return nil, fmt.Errorf("session: join %s: %w", sess.ID, domain.ErrSessionFull)
		}

		next := append(slices.Clone(sess.ParticipantIDs), userID)
		status := domain.StatusWaiting
		if len(next) == domain.MaxParticipants {
			status = domain.StatusActive
		}
		now := s.now()

		err = s.store.UpdateParticipants(ctx, sess.ID, sess.ParticipantIDs, next, status, now)
		if errors.Is(err, domain.ErrConflict) {
			metrics.JoinCASRetries.Inc()
			s.logger.Debug("participant write rejected, re-reading",
				zap.String("session_id", sess.ID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		sess.ParticipantIDs = next
		sess.Status = status
		sess.UpdatedAt = now

		metrics.SessionJoins.WithLabelValues("joined").Inc()
		s.publishUpdate(sess, userID)
		s.emitAudit(ctx, audit.EventSessionJoined, sess, userID, nil)
		s.logger.Info("participant joined",
			zap.String("session_id", sess.ID),
			zap.String("user_id", userID),
			zap.String("status", string(status)))
		return sess, nil
	}

	metrics.SessionJoins.WithLabelValues("full").Inc()
	return nil, fmt.Errorf("session: join %s: concurrent update: %w", normalized, domain.ErrSessionFull)
}

// GetSession returns the session or domain.ErrNotFound.
func (s *Service) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

// GetSessionByCode resolves a share code without joining.
func (s *Service) GetSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	normalized, ok := NormalizeCode(code)
	if !ok {
		return nil, fmt.Errorf("session: code %q: %w", code, domain.ErrNotFound)
	}
	return s.store.GetByCode(ctx, normalized)
}

// Complete marks an active session completed. It reports false when the
// session was not active, which includes an earlier completion.
func (s *Service) Complete(ctx context.Context, id string) (bool, error) {
	err := s.store.UpdateStatus(ctx, id, domain.StatusActive, domain.StatusCompleted, s.now())
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.SessionsCompleted.Inc()
	s.logger.Info("session completed", zap.String("session_id", id))
	if sess, err := s.store.Get(ctx, id); err == nil {
		s.publishUpdate(sess, "")
	}
	return true, nil
}

// Touch extends the session lifetime after activity.
func (s *Service) Touch(ctx context.Context, sess *domain.Session) {
	if err := s.store.Touch(ctx, sess); err != nil {
		s.logger.Warn("refresh session ttl", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Service) reserveCode(ctx context.Context, sessionID string) (string, error) {
	for i := 0; i < s.cfg.CodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		ok, err := s.store.ReserveCode(ctx, code, sessionID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
		s.logger.Debug("session code collision, regenerating", zap.String("code", code))
	}
	return "", fmt.Errorf("session: no free code after %d attempts: %w", s.cfg.CodeAttempts, domain.ErrConflict)
}

func (s *Service) allow(ctx context.Context, userID string, rule ratelimit.Rule) error {
	if s.limiter == nil || rule.Limit == 0 {
		return nil
	}
	ok, _ := s.limiter.Allow(ctx, userID, rule)
	if !ok {
		return fmt.Errorf("session: %s: %w", rule.Name, domain.ErrRateLimited)
	}
	return nil
}

func (s *Service) publishUpdate(sess *domain.Session, joinedBy string) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(messaging.SessionUpdateEvent{Session: sess, JoinedBy: joinedBy})
	if err != nil {
		s.logger.Error("marshal session update", zap.Error(err))
		return
	}
	if err := s.publisher.PublishSessionUpdate(sess.ID, data); err != nil {
		s.logger.Warn("publish session update", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Service) emitAudit(ctx context.Context, eventType string, sess *domain.Session, actor string, data map[string]any) {
	err := s.audit.Publish(ctx, audit.Event{
		Type:       eventType,
		SessionID:  sess.ID,
		ActorID:    actor,
		OccurredAt: s.now(),
		Data:       data,
	})
	if err != nil {
		s.logger.Warn("audit publish", zap.String("type", eventType), zap.Error(err))
	}
}
