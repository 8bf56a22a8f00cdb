package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/swipe"
)

// API is the part of the REST API the loop uses.
type API interface {
	CreateSession(ctx context.Context, filters domain.Filters) (*SessionView, error)
	JoinSession(ctx context.Context, code string) (*SessionView, error)
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	RecordSwipe(ctx context.Context, sessionID, restaurantID string, liked bool) (*swipe.Result, error)
	ListSwipes(ctx context.Context, sessionID string) ([]string, error)
	ListMatches(ctx context.Context, sessionID string) ([]domain.Match, error)
}

// Decider asks the user for a decision on one candidate. It blocks until
// the user answers or ctx ends.
type Decider interface {
	Decide(ctx context.Context, restaurantID string) (liked bool, err error)
}

// Presenter renders loop events. Calls may come from two goroutines; a
// match can be shown while a decision is pending.
type Presenter interface {
	WaitingForPartner(sess *domain.Session)
	PartnerJoined(sess *domain.Session)
	MatchFound(m domain.Match)
	SwipeFailed(restaurantID string, err error)
	NoMoreCandidates()
}

// Config holds the loop's polling intervals.
type Config struct {
	JoinPollInterval  time.Duration
	MatchPollInterval time.Duration
}

// DefaultConfig polls for the partner every 2s and for matches every 3s.
func DefaultConfig() Config {
	return Config{
		JoinPollInterval:  2 * time.Second,
		MatchPollInterval: 3 * time.Second,
	}
}

// Loop drives one participant through a session: wait for the partner,
// then swipe through the remaining candidates while polling for matches.
type Loop struct {
	api       API
	decider   Decider
	presenter Presenter
	cfg       Config
	logger    *zap.Logger

	wake chan struct{}

	mu   sync.Mutex
	seen map[string]bool // match ids already shown
}

// NewLoop creates a Loop.
func NewLoop(api API, decider Decider, presenter Presenter, cfg Config, logger *zap.Logger) *Loop {
	def := DefaultConfig()
	if cfg.JoinPollInterval <= 0 {
		cfg.JoinPollInterval = def.JoinPollInterval
	}
	if cfg.MatchPollInterval <= 0 {
		cfg.MatchPollInterval = def.MatchPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		api:       api,
		decider:   decider,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger.Named("client"),
		wake:      make(chan struct{}, 1),
		seen:      make(map[string]bool),
	}
}

// Create starts a new session owned by the caller.
func (l *Loop) Create(ctx context.Context, filters domain.Filters) (*SessionView, error) {
	return l.api.CreateSession(ctx, filters)
}

// Join joins the session behind an invite link or code.
func (l *Loop) Join(ctx context.Context, invite string) (*SessionView, error) {
	code, err := ParseInvite(invite)
	if err != nil {
		return nil, err
	}
	return l.api.JoinSession(ctx, code)
}

// Wake makes the pollers check immediately. Push notifications call it.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run waits for the partner, then swipes and polls for matches until ctx
// ends. Running out of candidates does not stop match polling. Run returns
// nil when ctx is cancelled.
func (l *Loop) Run(ctx context.Context, sessionID string) error {
	sess, err := l.waitForPartner(ctx, sessionID)
	if err != nil {
		return ignoreCancel(ctx, err)
	}
	l.presenter.PartnerJoined(sess)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.swipeAll(gctx, sess)
	})
	g.Go(func() error {
		return l.pollMatches(gctx, sessionID)
	})
	return ignoreCancel(ctx, g.Wait())
}

func (l *Loop) waitForPartner(ctx context.Context, sessionID string) (*domain.Session, error) {
	ticker := time.NewTicker(l.cfg.JoinPollInterval)
	defer ticker.Stop()

	announced := false
	for {
		sess, err := l.api.GetSession(ctx, sessionID)
		switch {
		case err == nil && sess.IsFull():
			return sess, nil
		case err == nil:
			if !announced {
				l.presenter.WaitingForPartner(sess)
				announced = true
			}
		case IsTerminal(err):
			return nil, err
		default:
			l.logger.Warn("poll session", zap.String("session_id", sessionID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-l.wake:
		}
	}
}

// swipeAll presents every candidate the user has not decided yet, in
// candidate order.
func (l *Loop) swipeAll(ctx context.Context, sess *domain.Session) error {
	decided, err := l.api.ListSwipes(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("client: list swipes: %w", err)
	}

	for _, restaurantID := range Available(sess.CandidateIDs, decided) {
		liked, err := l.decider.Decide(ctx, restaurantID)
		if err != nil {
			return err
		}

		res, err := l.api.RecordSwipe(ctx, sess.ID, restaurantID, liked)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrUnauthenticated) {
				return err
			}
			l.logger.Warn("swipe failed, skipping",
				zap.String("restaurant_id", restaurantID),
				zap.Error(err))
			l.presenter.SwipeFailed(restaurantID, err)
			continue
		}
		if res.Match != nil {
			l.surface(*res.Match)
		}
	}

	l.presenter.NoMoreCandidates()
	return nil
}

func (l *Loop) pollMatches(ctx context.Context, sessionID string) error {
	ticker := time.NewTicker(l.cfg.MatchPollInterval)
	defer ticker.Stop()

	for {
		matches, err := l.api.ListMatches(ctx, sessionID)
		switch {
		case err == nil:
			// Oldest first so several new matches show in creation order.
			for i := len(matches) - 1; i >= 0; i-- {
				l.surface(matches[i])
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case IsTerminal(err):
			return err
		default:
			l.logger.Warn("poll matches", zap.String("session_id", sessionID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.wake:
		}
	}
}

// surface shows m unless it was shown before.
func (l *Loop) surface(m domain.Match) {
	l.mu.Lock()
	if l.seen[m.ID] {
		l.mu.Unlock()
		return
	}
	l.seen[m.ID] = true
	l.mu.Unlock()

	l.presenter.MatchFound(m)
}

// Available returns the candidates not yet decided, preserving candidate
// order.
func Available(candidates, decided []string) []string {
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !slices.Contains(decided, id) {
			out = append(out, id)
		}
	}
	return out
}

func ignoreCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
