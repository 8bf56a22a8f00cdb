package client

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/matching"
	"github.com/tastebuds/match-app/internal/session"
	"github.com/tastebuds/match-app/internal/swipe"
)

type fixedCandidates []string

func (f fixedCandidates) SelectCandidates(context.Context, domain.Filters) ([]string, error) {
	return f, nil
}

// env wires the real services over in-memory stores.
type env struct {
	sessions *session.Service
	swipes   *swipe.Service
	detector *matching.Detector
}

func newEnv(t *testing.T, candidates ...string) *env {
	t.Helper()
	sessions := session.NewService(session.ServiceDeps{
		Store:    session.NewMemoryStore(),
		Selector: fixedCandidates(candidates),
	}, session.DefaultServiceConfig())
	ledger := swipe.NewMemoryLedger()
	detector := matching.NewDetector(matching.DetectorDeps{
		Sessions: sessions,
		Swipes:   ledger,
		Repo:     matching.NewMemoryRepository(),
		Logger:   zap.NewNop(),
	})
	return &env{
		sessions: sessions,
		swipes: swipe.NewService(swipe.ServiceDeps{
			Ledger:   ledger,
			Sessions: sessions,
			Detector: detector,
		}),
		detector: detector,
	}
}

func (e *env) as(user string) *localAPI {
	return &localAPI{env: e, user: user}
}

// localAPI calls the services directly as one user.
type localAPI struct {
	env  *env
	user string
}

func (a *localAPI) CreateSession(ctx context.Context, filters domain.Filters) (*SessionView, error) {
	sess, err := a.env.sessions.CreateSession(ctx, a.user, filters)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *sess}, nil
}

func (a *localAPI) JoinSession(ctx context.Context, code string) (*SessionView, error) {
	sess, err := a.env.sessions.JoinSession(ctx, code, a.user)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *sess}, nil
}

func (a *localAPI) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return a.env.sessions.GetSession(ctx, id)
}

func (a *localAPI) RecordSwipe(ctx context.Context, sessionID, restaurantID string, liked bool) (*swipe.Result, error) {
	return a.env.swipes.RecordSwipe(ctx, sessionID, a.user, restaurantID, liked)
}

func (a *localAPI) ListSwipes(ctx context.Context, sessionID string) ([]string, error) {
	return a.env.swipes.ListSwipesForUser(ctx, sessionID, a.user)
}

func (a *localAPI) ListMatches(ctx context.Context, sessionID string) ([]domain.Match, error) {
	return a.env.detector.ListMatchesForSession(ctx, sessionID, a.user)
}

// scriptDecider likes the listed restaurants and records what it was shown.
type scriptDecider struct {
	mu        sync.Mutex
	likes     map[string]bool
	presented []string
}

func likes(ids ...string) *scriptDecider {
	d := &scriptDecider{likes: map[string]bool{}}
	for _, id := range ids {
		d.likes[id] = true
	}
	return d
}

func (d *scriptDecider) Decide(_ context.Context, restaurantID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presented = append(d.presented, restaurantID)
	return d.likes[restaurantID], nil
}

func (d *scriptDecider) shown() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.presented...)
}

type recordingPresenter struct {
	mu       sync.Mutex
	waiting  int
	joined   int
	matches  []string // restaurant ids
	failures []string
	noMore   int
}

func (p *recordingPresenter) WaitingForPartner(*domain.Session) {
	p.mu.Lock()
	p.waiting++
	p.mu.Unlock()
}

func (p *recordingPresenter) PartnerJoined(*domain.Session) {
	p.mu.Lock()
	p.joined++
	p.mu.Unlock()
}

func (p *recordingPresenter) MatchFound(m domain.Match) {
	p.mu.Lock()
	p.matches = append(p.matches, m.RestaurantID)
	p.mu.Unlock()
}

func (p *recordingPresenter) SwipeFailed(restaurantID string, _ error) {
	p.mu.Lock()
	p.failures = append(p.failures, restaurantID)
	p.mu.Unlock()
}

func (p *recordingPresenter) NoMoreCandidates() {
	p.mu.Lock()
	p.noMore++
	p.mu.Unlock()
}

func (p *recordingPresenter) snapshot() recordingPresenter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return recordingPresenter{
		waiting:  p.waiting,
		joined:   p.joined,
		matches:  append([]string(nil), p.matches...),
		failures: append([]string(nil), p.failures...),
		noMore:   p.noMore,
	}
}
