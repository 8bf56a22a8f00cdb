package swipe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/ratelimit"
	"github.com/tastebuds/match-app/internal/session"
)

type staticSelector []string

func (s staticSelector) SelectCandidates(context.Context, domain.Filters) ([]string, error) {
	return s, nil
}

type fakeDetector struct {
	calls   int
	match   *domain.Match
	created bool
	err     error
}

func (f *fakeDetector) OnSwipeRecorded(_ context.Context, sessionID, restaurantID string) (*domain.Match, bool, error) {
	f.calls++
	return f.match, f.created, f.err
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *capturePublisher) PublishSwipeRecorded(data []byte) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, data)
	c.mu.Unlock()
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, ratelimit.Rule) (bool, error) { return false, nil }

type fixture struct {
	sessions *session.Service
	ledger   *MemoryLedger
	detector *fakeDetector
	pub      *capturePublisher
	svc      *Service
	sess     *domain.Session
}

func newFixture(t *testing.T, join bool) *fixture {
	t.Helper()
	ctx := context.Background()

	sessions := session.NewService(session.ServiceDeps{
		Store:    session.NewMemoryStore(),
		Selector: staticSelector{"r1", "r2"},
	}, session.DefaultServiceConfig())

	sess, err := sessions.CreateSession(ctx, "alice", domain.Filters{})
	require.NoError(t, err)
	if join {
		sess, err = sessions.JoinSession(ctx, sess.Code, "bob")
		require.NoError(t, err)
	}

	f := &fixture{
		sessions: sessions,
		ledger:   NewMemoryLedger(),
		detector: &fakeDetector{},
		pub:      &capturePublisher{},
		sess:     sess,
	}
	f.svc = NewService(ServiceDeps{
		Ledger:    f.ledger,
		Sessions:  sessions,
		Detector:  f.detector,
		Publisher: f.pub,
		Logger:    zap.NewNop(),
	})
	return f
}

func TestRecordSwipe(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.RecordSwipe(ctx, f.sess.ID, "alice", "r1", true)
	require.NoError(t, err)

	assert.NotEmpty(t, res.Swipe.ID)
	assert.Equal(t, "alice", res.Swipe.UserID)
	assert.Equal(t, "r1", res.Swipe.RestaurantID)
	assert.True(t, res.Swipe.Liked)
	assert.Nil(t, res.Match)
	assert.Equal(t, 1, f.detector.calls)
	assert.Len(t, f.pub.msgs, 1)

	ids, err := f.svc.ListSwipesForUser(ctx, f.sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	ids, err = f.svc.ListSwipesForUser(ctx, f.sess.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRecordSwipe_Forbidden(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.RecordSwipe(context.Background(), f.sess.ID, "mallory", "r1", true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Zero(t, f.detector.calls)

	_, err = f.svc.ListSwipesForUser(context.Background(), f.sess.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRecordSwipe_InvalidCandidate(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.RecordSwipe(context.Background(), f.sess.ID, "alice", "r-not-offered", true)
	assert.ErrorIs(t, err, domain.ErrInvalidCandidate)

	ids, _ := f.ledger.ListForUser(context.Background(), f.sess.ID, "alice")
	assert.Empty(t, ids)
}

func TestRecordSwipe_UnknownSession(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.RecordSwipe(context.Background(), "nope", "alice", "r1", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordSwipe_DuplicatesAreStored(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.RecordSwipe(ctx, f.sess.ID, "alice", "r1", true)
		require.NoError(t, err)
	}

	swipes, err := f.ledger.ListForRestaurant(ctx, f.sess.ID, "r1")
	require.NoError(t, err)
	assert.Len(t, swipes, 2)

	ids, err := f.ledger.ListForUser(ctx, f.sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestRecordSwipe_ReturnsCreatedMatch(t *testing.T) {
	f := newFixture(t, true)
	f.detector.match = &domain.Match{ID: "m1", RestaurantID: "r1"}
	f.detector.created = true

	res, err := f.svc.RecordSwipe(context.Background(), f.sess.ID, "bob", "r1", true)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	assert.Equal(t, "m1", res.Match.ID)
}

func TestRecordSwipe_DetectorFailureDoesNotFailSwipe(t *testing.T) {
	f := newFixture(t, true)
	f.detector.err = errors.New("postgres down")

	res, err := f.svc.RecordSwipe(context.Background(), f.sess.ID, "bob", "r1", true)
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	assert.Len(t, f.pub.msgs, 1, "matcher still gets the event")
}

func TestRecordSwipe_RateLimited(t *testing.T) {
	f := newFixture(t, true)
	f.svc.limiter = denyLimiter{}
	f.svc.rule = ratelimit.SwipeRule(1)

	_, err := f.svc.RecordSwipe(context.Background(), f.sess.ID, "alice", "r1", true)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestRecordSwipe_CompletesWhenEveryoneDecidedEverything(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	steps := []struct {
		user, restaurant string
	}{
		{"alice", "r1"}, {"alice", "r2"}, {"bob", "r1"},
	}
	for _, s := range steps {
		_, err := f.svc.RecordSwipe(ctx, f.sess.ID, s.user, s.restaurant, false)
		require.NoError(t, err)
	}

	sess, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sess.Status)

	_, err = f.svc.RecordSwipe(ctx, f.sess.ID, "bob", "r2", false)
	require.NoError(t, err)

	sess, err = f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, sess.Status)

	// Completed sessions still accept (duplicate) swipes.
	_, err = f.svc.RecordSwipe(ctx, f.sess.ID, "bob", "r2", false)
	assert.NoError(t, err)
}

func TestRecordSwipe_WaitingSessionNeverCompletes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for _, r := range []string{"r1", "r2"} {
		_, err := f.svc.RecordSwipe(ctx, f.sess.ID, "alice", r, true)
		require.NoError(t, err)
	}

	sess, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, sess.Status)
}
