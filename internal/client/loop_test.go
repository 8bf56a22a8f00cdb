package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/swipe"
)

var fastConfig = Config{JoinPollInterval: 10 * time.Millisecond, MatchPollInterval: 10 * time.Millisecond}

// runLoop runs l in the background and returns a stop function that cancels
// it and returns Run's error.
func runLoop(t *testing.T, l *Loop, sessionID string) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx, sessionID) }()

	var stopped bool
	var result error
	stop := func() error {
		if !stopped {
			cancel()
			select {
			case result = <-errCh:
			case <-time.After(2 * time.Second):
				result = fmt.Errorf("loop did not stop")
			}
			stopped = true
		}
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestLoop_TwoParticipantsSeeTheirMatchOnce(t *testing.T) {
	e := newEnv(t, "x", "y", "z")
	ctx := context.Background()

	alicePresenter := &recordingPresenter{}
	alice := NewLoop(e.as("alice"), likes("x", "z"), alicePresenter, fastConfig, nil)
	created, err := alice.Create(ctx, domain.Filters{})
	require.NoError(t, err)
	stopAlice := runLoop(t, alice, created.ID)

	require.Eventually(t, func() bool { return alicePresenter.snapshot().waiting == 1 }, time.Second, 5*time.Millisecond)

	bobPresenter := &recordingPresenter{}
	bob := NewLoop(e.as("bob"), likes("x", "y"), bobPresenter, fastConfig, nil)
	joined, err := bob.Join(ctx, "https://tastebuds.app/join?sessionCode="+created.Code)
	require.NoError(t, err)
	assert.Equal(t, created.ID, joined.ID)
	stopBob := runLoop(t, bob, joined.ID)

	for _, p := range []*recordingPresenter{alicePresenter, bobPresenter} {
		p := p
		require.Eventually(t, func() bool {
			s := p.snapshot()
			return s.noMore == 1 && len(s.matches) == 1
		}, 2*time.Second, 5*time.Millisecond)
	}

	// Further polls do not surface the match again.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stopAlice())
	require.NoError(t, stopBob())

	for name, p := range map[string]*recordingPresenter{"alice": alicePresenter, "bob": bobPresenter} {
		s := p.snapshot()
		assert.Equal(t, []string{"x"}, s.matches, name)
		assert.Equal(t, 1, s.joined, name)
		assert.Equal(t, 1, s.noMore, name)
		assert.Empty(t, s.failures, name)
	}
	assert.Zero(t, bobPresenter.snapshot().waiting, "bob joined a full session")

	sess, err := e.sessions.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, sess.Status, "every candidate decided by both")
}

func TestLoop_PresentsUndecidedInCandidateOrder(t *testing.T) {
	e := newEnv(t, "x", "y", "z", "w")
	ctx := context.Background()

	sess, err := e.sessions.CreateSession(ctx, "alice", domain.Filters{})
	require.NoError(t, err)
	_, err = e.sessions.JoinSession(ctx, sess.Code, "bob")
	require.NoError(t, err)
	_, err = e.swipes.RecordSwipe(ctx, sess.ID, "alice", "y", false)
	require.NoError(t, err)

	decider := likes()
	presenter := &recordingPresenter{}
	stop := runLoop(t, NewLoop(e.as("alice"), decider, presenter, fastConfig, nil), sess.ID)

	require.Eventually(t, func() bool { return presenter.snapshot().noMore == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"x", "z", "w"}, decider.shown())
}

// flakyAPI fails swipes on one restaurant.
type flakyAPI struct {
	*localAPI
	failOn string
}

func (f *flakyAPI) RecordSwipe(ctx context.Context, sessionID, restaurantID string, liked bool) (*swipe.Result, error) {
	if restaurantID == f.failOn {
		return nil, fmt.Errorf("api: %w", domain.ErrStoreUnavailable)
	}
	return f.localAPI.RecordSwipe(ctx, sessionID, restaurantID, liked)
}

func TestLoop_SwipeFailureAdvances(t *testing.T) {
	e := newEnv(t, "x", "y", "z")
	ctx := context.Background()

	sess, err := e.sessions.CreateSession(ctx, "alice", domain.Filters{})
	require.NoError(t, err)
	_, err = e.sessions.JoinSession(ctx, sess.Code, "bob")
	require.NoError(t, err)

	decider := likes("x", "y", "z")
	presenter := &recordingPresenter{}
	api := &flakyAPI{localAPI: e.as("alice"), failOn: "y"}
	stop := runLoop(t, NewLoop(api, decider, presenter, fastConfig, nil), sess.ID)

	require.Eventually(t, func() bool { return presenter.snapshot().noMore == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"x", "y", "z"}, decider.shown())
	assert.Equal(t, []string{"y"}, presenter.snapshot().failures)

	decided, err := e.swipes.ListSwipesForUser(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, decided)
}

func TestLoop_UnknownSessionAborts(t *testing.T) {
	e := newEnv(t, "x")
	l := NewLoop(e.as("alice"), likes(), &recordingPresenter{}, fastConfig, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.Run(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoop_WakeSkipsPollInterval(t *testing.T) {
	e := newEnv(t, "x")
	ctx := context.Background()

	sess, err := e.sessions.CreateSession(ctx, "alice", domain.Filters{})
	require.NoError(t, err)

	presenter := &recordingPresenter{}
	slow := Config{JoinPollInterval: time.Hour, MatchPollInterval: time.Hour}
	loop := NewLoop(e.as("alice"), likes(), presenter, slow, nil)
	runLoop(t, loop, sess.ID)

	require.Eventually(t, func() bool { return presenter.snapshot().waiting == 1 }, time.Second, 5*time.Millisecond)
	_, err = e.sessions.JoinSession(ctx, sess.Code, "bob")
	require.NoError(t, err)

	loop.Wake()
	require.Eventually(t, func() bool { return presenter.snapshot().joined == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoop_JoinRejectsBadInvite(t *testing.T) {
	l := NewLoop(newEnv(t, "x").as("bob"), likes(), &recordingPresenter{}, fastConfig, nil)
	_, err := l.Join(context.Background(), "https://tastebuds.app/join")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, Available([]string{"a", "b", "c"}, []string{"b", "zz"}))
	assert.Empty(t, Available([]string{"a"}, []string{"a"}))
	assert.Equal(t, []string{"a", "b"}, Available([]string{"a", "b"}, nil))
}
