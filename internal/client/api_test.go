package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/httpapi"
)

type oneRestaurant struct{}

func (oneRestaurant) GetRestaurant(_ context.Context, id string) (*domain.Restaurant, error) {
	if id != "x" {
		return nil, fmt.Errorf("catalog: %s: %w", id, domain.ErrNotFound)
	}
	return &domain.Restaurant{ID: "x", Name: "Bella Napoli", Category: "Italian", PriceRange: "$$"}, nil
}

func newAPIServer(t *testing.T) (*httptest.Server, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := newEnv(t, "x", "y")
	tokens := auth.NewManager("0123456789abcdef0123456789abcdef", "tastebuds", time.Hour)

	router := httpapi.NewRouter(httpapi.Deps{
		Sessions:    e.sessions,
		Swipes:      e.swipes,
		Matches:     e.detector,
		Restaurants: oneRestaurant{},
		Verifier:    tokens,
	}, httpapi.Options{PublicBaseURL: "https://tastebuds.app"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func clientFor(t *testing.T, srv *httptest.Server, tokens *auth.Manager, user string) *HTTPClient {
	t.Helper()
	token, err := tokens.Issue(user)
	require.NoError(t, err)
	return NewHTTPClient(srv.URL, token, 5*time.Second)
}

func TestHTTPClient_SessionFlow(t *testing.T) {
	srv, tokens := newAPIServer(t)
	ctx := context.Background()
	alice := clientFor(t, srv, tokens, "alice")
	bob := clientFor(t, srv, tokens, "bob")
	carol := clientFor(t, srv, tokens, "carol")

	created, err := alice.CreateSession(ctx, domain.Filters{Category: "Italian"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, created.Status)
	assert.Equal(t, []string{"x", "y"}, created.CandidateIDs)
	assert.Equal(t, "https://tastebuds.app/join?sessionCode="+created.Code, created.InviteURL)

	code, err := ParseInvite(created.InviteURL)
	require.NoError(t, err)
	joined, err := bob.JoinSession(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, joined.Status)
	assert.Equal(t, []string{"alice", "bob"}, joined.ParticipantIDs)

	_, err = carol.JoinSession(ctx, code)
	assert.ErrorIs(t, err, domain.ErrSessionFull)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	res, err := alice.RecordSwipe(ctx, created.ID, "x", true)
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	res, err = bob.RecordSwipe(ctx, created.ID, "x", true)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	assert.Equal(t, "x", res.Match.RestaurantID)

	_, err = bob.RecordSwipe(ctx, created.ID, "nope", true)
	assert.ErrorIs(t, err, domain.ErrInvalidCandidate)
	_, err = carol.RecordSwipe(ctx, created.ID, "x", true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	decided, err := alice.ListSwipes(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, decided)

	matches, err := alice.ListMatches(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Match.ID, matches[0].ID)

	mine, err := bob.ListUserMatches(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	sess, err := alice.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Code, sess.Code)
	_, err = carol.GetSession(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	r, err := alice.GetRestaurant(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Bella Napoli", r.Name)
	_, err = alice.GetRestaurant(ctx, "zz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHTTPClient_Errors(t *testing.T) {
	srv, tokens := newAPIServer(t)
	ctx := context.Background()

	_, err := NewHTTPClient(srv.URL, "forged", time.Second).GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.True(t, IsTerminal(err))

	_, err = clientFor(t, srv, tokens, "alice").JoinSession(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = NewHTTPClient("http://127.0.0.1:1", "x", time.Second).GetSession(ctx, "s1")
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestAPIError_UnknownCode(t *testing.T) {
	err := &APIError{Status: 418, Code: "teapot", Message: "short and stout"}
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "teapot")
}
