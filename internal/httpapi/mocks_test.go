package httpapi

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/swipe"
)

type sessionServiceMock struct {
	mock.Mock
}

func (m *sessionServiceMock) CreateSession(ctx context.Context, creatorID string, filters domain.Filters) (*domain.Session, error) {
	args := m.Called(ctx, creatorID, filters)
	sess, _ := args.Get(0).(*domain.Session)
	return sess, args.Error(1)
}

func (m *sessionServiceMock) JoinSession(ctx context.Context, code, userID string) (*domain.Session, error) {
	args := m.Called(ctx, code, userID)
	sess, _ := args.Get(0).(*domain.Session)
	return sess, args.Error(1)
}

func (m *sessionServiceMock) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	sess, _ := args.Get(0).(*domain.Session)
	return sess, args.Error(1)
}

type swipeServiceMock struct {
	mock.Mock
}

func (m *swipeServiceMock) RecordSwipe(ctx context.Context, sessionID, userID, restaurantID string, liked bool) (*swipe.Result, error) {
	args := m.Called(ctx, sessionID, userID, restaurantID, liked)
	res, _ := args.Get(0).(*swipe.Result)
	return res, args.Error(1)
}

func (m *swipeServiceMock) ListSwipesForUser(ctx context.Context, sessionID, userID string) ([]string, error) {
	args := m.Called(ctx, sessionID, userID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type matchServiceMock struct {
	mock.Mock
}

func (m *matchServiceMock) ListMatchesForSession(ctx context.Context, sessionID, userID string) ([]domain.Match, error) {
	args := m.Called(ctx, sessionID, userID)
	ms, _ := args.Get(0).([]domain.Match)
	return ms, args.Error(1)
}

func (m *matchServiceMock) ListMatchesForUser(ctx context.Context, userID string) ([]domain.Match, error) {
	args := m.Called(ctx, userID)
	ms, _ := args.Get(0).([]domain.Match)
	return ms, args.Error(1)
}

type restaurantReaderMock struct {
	mock.Mock
}

func (m *restaurantReaderMock) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*domain.Restaurant)
	return r, args.Error(1)
}

// staticVerifier accepts "tok-<user>" tokens.
type staticVerifier struct{}

func (staticVerifier) Verify(token string) (string, error) {
	if len(token) > 4 && token[:4] == "tok-" {
		return token[4:], nil
	}
	return "", domain.ErrUnauthenticated
}
