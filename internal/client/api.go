// Package client implements the participant side of a matching session: an
// HTTP client for the API and the loop that drives the swipe UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/swipe"
)

// SessionView is a session as returned by create and join.
type SessionView struct {
	domain.Session
	InviteURL string `json:"inviteUrl,omitempty"`
}

// APIError is a non-2xx API response. It unwraps to the domain sentinel
// matching its code so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return domain.ErrNotFound
	case "session_full":
		return domain.ErrSessionFull
	case "forbidden":
		return domain.ErrForbidden
	case "invalid_candidate":
		return domain.ErrInvalidCandidate
	case "unauthenticated":
		return domain.ErrUnauthenticated
	case "validation_error":
		return domain.ErrValidation
	case "rate_limited":
		return domain.ErrRateLimited
	case "catalog_unavailable":
		return domain.ErrCatalogUnavailable
	case "store_unavailable":
		return domain.ErrStoreUnavailable
	default:
		return nil
	}
}

// HTTPClient talks to the REST API on behalf of one user.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient creates an API client. token is the user's bearer token.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateSession creates a session owned by the caller.
func (c *HTTPClient) CreateSession(ctx context.Context, filters domain.Filters) (*SessionView, error) {
	var out SessionView
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", filters, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinSession joins the session identified by its share code.
func (c *HTTPClient) JoinSession(ctx context.Context, code string) (*SessionView, error) {
	var out SessionView
	body := map[string]string{"sessionCode": code}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/join", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession reads a session.
func (c *HTTPClient) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var out domain.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordSwipe records the caller's decision on restaurantID.
func (c *HTTPClient) RecordSwipe(ctx context.Context, sessionID, restaurantID string, liked bool) (*swipe.Result, error) {
	var out swipe.Result
	body := map[string]any{"restaurantId": restaurantID, "liked": liked}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/swipes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSwipes returns the restaurant ids the caller already decided.
func (c *HTTPClient) ListSwipes(ctx context.Context, sessionID string) ([]string, error) {
	var out struct {
		RestaurantIDs []string `json:"restaurantIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/swipes", nil, &out); err != nil {
		return nil, err
	}
	return out.RestaurantIDs, nil
}

// ListMatches returns the session's matches, newest first.
func (c *HTTPClient) ListMatches(ctx context.Context, sessionID string) ([]domain.Match, error) {
	var out struct {
		Matches []domain.Match `json:"matches"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/matches", nil, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// ListUserMatches returns every match of the caller, newest first.
func (c *HTTPClient) ListUserMatches(ctx context.Context) ([]domain.Match, error) {
	var out struct {
		Matches []domain.Match `json:"matches"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/me/matches", nil, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// GetRestaurant reads a catalog record.
func (c *HTTPClient) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	var out domain.Restaurant
	if err := c.do(ctx, http.MethodGet, "/api/v1/restaurants/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		return apiErr
	}
	apiErr.Code = "http_" + http.StatusText(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// IsTerminal reports whether err should abort the loop rather than be
// retried or skipped.
func IsTerminal(err error) bool {
	return errors.Is(err, domain.ErrUnauthenticated) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrNotFound)
}
