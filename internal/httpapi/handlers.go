package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/domain"
)

type handler struct {
	deps    Deps
	logger  *zap.Logger
	baseURL string
}

type sessionResponse struct {
	*domain.Session
	InviteURL string `json:"inviteUrl,omitempty"`
}

type createSessionRequest struct {
	Category   string `json:"category"`
	PriceRange string `json:"priceRange"`
}

type joinSessionRequest struct {
	SessionCode string `json:"sessionCode" binding:"required"`
}

type recordSwipeRequest struct {
	RestaurantID string `json:"restaurantId" binding:"required"`
	Liked        *bool  `json:"liked" binding:"required"`
}

// InviteURL builds the shareable join link for code.
func InviteURL(baseURL, code string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/join?sessionCode=" + url.QueryEscape(code)
}

func (h *handler) createSession(c *gin.Context) {
	var req createSessionRequest
	// An empty body means no filters.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	sess, err := h.deps.Sessions.CreateSession(c.Request.Context(), auth.UserID(c), domain.Filters{
		Category:   req.Category,
		PriceRange: req.PriceRange,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{Session: sess, InviteURL: InviteURL(h.baseURL, sess.Code)})
}

func (h *handler) joinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.NewValidationError("sessionCode", "is required"))
		return
	}

	sess, err := h.deps.Sessions.JoinSession(c.Request.Context(), req.SessionCode, auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: sess, InviteURL: InviteURL(h.baseURL, sess.Code)})
}

func (h *handler) getSession(c *gin.Context) {
	sess, err := h.deps.Sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !sess.IsParticipant(auth.UserID(c)) {
		h.writeError(c, fmt.Errorf("httpapi: session %s: %w", sess.ID, domain.ErrForbidden))
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: sess})
}

func (h *handler) recordSwipe(c *gin.Context) {
	var req recordSwipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.NewValidationError("body", "restaurantId and liked are required"))
		return
	}

	res, err := h.deps.Swipes.RecordSwipe(c.Request.Context(), c.Param("id"), auth.UserID(c), req.RestaurantID, *req.Liked)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handler) listSwipes(c *gin.Context) {
	ids, err := h.deps.Swipes.ListSwipesForUser(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restaurantIds": ids})
}

func (h *handler) listMatches(c *gin.Context) {
	matches, err := h.deps.Matches.ListMatchesForSession(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *handler) listUserMatches(c *gin.Context) {
	matches, err := h.deps.Matches.ListMatchesForUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *handler) getRestaurant(c *gin.Context) {
	r, err := h.deps.Restaurants.GetRestaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
