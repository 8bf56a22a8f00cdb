// Package httpapi exposes the session, swipe and match operations over a
// JSON REST API built on gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/metrics"
	"github.com/tastebuds/match-app/internal/swipe"
)

// SessionService is the session lifecycle used by the API.
type SessionService interface {
	CreateSession(ctx context.Context, creatorID string, filters domain.Filters) (*domain.Session, error)
	JoinSession(ctx context.Context, code, userID string) (*domain.Session, error)
	GetSession(ctx context.Context, id string) (*domain.Session, error)
}

// SwipeService records and lists swipes.
type SwipeService interface {
	RecordSwipe(ctx context.Context, sessionID, userID, restaurantID string, liked bool) (*swipe.Result, error)
	ListSwipesForUser(ctx context.Context, sessionID, userID string) ([]string, error)
}

// MatchService lists matches.
type MatchService interface {
	ListMatchesForSession(ctx context.Context, sessionID, userID string) ([]domain.Match, error)
	ListMatchesForUser(ctx context.Context, userID string) ([]domain.Match, error)
}

// RestaurantReader resolves candidate ids to restaurant records.
type RestaurantReader interface {
	GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error)
}

// Deps are the collaborators of the API. Push may be nil to disable the
// WebSocket endpoint.
type Deps struct {
	Sessions    SessionService
	Swipes      SwipeService
	Matches     MatchService
	Restaurants RestaurantReader
	Verifier    auth.Verifier
	Push        http.HandlerFunc
	Logger      *zap.Logger
}

// Options tune the router.
type Options struct {
	PublicBaseURL string // prefix of invite links
	ServiceName   string // span name prefix for tracing
}

// NewRouter builds the gin engine serving the API.
func NewRouter(deps Deps, opts Options) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	if opts.ServiceName == "" {
		opts.ServiceName = "tastebuds-api"
	}

	h := &handler{deps: deps, logger: logger, baseURL: opts.PublicBaseURL}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))
	r.Use(metrics.HTTPMiddleware())
	r.Use(requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Push != nil {
		r.GET("/ws", gin.WrapF(deps.Push))
	}

	api := r.Group("/api/v1")
	api.Use(auth.Middleware(deps.Verifier, h.writeError))
	{
		api.POST("/sessions", h.createSession)
		api.POST("/sessions/join", h.joinSession)
		api.GET("/sessions/:id", h.getSession)
		api.POST("/sessions/:id/swipes", h.recordSwipe)
		api.GET("/sessions/:id/swipes", h.listSwipes)
		api.GET("/sessions/:id/matches", h.listMatches)
		api.GET("/me/matches", h.listUserMatches)
		api.GET("/restaurants/:id", h.getRestaurant)
	}

	r.NoRoute(func(c *gin.Context) {
		h.writeError(c, domain.ErrNotFound)
	})
	return r
}
