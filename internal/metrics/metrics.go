// Package metrics provides Prometheus instrumentation for the matching
// service: session and swipe throughput, match creation, push connections and
// HTTP request accounting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsCreated counts matching sessions created.
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tastebuds_sessions_created_total",
		Help: "Total number of matching sessions created",
	})

	// SessionJoins counts join attempts labeled by outcome:
	// "joined", "rejoined", "full", "not_found".
	SessionJoins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebuds_session_joins_total",
		Help: "Total number of session join attempts by outcome",
	}, []string{"outcome"})

	// JoinCASRetries counts participant writes rejected by compare-and-set.
	JoinCASRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tastebuds_join_cas_retries_total",
		Help: "Participant updates rejected by compare-and-set and retried",
	})

	// SwipesTotal counts recorded swipes labeled by decision: "like", "dislike".
	SwipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebuds_swipes_total",
		Help: "Total number of swipes recorded",
	}, []string{"decision"})

	// MatchesCreated counts match records inserted.
	MatchesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tastebuds_matches_created_total",
		Help: "Total number of matches created",
	})

	// DetectorRuns records detector latency labeled by trigger: "sync", "async".
	DetectorRuns = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tastebuds_detector_duration_seconds",
		Help:    "Match detector run latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"trigger"})

	// SessionsCompleted counts sessions moved to completed.
	SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tastebuds_sessions_completed_total",
		Help: "Total number of sessions in which both participants decided every candidate",
	})

	// PushConnections tracks open WebSocket push connections.
	PushConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tastebuds_push_connections",
		Help: "Current number of open WebSocket push connections",
	})

	// PushMessages counts push frames labeled by direction: "in", "out".
	PushMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebuds_push_messages_total",
		Help: "Total number of WebSocket push frames",
	}, []string{"direction"})

	// RateLimited counts requests rejected by a rate limit rule.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebuds_rate_limited_total",
		Help: "Requests rejected by rate limiting",
	}, []string{"rule"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebuds_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tastebuds_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		SessionsCreated,
		SessionJoins,
		JoinCASRetries,
		SwipesTotal,
		MatchesCreated,
		DetectorRuns,
		SessionsCompleted,
		PushConnections,
		PushMessages,
		RateLimited,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
