// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. Each user action (session creation, join, swipe) is throttled
// per user id.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/metrics"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Name   string        // metric label
	Key    string        // Redis key prefix, e.g. "rl:swipe:"
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// SwipeRule throttles swipes per user.
func SwipeRule(perMinute int) Rule {
	return Rule{Name: "swipe", Key: "rl:swipe:", Limit: perMinute, Window: time.Minute}
}

// CreateSessionRule throttles session creation per user.
func CreateSessionRule(perMinute int) Rule {
	return Rule{Name: "create_session", Key: "rl:create:", Limit: perMinute, Window: time.Minute}
}

// JoinRule throttles join attempts per user, which also bounds code guessing.
func JoinRule(perMinute int) Rule {
	return Rule{Name: "join", Key: "rl:join:", Limit: perMinute, Window: time.Minute}
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client redis.Cmdable, logger *zap.Logger) *Limiter {
	return &Limiter{client: client, logger: logger.Named("ratelimit")}
}

// Allow increments the identifier's counter for rule and reports whether it
// is still within the limit. Redis errors fail open: the request is allowed
// and the error returned for logging.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	// The first increment opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn("EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		metrics.RateLimited.WithLabelValues(rule.Name).Inc()
		return false, nil
	}
	return true, nil
}

// Remaining returns how many requests identifier has left in the current
// window. Missing keys and Redis errors report the full limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		l.logger.Warn("GET failed, failing open", zap.String("key", key), zap.Error(err))
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}
