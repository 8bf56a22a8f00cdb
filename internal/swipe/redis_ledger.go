package swipe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tastebuds/match-app/internal/domain"
)

const (
	// Redis key patterns, all scoped by session id.
	keyPrefix        = "swipes:"      // + <session_id>
	logSuffix        = ":log"         // list of JSON swipes
	userSuffix       = ":user:"       // + <user_id> -> set of restaurant ids
	restaurantSuffix = ":restaurant:" // + <restaurant_id> -> list of JSON swipes
	indexSuffix      = ":keys"        // set of every ledger key of the session
)

// appendLua writes one swipe and gives every ledger key of the session the
// same fresh lifetime, so no part of the ledger outlives or predeceases the
// rest.
//
//	KEYS: log, user set, restaurant list, key index
//	ARGV: swipe JSON, restaurant id, ttl seconds
const appendLua = `
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[4], KEYS[1], KEYS[2], KEYS[3])
local keys = redis.call('SMEMBERS', KEYS[4])
for _, k in ipairs(keys) do
  redis.call('EXPIRE', k, ARGV[3])
end
redis.call('EXPIRE', KEYS[4], ARGV[3])
return #keys
`

func logKey(sessionID string) string { return keyPrefix + sessionID + logSuffix }

func userKey(sessionID, userID string) string {
	return keyPrefix + sessionID + userSuffix + userID
}

func restaurantKey(sessionID, restaurantID string) string {
	return keyPrefix + sessionID + restaurantSuffix + restaurantID
}

func indexKey(sessionID string) string { return keyPrefix + sessionID + indexSuffix }

// RedisLedger keeps the swipe ledger in Redis with the same lifetime as the
// owning session.
type RedisLedger struct {
	rdb          *redis.Client
	ttl          time.Duration
	appendScript *redis.Script
}

// NewRedisLedger creates a ledger whose keys all expire ttl after the
// session's last swipe.
func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl, appendScript: redis.NewScript(appendLua)}
}

// Append atomically writes the swipe to the session log, the user's decided
// set and the restaurant's swipe list, and refreshes the lifetime of every
// ledger key of the session.
func (l *RedisLedger) Append(ctx context.Context, s *domain.Swipe) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("swipe: marshal: %w", err)
	}

	keys := []string{
		logKey(s.SessionID),
		userKey(s.SessionID, s.UserID),
		restaurantKey(s.SessionID, s.RestaurantID),
		indexKey(s.SessionID),
	}
	ttl := int64(l.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	if err := l.appendScript.Run(ctx, l.rdb, keys, data, s.RestaurantID, ttl).Err(); err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (l *RedisLedger) ListForUser(ctx context.Context, sessionID, userID string) ([]string, error) {
	ids, err := l.rdb.SMembers(ctx, userKey(sessionID, userID)).Result()
	if err != nil {
		return nil, storeErr("list for user", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *RedisLedger) ListForRestaurant(ctx context.Context, sessionID, restaurantID string) ([]domain.Swipe, error) {
	raw, err := l.rdb.LRange(ctx, restaurantKey(sessionID, restaurantID), 0, -1).Result()
	if err != nil {
		return nil, storeErr("list for restaurant", err)
	}
	return decodeSwipes(raw)
}

func (l *RedisLedger) DecidedCount(ctx context.Context, sessionID, userID string) (int64, error) {
	n, err := l.rdb.SCard(ctx, userKey(sessionID, userID)).Result()
	if err != nil {
		return 0, storeErr("decided count", err)
	}
	return n, nil
}

func decodeSwipes(raw []string) ([]domain.Swipe, error) {
	swipes := make([]domain.Swipe, 0, len(raw))
	for _, item := range raw {
		var s domain.Swipe
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, fmt.Errorf("swipe: decode: %w", err)
		}
		swipes = append(swipes, s)
	}
	return swipes, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("swipe: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
