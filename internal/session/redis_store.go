package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tastebuds/match-app/internal/domain"
)

const (
	// KeyPrefix is the Redis key prefix for session hashes.
	KeyPrefix = "msession:"
	// CodePrefix maps a share code to its session id.
	CodePrefix = "msession:code:"
	// LiveKey is a sorted set of session ids scored by expiry (unix seconds).
	LiveKey = "msession:live"

	// DefaultTTL is how long a session survives without writes.
	DefaultTTL = 24 * time.Hour
)

// CAS script results.
const (
	casApplied  = 1
	casMismatch = 0
	casMissing  = -1
)

// RedisStore keeps sessions in Redis hashes.
type RedisStore struct {
	rdb          *redis.Client
	ttl          time.Duration
	participants *redis.Script
	status       *redis.Script
	rescore      *redis.Script
}

// NewRedisStore creates a session store with the given sliding TTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		rdb:          rdb,
		ttl:          ttl,
		participants: redis.NewScript(casParticipantsLua),
		status:       redis.NewScript(casStatusLua),
		rescore:      redis.NewScript(rescoreLua),
	}
}

func (s *RedisStore) ReserveCode(ctx context.Context, code, sessionID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, CodePrefix+code, sessionID, s.ttl).Result()
	if err != nil {
		return false, storeErr("reserve code", err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseCode(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, CodePrefix+code).Err(); err != nil {
		return storeErr("release code", err)
	}
	return nil
}

// Create writes a new session hash and registers it in the live set.
func (s *RedisStore) Create(ctx context.Context, sess *domain.Session) error {
	fields, err := encodeSession(sess)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}

	key := KeyPrefix + sess.ID
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttl)
		pipe.ZAdd(ctx, LiveKey, redis.Z{Score: s.expiry(), Member: sess.ID})
		return nil
	})
	if err != nil {
		return storeErr("create", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	result, err := s.rdb.HGetAll(ctx, KeyPrefix+id).Result()
	if err != nil {
		return nil, storeErr("get", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	return decodeSession(result)
}

func (s *RedisStore) GetByCode(ctx context.Context, code string) (*domain.Session, error) {
	id, err := s.rdb.Get(ctx, CodePrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: code %s: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get by code", err)
	}
	return s.Get(ctx, id)
}

// UpdateParticipants replaces the participant list and status only if the
// stored list still equals expected.
func (s *RedisStore) UpdateParticipants(ctx context.Context, id string, expected, participants []string, status domain.SessionStatus, at time.Time) error {
	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		return fmt.Errorf("session: marshal participants: %w", err)
	}
	nextJSON, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("session: marshal participants: %w", err)
	}

	code, err := s.rdb.HGet(ctx, KeyPrefix+id, "code").Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("update participants", err)
	}

	res, err := s.participants.Run(ctx, s.rdb,
		[]string{KeyPrefix + id, CodePrefix + code, LiveKey},
		string(expectedJSON), string(nextJSON), string(status),
		at.UnixMilli(), int64(s.ttl/time.Second), int64(s.expiry()), id,
	).Int()
	if err != nil {
		return storeErr("update participants", err)
	}
	return casResult(id, res)
}

// UpdateStatus moves the session from one status to another.
func (s *RedisStore) UpdateStatus(ctx context.Context, id string, from, to domain.SessionStatus, at time.Time) error {
	res, err := s.status.Run(ctx, s.rdb, []string{KeyPrefix + id},
		string(from), string(to), at.UnixMilli(),
	).Int()
	if err != nil {
		return storeErr("update status", err)
	}
	return casResult(id, res)
}

func (s *RedisStore) Touch(ctx context.Context, sess *domain.Session) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, KeyPrefix+sess.ID, s.ttl)
		pipe.Expire(ctx, CodePrefix+sess.Code, s.ttl)
		pipe.ZAdd(ctx, LiveKey, redis.Z{Score: s.expiry(), Member: sess.ID})
		return nil
	})
	if err != nil {
		return storeErr("touch", err)
	}
	return nil
}

// Rescore realigns a session's live-set score with the remaining lifetime of
// its record without extending it. It reports false when the record is gone.
func (s *RedisStore) Rescore(ctx context.Context, id string) (bool, error) {
	res, err := s.rescore.Run(ctx, s.rdb, []string{KeyPrefix + id, LiveKey}, id).Int()
	if err != nil {
		return false, storeErr("rescore", err)
	}
	return res != casMissing, nil
}

// ExpiredIDs returns up to limit session ids whose live-set expiry is
// before t.
func (s *RedisStore) ExpiredIDs(ctx context.Context, t time.Time, limit int64) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, LiveKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(t.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, storeErr("expired ids", err)
	}
	return ids, nil
}

// LiveIDs returns up to limit session ids that have not expired yet.
func (s *RedisStore) LiveIDs(ctx context.Context, t time.Time, limit int64) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, LiveKey, &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(t.Unix(), 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, storeErr("live ids", err)
	}
	return ids, nil
}

// Forget drops an expired session from the live set and removes its code
// mapping if that still points at it.
func (s *RedisStore) Forget(ctx context.Context, id, code string) error {
	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, LiveKey, id)
	if code != "" {
		pipe.Eval(ctx, releaseCodeLua, []string{CodePrefix + code}, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("forget", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) expiry() float64 {
	return float64(time.Now().Add(s.ttl).Unix())
}

func casResult(id string, res int) error {
	switch res {
	case casApplied:
		return nil
	case casMismatch:
		return fmt.Errorf("session: %s: %w", id, domain.ErrConflict)
	case casMissing:
		return fmt.Errorf("session: %s: %w", id, domain.ErrNotFound)
	default:
		return fmt.Errorf("session: unexpected cas result %d", res)
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("session: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func encodeSession(s *domain.Session) (map[string]interface{}, error) {
	candidates, err := json.Marshal(s.CandidateIDs)
	if err != nil {
		return nil, err
	}
	participants, err := json.Marshal(s.ParticipantIDs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":           s.ID,
		"code":         s.Code,
		"category":     s.Filters.Category,
		"price_range":  s.Filters.PriceRange,
		"candidates":   string(candidates),
		"participants": string(participants),
		"status":       string(s.Status),
		"created_by":   s.CreatedBy,
		"created_at":   s.CreatedAt.UnixMilli(),
		"updated_at":   s.UpdatedAt.UnixMilli(),
	}, nil
}

func decodeSession(m map[string]string) (*domain.Session, error) {
	s := &domain.Session{
		ID:   m["id"],
		Code: m["code"],
		Filters: domain.Filters{
			Category:   m["category"],
			PriceRange: m["price_range"],
		},
		Status:    domain.SessionStatus(m["status"]),
		CreatedBy: m["created_by"],
	}
	if err := json.Unmarshal([]byte(m["candidates"]), &s.CandidateIDs); err != nil {
		return nil, fmt.Errorf("session: decode candidates: %w", err)
	}
	if err := json.Unmarshal([]byte(m["participants"]), &s.ParticipantIDs); err != nil {
		return nil, fmt.Errorf("session: decode participants: %w", err)
	}
	createdAt, _ := strconv.ParseInt(m["created_at"], 10, 64)
	updatedAt, _ := strconv.ParseInt(m["updated_at"], 10, 64)
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return s, nil
}
