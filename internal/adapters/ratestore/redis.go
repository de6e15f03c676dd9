// Package ratestore provides a Redis-backed bucket store so several
// processes can share one tenant budget.
package ratestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/playstack/internal/domain/ratelimit"
	"github.com/redis/go-redis/v9"
)

// Hash fields of a bucket.
const (
	fieldTokens  = "tokens"
	fieldResetAt = "reset_at_ms"
)

// Defaults.
const (
	DefaultPrefix     = "playstack:ratelimit"
	defaultMaxRetries = 10
	defaultExpiryPad  = time.Second
)

// ErrContention is returned when optimistic retries are exhausted.
var ErrContention = errors.New("rate limit bucket contention")

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithPrefix sets the key prefix; keys are "{prefix}:{key}".
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds WATCH retries per update.
func WithMaxRetries(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// RedisStore implements ratelimit.Store on a Redis hash per key, updated
// inside WATCH/MULTI so concurrent processes never double-spend a token.
type RedisStore struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: DefaultPrefix, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the bucket for key.
func (s *RedisStore) Key(key string) string {
	return s.prefix + ":" + key
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Update implements ratelimit.Store.
func (s *RedisStore) Update(ctx context.Context, key string, fn ratelimit.UpdateFunc) (ratelimit.Bucket, error) {
	k := s.Key(key)
	var out ratelimit.Bucket

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, k, fieldTokens, fieldResetAt).Result()
		if err != nil {
			return err
		}
		cur, exists, err := decodeBucket(vals)
		if err != nil {
			return err
		}
		next := fn(cur, exists)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldTokens, next.Tokens, fieldResetAt, next.ResetAt.UnixMilli())
			pipe.PExpireAt(ctx, k, next.ResetAt.Add(defaultExpiryPad))
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return ratelimit.Bucket{}, fmt.Errorf("update %s: %w", k, err)
	}
	return ratelimit.Bucket{}, fmt.Errorf("update %s: %w", k, ErrContention)
}

// decodeBucket reads HMGET output. A missing field means no bucket.
func decodeBucket(vals []interface{}) (ratelimit.Bucket, bool, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return ratelimit.Bucket{}, false, nil
	}
	tokens, err := toInt64(vals[0])
	if err != nil {
		return ratelimit.Bucket{}, false, fmt.Errorf("decode %s: %w", fieldTokens, err)
	}
	resetMs, err := toInt64(vals[1])
	if err != nil {
		return ratelimit.Bucket{}, false, fmt.Errorf("decode %s: %w", fieldResetAt, err)
	}
	return ratelimit.Bucket{Tokens: int(tokens), ResetAt: time.UnixMilli(resetMs)}, true, nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
