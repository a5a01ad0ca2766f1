package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis sorted sets. Each channel maps to one
// sorted set keyed by the channel name; extrema snapshots use plain string
// keys.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the client's
// lifecycle; one client is shared between the cache and queue adapters.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// AppendRanked adds the payload to the channel's sorted set and prunes stale
// entries in a single MULTI/EXEC transaction, so consumers reading the channel
// never observe the append without the prune or vice versa.
func (s *RedisStore) AppendRanked(ctx context.Context, channel string, score int64, payload []byte, pruneBelow int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, channel, redis.Z{Score: float64(score), Member: string(payload)})
	// "(" makes the cutoff exclusive: entries exactly at the cutoff survive.
	pipe.ZRemRangeByScore(ctx, channel, "-inf", "("+strconv.FormatInt(pruneBelow, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to channel %s: %w", channel, err)
	}
	return nil
}

// SetValue stores an extrema snapshot under a plain key with no expiry; the
// next snapshot for the same (interval, symbol) overwrites it.
func (s *RedisStore) SetValue(ctx context.Context, key string, payload []byte) error {
	if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
