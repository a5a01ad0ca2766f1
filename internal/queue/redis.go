package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// promoteInterval is how often delayed messages are checked for
	// readiness.
	promoteInterval = 250 * time.Millisecond

	// promoteBatch caps how many delayed messages one promoter pass moves.
	promoteBatch = 512
)

// RedisQueue implements Queue on a Redis list per queue name, with a
// companion sorted set holding delayed messages scored by their ready time.
//
// Ready messages are delivered with BLPOP, which removes the message the
// moment it reaches a consumer; there is no acknowledgement and no redelivery.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue wraps an existing Redis client and starts the delayed-message
// promoter, which runs until the context is cancelled. Running promoters in
// both the ingestor and the consumer is safe: promotion is ZRem-guarded so a
// message is moved to the ready list by exactly one of them.
func NewRedisQueue(ctx context.Context, rdb *redis.Client, queues ...string) *RedisQueue {
	q := &RedisQueue{rdb: rdb}
	go q.promoteLoop(ctx, queues)
	return q
}

func listKey(queue string) string    { return "queue:" + queue }
func delayedKey(queue string) string { return "queue:" + queue + ":delayed" }

// Enqueue routes the payload to the ready list or, when delayed, to the
// delayed set with a ready-time score.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte, priority int, delay time.Duration) error {
	if delay > 0 {
		readyAt := time.Now().Add(delay).UnixMilli()
		member := redis.Z{Score: float64(readyAt), Member: string(payload)}
		if err := q.rdb.ZAdd(ctx, delayedKey(queue), member).Err(); err != nil {
			return fmt.Errorf("enqueue delayed to %s: %w", queue, err)
		}
		return nil
	}

	// Priority messages jump the line; everything else appends.
	var err error
	if priority > 0 {
		err = q.rdb.LPush(ctx, listKey(queue), payload).Err()
	} else {
		err = q.rdb.RPush(ctx, listKey(queue), payload).Err()
	}
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", queue, err)
	}
	return nil
}

// Dequeue blocks on the ready list until a message arrives or the context is
// cancelled. BLPOP removes the message on delivery.
func (q *RedisQueue) Dequeue(ctx context.Context, queue string) ([]byte, error) {
	for {
		res, err := q.rdb.BLPop(ctx, time.Second, listKey(queue)).Result()
		if err == redis.Nil {
			// Timed out with an empty list; poll again unless cancelled.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
		}
		// BLPOP returns [key, value].
		return []byte(res[1]), nil
	}
}

// promoteLoop periodically moves delayed messages whose ready time has passed
// onto the ready list.
func (q *RedisQueue) promoteLoop(ctx context.Context, queues []string) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range queues {
				if err := q.promote(ctx, name); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("queue", name).Msg("delayed message promotion failed")
				}
			}
		}
	}
}

// promote moves up to promoteBatch ready messages for one queue. The ZRem
// result guards against a concurrent promoter moving the same member.
func (q *RedisQueue) promote(ctx context.Context, queue string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, delayedKey(queue), m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another promoter won the race
		}
		if err := q.rdb.RPush(ctx, listKey(queue), m).Err(); err != nil {
			return err
		}
	}
	return nil
}
