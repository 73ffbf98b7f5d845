package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window rate limiter on a Redis sorted set per key.
// Every request becomes a member scored by its arrival time; members older
// than the window are trimmed before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records one request under key and reports whether the window still
// has room. A nil client or a non-positive window/max disables limiting.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	reset = now.Add(window)
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, reset, nil
	}

	zkey := l.Prefix + key
	oldest := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", oldest)
	pipe.ZAdd(ctx, zkey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	count := pipe.ZCard(ctx, zkey)
	pipe.Expire(ctx, zkey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	seen := int(count.Val())
	remaining = max - seen
	if remaining < 0 {
		remaining = 0
	}
	return seen <= max, remaining, reset, nil
}
