// Package ratelimit implements Redis-counter rate limits for turn traffic.
// Counters are eventually consistent: a burst racing the INCR can slightly
// overshoot the limit, which is acceptable for abuse protection.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"courier.chat/relay/core/config"
)

// Limiter enforces a per-user turns-per-minute limit and a per-user-per-model
// daily quota. On Redis failure it fails open.
type Limiter struct {
	rdb    *redis.Client
	limits config.LimitsConfig
}

func New(rdb *redis.Client, limits config.LimitsConfig) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// AllowTurn increments the caller's minute window and reports whether the
// turn may proceed.
func (l *Limiter) AllowTurn(ctx context.Context, userID int64) bool {
	if l.limits.TurnsPerMinute <= 0 {
		return true
	}
	key := fmt.Sprintf("relay:rate:turns:%d:%s", userID, time.Now().UTC().Format("200601021504"))
	n, err := l.incrWithTTL(ctx, key, 2*time.Minute)
	if err != nil {
		slog.WarnContext(ctx, "rate limit counter unavailable, allowing turn", "error", err)
		return true
	}
	return n <= int64(l.limits.TurnsPerMinute)
}

// AllowModel increments the caller's daily counter for the given model and
// reports whether the quota still has room.
func (l *Limiter) AllowModel(ctx context.Context, userID int64, model string) bool {
	if l.limits.ModelQuotaPerDay <= 0 {
		return true
	}
	key := fmt.Sprintf("relay:rate:model:%d:%s:%s", userID, model, time.Now().UTC().Format("20060102"))
	n, err := l.incrWithTTL(ctx, key, 25*time.Hour)
	if err != nil {
		slog.WarnContext(ctx, "model quota counter unavailable, allowing turn", "error", err)
		return true
	}
	return n <= int64(l.limits.ModelQuotaPerDay)
}

func (l *Limiter) incrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
