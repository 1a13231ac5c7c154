// Package attempts counts deliveries per job uuid in Redis so the retry
// budget survives redeliveries and worker restarts.
package attempts

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "docconv/internal/pkg/errors"
)

const keyPrefix = "docconv:attempts:"

type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a tracker whose counters expire ttl after the last increment.
func New(rdb *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tracker{rdb: rdb, ttl: ttl}
}

func key(uuid string) string {
	return keyPrefix + uuid
}

// Incr records one more attempt and returns the 1-based attempt number.
func (t *Tracker) Incr(ctx context.Context, uuid string) (int, error) {
	k := key(uuid)

	pipe := t.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "attempts.incr", "redis pipeline failed")
	}
	return int(incr.Val()), nil
}

// Reset forgets the counter once the job reached a terminal decision.
func (t *Tracker) Reset(ctx context.Context, uuid string) error {
	if err := t.rdb.Del(ctx, key(uuid)).Err(); err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "attempts.reset", "redis del failed")
	}
	return nil
}

func (t *Tracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}
