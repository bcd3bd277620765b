package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mediation_desk/pkg/logger"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitRepository counts hits in fixed windows. The window starts at
// the first hit for a key and the counter resets when it lapses.
type RateLimitRepository interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = rateLimitKeyPrefix + key

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err)
		return 0, err
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			r.log.Error("Failed to set rate limit window", "error", err, "key", key)
			return count, err
		}
	}

	return count, nil
}
