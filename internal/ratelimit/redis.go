package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// Redis is a fixed-window limiter whose counters live in Redis, so every
// replica shares one budget per identifier.
type Redis struct {
	client redis.Cmdable
}

// NewRedis returns a Redis-backed limiter.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Check implements Limiter.Check.
func (r *Redis) Check(ctx context.Context, identifier string, rule Rule) (Decision, error) {
	k := redisKeyPrefix + key(identifier, rule)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to increment window")
	}

	if count == 1 {
		if err := r.client.PExpire(ctx, k, rule.Window).Err(); err != nil {
			return Decision{}, errors.Wrap(err, "failed to set window expiry")
		}
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to read window ttl")
	}
	if ttl < 0 {
		// The key lost its expiry (a crash between INCR and PEXPIRE).
		if err := r.client.PExpire(ctx, k, rule.Window).Err(); err != nil {
			return Decision{}, errors.Wrap(err, "failed to set window expiry")
		}
		ttl = rule.Window
	}

	if count > int64(rule.Max) {
		return Decision{RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Max - int(count)}, nil
}

// Ping checks connectivity, used at startup to fall back to Local.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
