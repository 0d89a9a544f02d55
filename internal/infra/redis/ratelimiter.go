package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicore/backoffice/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter throttles provider calls per delivery channel across all
// processes sharing the Redis instance. Each channel can carry its own
// per-second budget; channels without one use the default.
type RedisRateLimiter struct {
	client        *goredis.Client
	defaultPerSec int64
	channelLimits map[string]int64
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	script        *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, defaultPerSec int, channelLimits map[string]int64) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		int64(defaultPerSec),
		channelLimits,
		time.Now,
		sleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	defaultPerSec int64,
	channelLimits map[string]int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if defaultPerSec <= 0 {
		defaultPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	normalized := make(map[string]int64, len(channelLimits))
	for channel, limit := range channelLimits {
		channel = strings.ToLower(strings.TrimSpace(channel))
		if channel == "" || limit <= 0 {
			continue
		}
		normalized[channel] = limit
	}

	return &RedisRateLimiter{
		client:        client,
		defaultPerSec: defaultPerSec,
		channelLimits: normalized,
		now:           nowFn,
		sleep:         sleepFn,
		script:        allowScript,
	}, nil
}

func (r *RedisRateLimiter) limitFor(channel string) int64 {
	if limit, ok := r.channelLimits[channel]; ok {
		return limit
	}
	return r.defaultPerSec
}

func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedChannel := strings.ToLower(strings.TrimSpace(channel))
	if normalizedChannel == "" {
		return false, fmt.Errorf("channel is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("dispatch:ratelimit:%s:%d", normalizedChannel, r.now().UTC().Unix())
	result, err := r.script.Run(ctx, r.client, []string{key}, r.limitFor(normalizedChannel), windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
