package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter is a fixed-window counter shared by every instance pointing at
// the same Redis.
type RedisLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisClient opens a client for addr. It does not dial until first use.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

// NewRedisLimiter allows limit calls per key in each window.
func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if r.limit <= 0 {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit}, nil
	}
	result, err := allowScript.Run(ctx, r.client, []string{keyPrefix + key}, r.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	return Decision{
		Allowed:   current <= int64(r.limit),
		Limit:     r.limit,
		Remaining: max(r.limit-int(current), 0),
		ResetAt:   resetAt,
	}, nil
}
