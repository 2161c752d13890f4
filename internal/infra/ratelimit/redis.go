package ratelimit

import (
	"context"
	"errors"
	"time"

	"memochain/internal/domain"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "memochain:ratelimit:"

// RedisLimiter shares fixed-window counters across replicas.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiter{client: client, now: now}, nil
}

// Ping checks connectivity so callers can fall back to memory at startup.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	periodMillis := period.Milliseconds()
	if periodMillis <= 0 {
		periodMillis = 1000
	}
	raw, err := allowScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, periodMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	current, ttlMillis, err := parseAllowReply(raw)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func parseAllowReply(raw any) (int64, int64, error) {
	values, ok := raw.([]any)
	if !ok || len(values) < 2 {
		return 0, 0, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, errors.New("invalid redis counter response")
	}
	ttl, _ := values[1].(int64)
	return current, ttl, nil
}
