package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/transfa/market-service/internal/domain"
)

const defaultRateLimitPrefix = "market:rate_limit"

// attemptWindowScript opens a window on the first attempt and counts every
// attempt in it. INCR keeps the expiry set by SET NX, so the window is fixed.
var attemptWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local attempts = redis.call("INCR", KEYS[1])
return {attempts, redis.call("PTTL", KEYS[1])}
`)

// RedisRateLimiter admits at most limit attempts per subject in each window.
// Counters live in Redis so every replica shares them.
type RedisRateLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter builds a limiter keyed under prefix. Windows shorter than
// a second are widened to one second.
func NewRedisRateLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisRateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow records one attempt for subject. Once the window holds more than limit
// attempts it returns a rate_limited *domain.Error whose RetryAfter is the time
// left in the window. A nil limiter, a missing client or a non-positive limit
// admits every attempt. Redis failures come back as plain errors.
func (r *RedisRateLimiter) Allow(ctx context.Context, subject string) error {
	if r == nil || r.client == nil || r.limit <= 0 {
		return nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}

	key := r.prefix + ":" + subject
	raw, err := attemptWindowScript.Run(ctx, r.client, []string{key}, r.window.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("count attempt for %s: %w", subject, err)
	}

	attempts, remaining, err := decodeAttemptWindow(raw, r.window)
	if err != nil {
		return err
	}
	if attempts <= int64(r.limit) {
		return nil
	}
	return &domain.Error{
		Kind:       domain.KindRateLimited,
		Code:       "too_many_attempts",
		Message:    "too many attempts, please try again later",
		RetryAfter: remaining,
	}
}

// decodeAttemptWindow reads the {attempts, pttl} reply. A key without an
// expiry reports the full window as remaining.
func decodeAttemptWindow(raw interface{}, window time.Duration) (int64, time.Duration, error) {
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, 0, fmt.Errorf("rate limiter: unexpected reply %#v", raw)
	}
	attempts, ok := reply[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limiter: attempt count is %T", reply[0])
	}
	ttlMs, ok := reply[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limiter: ttl is %T", reply[1])
	}

	remaining := time.Duration(ttlMs) * time.Millisecond
	if remaining <= 0 {
		remaining = window
	}
	return attempts, remaining, nil
}
