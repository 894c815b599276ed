package reserve

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements a classic token-bucket: refill by
// elapsed-time * rate since the last observed timestamp (capped at
// capacity), then admit if at least one token is available.
//
// KEYS[1] = tokens key
// KEYS[2] = timestamp key
// ARGV[1] = rate (tokens/sec)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, float)
//
// Returns {allowed (0/1), tokens_remaining}.
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('GET', KEYS[1]))
local last = tonumber(redis.call('GET', KEYS[2]))
if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now
end

local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('SET', KEYS[1], tostring(tokens), 'EX', 3600)
redis.call('SET', KEYS[2], tostring(now), 'EX', 3600)

return {allowed, tostring(tokens)}
`)

// OriginRateLimiter bounds how often a single pod may fetch from origin,
// keyed per pod so one hot pod doesn't starve its own semaphore budget.
type OriginRateLimiter struct {
	rdb      *redis.Client
	rate     float64 // tokens/sec
	capacity float64
}

// NewOriginRateLimiter builds a limiter sharing rdb's connection pool.
// rate and capacity are in requests/sec and burst size respectively.
func NewOriginRateLimiter(rdb *redis.Client, rate, capacity float64) *OriginRateLimiter {
	return &OriginRateLimiter{rdb: rdb, rate: rate, capacity: capacity}
}

// Allow reports whether podID may make one more origin fetch right now,
// consuming one token if so. The bucket is per pod, not per path.
func (l *OriginRateLimiter) Allow(ctx context.Context, podID string) (bool, error) {
	base := "ratelimit:origin:" + podID
	keys := []string{base + ":tokens", base + ":timestamp"}
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := tokenBucketScript.Run(ctx, l.rdb, keys, l.rate, l.capacity, now).Slice()
	if err != nil {
		return false, fmt.Errorf("origin rate limit check for pod %s: %w", podID, err)
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return false, fmt.Errorf("origin rate limit check for pod %s: unexpected script result", podID)
	}
	return allowed == 1, nil
}
