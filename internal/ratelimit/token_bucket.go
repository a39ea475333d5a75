// Package ratelimit is a redis-backed token bucket for webhook ingest.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The refill arithmetic runs inside redis so concurrent instances share one
// bucket without a read-modify-write race.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  local refill = (delta / 1000) * rate
  tokens = math.min(burst, tokens + refill)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tokens, ts}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow consumes one token from the bucket at key, refilling at rate tokens
// per second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (bool, error) {
	if t == nil || t.client == nil {
		return false, errors.New("rate limiter not configured")
	}
	if key == "" {
		return false, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return false, errors.New("rate limiter rate and burst must be positive")
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, int64(ttl/time.Millisecond),
	).Slice()
	if err != nil {
		return false, err
	}
	if len(res) < 1 {
		return false, errors.New("invalid rate limit script response")
	}
	return castToInt(res[0]) == 1, nil
}

// bucketTTL keeps idle buckets around long enough to refill twice over, then
// lets redis reclaim them.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
