// SPDX-License-Identifier: MIT

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript implements an atomic token-bucket take: lazy refill from the
// elapsed time, capped at capacity, then consume one token if available.
// Returns {allowed, tokens} with tokens encoded as a string to keep float
// precision across the wire.
const takeScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = tokens + elapsed * refill
if tokens > capacity then
  tokens = capacity
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('EXPIRE', key, ttl)
return {allowed, tostring(tokens)}
`

// RedisStore keeps token buckets in Redis so that the rate budget is shared
// across daemon restarts (and replicas, should they appear). Failures
// propagate to the caller; the gate's fail-open policy decides what to do.
type RedisStore struct {
	client    *redis.Client
	script    *redis.Script
	capacity  int
	refillPS  float64
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed bucket store. Bucket keys expire
// after the retention window so idle clients cost nothing.
func NewRedisStore(client *redis.Client, requestsPerMinute int, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &RedisStore{
		client:    client,
		script:    redis.NewScript(takeScript),
		capacity:  requestsPerMinute,
		refillPS:  float64(requestsPerMinute) / 60.0,
		keyPrefix: "ratelimit:",
		ttl:       retention,
	}
}

// Take consumes one token from key's bucket.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time) (Decision, error) {
	nowSec := strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64)
	ttlSec := int(s.ttl.Seconds())
	if ttlSec < 1 {
		ttlSec = 1
	}

	res, err := s.script.Run(ctx, s.client,
		[]string{s.keyPrefix + key},
		s.capacity,
		strconv.FormatFloat(s.refillPS, 'f', 9, 64),
		nowSec,
		ttlSec,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit take %q: %w", key, err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return Decision{}, fmt.Errorf("ratelimit take %q: unexpected script reply %T", key, res)
	}
	allowed, _ := arr[0].(int64)
	tokensStr, _ := arr[1].(string)
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit take %q: bad token count %q: %w", key, tokensStr, err)
	}

	d := Decision{
		Allowed:   allowed == 1,
		Limit:     s.capacity,
		Remaining: int(tokens),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - tokens) / s.refillPS * float64(time.Second))
	}
	return d, nil
}
