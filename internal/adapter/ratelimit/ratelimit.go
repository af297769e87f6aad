// Package ratelimit throttles outbound model calls with a token bucket kept
// in Redis, so every process sharing the store draws from the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket sizes a token bucket. RefillRate is tokens per second.
type Bucket struct {
	Capacity   int64
	RefillRate float64
}

// PerMinute allows n calls per minute with a burst of n.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), RefillRate: float64(n) / 60.0}
}

// Enabled reports whether the bucket limits anything.
func (b Bucket) Enabled() bool { return b.Capacity > 0 && b.RefillRate > 0 }

// Fractions are returned as strings: Redis truncates Lua numbers to integers.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, ttl)

return { allowed, tostring(tokens), tostring(retry_after) }
`

// Limiter is a Redis-backed token bucket keyed by caller-chosen names.
type Limiter struct {
	rdb    redis.UniversalClient
	bucket Bucket
	prefix string
	script *redis.Script

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPrefix namespaces bucket keys. The default is "rate:".
func WithPrefix(p string) Option { return func(l *Limiter) { l.prefix = p } }

// WithClock replaces time.Now and the wait function; used in tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New returns nil when rdb is nil or the bucket is disabled. A nil *Limiter
// allows everything.
func New(rdb redis.UniversalClient, b Bucket, opts ...Option) *Limiter {
	if rdb == nil || !b.Enabled() {
		return nil
	}
	l := &Limiter{
		rdb:    rdb,
		bucket: b,
		prefix: "rate:",
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow takes cost tokens from key's bucket. When refused, retryAfter is the
// time until enough tokens accumulate. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error) {
	if l == nil {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}
	now := float64(l.now().UnixNano()) / 1e9
	// Idle buckets refill completely after this long, so the key can go.
	ttl := int64(float64(l.bucket.Capacity)/l.bucket.RefillRate) + 1

	res, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key},
		l.bucket.Capacity, l.bucket.RefillRate, now, cost, ttl).Slice()
	if err != nil {
		return true, 0, fmt.Errorf("op=ratelimit.Allow: %w", err)
	}
	if len(res) < 3 {
		return true, 0, fmt.Errorf("op=ratelimit.Allow: unexpected script result %v", res)
	}
	ok, _ := res[0].(int64)
	if ok == 1 {
		return true, 0, nil
	}
	secs, _ := strconv.ParseFloat(fmt.Sprint(res[2]), 64)
	return false, time.Duration(secs * float64(time.Second)), nil
}

// Wait blocks until key's bucket grants one token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	for {
		ok, retry, err := l.Allow(ctx, key, 1)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing call", slog.String("key", key), slog.Any("error", err))
			return nil
		}
		if ok {
			return nil
		}
		if retry < 10*time.Millisecond {
			retry = 10 * time.Millisecond
		}
		slog.Debug("rate limited, waiting", slog.String("key", key), slog.Duration("retry_after", retry))
		if err := l.sleep(ctx, retry); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
