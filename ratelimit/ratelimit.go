// Package ratelimit implements the distributed token-bucket rate limiter
// from §4.10 of the gateway spec, backed by a Redis EVAL script for
// atomicity. The client construction (pool-tuning options in RedisOptions)
// follows skipper's ratelimit/redis.go RedisOptions shape, reduced from
// skipper's redis.Ring to a single-node redis.Client; the algorithm itself follows
// RedisRateLimiter.java (the Java source this spec was distilled from)
// rather than skipper's own sliding-window sorted-set limiter, since the
// spec specifies the token-bucket algorithm exactly.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// tokenBucketScript implements the algorithm from §4.10 as a single atomic
// Redis EVAL. KEYS[1]/KEYS[2] are the tokens/timestamp keys (hash-tagged so
// both land on the same cluster shard); ARGV is replenishRate,
// burstCapacity, now, requested.
const tokenBucketScript = `
local tokens_key = KEYS[1]
local timestamp_key = KEYS[2]

local replenish_rate = tonumber(ARGV[1])
local burst_capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local fill_time = burst_capacity / replenish_rate
local ttl = math.floor(fill_time * 2)

local last_tokens = tonumber(redis.call("get", tokens_key))
if last_tokens == nil then
  last_tokens = burst_capacity
end

local last_refreshed = tonumber(redis.call("get", timestamp_key))
if last_refreshed == nil then
  last_refreshed = 0
end

local delta = math.max(0, now - last_refreshed)
local filled_tokens = math.min(burst_capacity, last_tokens + (delta * replenish_rate))
local allowed = filled_tokens >= requested
local new_tokens = filled_tokens
local allowed_num = 0
if allowed then
  new_tokens = filled_tokens - requested
  allowed_num = 1
end

if ttl > 0 then
  redis.call("setex", tokens_key, ttl, new_tokens)
  redis.call("setex", timestamp_key, ttl, now)
end

return { allowed_num, new_tokens }
`

// RedisOptions configures the backing Redis client, mirroring the
// pool-tuning knobs from skipper's RedisOptions.
type RedisOptions struct {
	Addrs        []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	MinIdleConns int
	MaxIdleConns int
}

// Result is the outcome of one isAllowed call.
type Result struct {
	Allowed    bool
	TokensLeft int64
}

// Limiter is the distributed token-bucket rate limiter contract from §4.10:
// isAllowed(routeId, key) -> {allowed, tokensLeft}; the X-RateLimit-*
// headers are built from that Result by the RequestRateLimiter filter in
// package builtin. When no Redis address is
// configured it falls back to a local, per-process token bucket keyed the
// same way, so a gateway instance run without a shared store still enforces
// its own limits instead of silently allowing everything through — in the
// spirit of skipper's voidRatelimit, but actually limiting rather than
// always-allow.
type Limiter struct {
	client *redis.Client
	log    *logrus.Logger
	script *redis.Script

	localMu sync.Mutex
	local   map[string]*rate.Limiter
}

// New builds a Limiter. With opts.Addrs set it talks to a single-node Redis
// client (a production deployment may point Addrs at a Redis
// Cluster/Sentinel front-end; this module does not itself shard, matching
// the hash-tag key layout that makes sharding transparent to the script).
// With no Addrs it builds a local in-process fallback instead of dialing
// localhost:6379 blindly.
func New(opts RedisOptions, log *logrus.Logger) *Limiter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(opts.Addrs) == 0 {
		log.Info("no redis address configured, rate limiter falling back to local in-process buckets")
		return &Limiter{log: log, local: make(map[string]*rate.Limiter)}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addrs[0],
		ReadTimeout:  orDefault(opts.ReadTimeout, 25*time.Millisecond),
		WriteTimeout: orDefault(opts.WriteTimeout, 25*time.Millisecond),
		PoolTimeout:  orDefault(opts.PoolTimeout, 25*time.Millisecond),
		MinIdleConns: opts.MinIdleConns,
		PoolSize:     orDefaultInt(opts.MaxIdleConns, 100),
	})
	return &Limiter{client: client, log: log, script: redis.NewScript(tokenBucketScript)}
}

// localAllowed runs the same allow/deny decision as the Redis script, but
// against a process-local golang.org/x/time/rate.Limiter keyed by id,
// lazily created with the requested replenish rate and burst capacity.
func (l *Limiter) localAllowed(id string, replenishRate, burstCapacity int) Result {
	l.localMu.Lock()
	defer l.localMu.Unlock()

	lim, ok := l.local[id]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(replenishRate), burstCapacity)
		l.local[id] = lim
	}

	if lim.Allow() {
		return Result{Allowed: true, TokensLeft: int64(lim.Tokens())}
	}
	return Result{Allowed: false, TokensLeft: int64(lim.Tokens())}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// keys returns the hash-tagged tokens/timestamp key pair for id, per §4.10:
// "request_rate_limiter.{<id>}.tokens" and "...timestamp".
func keys(id string) (string, string) {
	prefix := fmt.Sprintf("request_rate_limiter.{%s}", id)
	return prefix + ".tokens", prefix + ".timestamp"
}

// IsAllowed executes the token-bucket script for (routeID, key) with the
// given rate parameters. On a backing-store failure it fails open per the
// spec's failure policy: allowed=true, TokensLeft=-1, logged rather than
// surfaced as an error.
func (l *Limiter) IsAllowed(ctx context.Context, routeID, key string, replenishRate, burstCapacity int) Result {
	id := routeID + "." + key

	if l.client == nil {
		return l.localAllowed(id, replenishRate, burstCapacity)
	}

	tokensKey, timestampKey := keys(id)
	now := time.Now().Unix()

	res, err := l.script.Run(ctx, l.client, []string{tokensKey, timestampKey},
		replenishRate, burstCapacity, now, 1).Result()
	if err != nil {
		l.log.Errorf("rate limiter backing store unreachable, failing open: %v", err)
		return Result{Allowed: true, TokensLeft: -1}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		l.log.Errorf("rate limiter script returned unexpected shape: %v", res)
		return Result{Allowed: true, TokensLeft: -1}
	}

	allowed := toInt64(vals[0]) == 1
	tokensLeft := toInt64(vals[1])
	return Result{Allowed: allowed, TokensLeft: tokensLeft}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
