package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ioea/academy/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// The first hit of a window sets its expiry; later hits only count.
const fixedWindowLua = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`

// RedisLimiter shares windows between instances through Redis.
type RedisLimiter struct {
	rdb    *redis.Client
	name   string
	prefix string
	limit  int
	period time.Duration
	logger *slog.Logger
	script *redis.Script
}

// NewRedisLimiter creates a limiter storing counters under
// "ioea:ratelimit:<name>:<key>".
func NewRedisLimiter(rdb *redis.Client, logger *slog.Logger, name string, limit int, period time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		rdb:    rdb,
		name:   name,
		prefix: "ioea:ratelimit:" + name + ":",
		limit:  limit,
		period: period,
		logger: logger,
		script: redis.NewScript(fixedWindowLua),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key}, l.period.Milliseconds()).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
			slog.String("limiter", l.name), slog.String("error", err.Error()))
		return Decision{Allowed: true, Remaining: l.limit}, fmt.Errorf("ratelimit eval: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return Decision{Allowed: true, Remaining: l.limit}, fmt.Errorf("ratelimit invalid result")
	}
	count := int(toInt64(values[0]))
	ttl := time.Duration(toInt64(values[1])) * time.Millisecond

	d := decide(l.limit, count, ttl)
	if !d.Allowed {
		metrics.RateLimitRejections.WithLabelValues(l.name).Inc()
	}
	return d, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.prefix+key).Err()
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
