package ratelimit

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrScript atomically increments the window counter and stamps its
// expiry on first increment, returning the count and remaining TTL.
var incrScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {count, ttl}
`)

// RedisLimiter is a fixed-window counter shared across processes.
//
// On Redis failure it fails OPEN: generation is already gated by credits,
// so availability wins over strictness here. Every failure is logged.
type RedisLimiter struct {
	client goredis.Cmdable
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client goredis.Cmdable, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{client: client, log: log}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := incrScript.Run(ctx, l.client, []string{key}, int(window.Seconds())).Slice()
	if err != nil || len(res) != 2 {
		l.log.Error("rate limiter backend unavailable, failing open", "key", key, "error", err)
		return Decision{Allowed: true, Remaining: limit}, nil
	}

	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	if int(count) > limit {
		retry := time.Duration(ttl) * time.Second
		if retry <= 0 {
			retry = window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}
