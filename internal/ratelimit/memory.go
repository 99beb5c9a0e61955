package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window counter held in process memory.
// Suitable for a single API process; multi-process deployments should use
// RedisLimiter so all instances share one window.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || !now.Before(c.resetAt) {
		l.counters[key] = &counter{count: 1, resetAt: now.Add(window)}
		l.cleanupLocked(now)
		return Decision{Allowed: limit >= 1, Remaining: max(limit-1, 0)}, nil
	}

	c.count++
	if c.count > limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: c.resetAt.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: limit - c.count}, nil
}

// cleanupLocked drops expired counters so the map does not grow without
// bound. Must be called with the mutex held.
func (l *MemoryLimiter) cleanupLocked(now time.Time) {
	for k, c := range l.counters {
		if !now.Before(c.resetAt) {
			delete(l.counters, k)
		}
	}
}
