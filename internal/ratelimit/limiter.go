package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter bounds how often a key may attempt an action within a fixed
// window. Check increments the counter exactly once per call, whether or
// not the attempt is allowed downstream, so probing with requests that
// are guaranteed to fail later is still bounded.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Key builds the per-user-per-operation counter key.
func Key(operation string, userID string) string {
	return "rl:" + operation + ":" + userID
}
