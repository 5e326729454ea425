// Package ratelimit counts attempts per key in fixed windows. It guards the
// forgot-password and login forms against brute force and mail flooding.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultLimit is the number of attempts allowed per window.
	DefaultLimit = 5
	// DefaultWindow is the length of a counting window.
	DefaultWindow = 15 * time.Minute
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the current window closes.
	RetryAfter time.Duration
}

// Limiter counts one attempt against key and decides whether it may proceed.
// When the backing store fails the decision allows the attempt and the error
// is returned for logging.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	// Reset forgets key's window, e.g. after a successful login.
	Reset(ctx context.Context, key string) error
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

func decide(limit, count int, retryAfter time.Duration) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Remaining: remaining, RetryAfter: retryAfter}
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
