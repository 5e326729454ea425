package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ioea/academy/internal/metrics"
)

type window struct {
	count int
	ends  time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. It is the fallback
// when no Redis address is configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	name    string
	limit   int
	period  time.Duration
	now     Clock
	windows map[string]*window
	calls   int
}

// NewMemoryLimiter creates a limiter allowing limit attempts per period.
// name labels the rejection metric.
func NewMemoryLimiter(name string, limit int, period time.Duration, now Clock) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		name:    name,
		limit:   limit,
		period:  period,
		now:     now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%256 == 0 {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	d := decide(l.limit, w.count, w.ends.Sub(now))
	if !d.Allowed {
		metrics.RateLimitRejections.WithLabelValues(l.name).Inc()
	}
	return d, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Len returns the number of open windows.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops closed windows.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	l.sweepLocked(l.now())
	l.mu.Unlock()
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.ends) {
			delete(l.windows, k)
		}
	}
}
