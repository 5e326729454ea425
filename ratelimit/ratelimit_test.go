package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter("test", 5, 15*time.Minute, clock.Now)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d", i)
		require.Equal(t, 5-i, d.Remaining)
	}
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Equal(t, 15*time.Minute, d.RetryAfter)

	other, _ := l.Allow(ctx, "10.0.0.2")
	require.True(t, other.Allowed, "keys are independent")

	clock.Advance(15 * time.Minute)
	d, _ = l.Allow(ctx, "10.0.0.1")
	require.True(t, d.Allowed, "new window after the period")
	require.Equal(t, 4, d.Remaining)
}

func TestMemoryLimiter_ResetAndSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter("test", 1, time.Minute, clock.Now)
	ctx := context.Background()

	l.Allow(ctx, "a")
	d, _ := l.Allow(ctx, "a")
	require.False(t, d.Allowed)
	require.NoError(t, l.Reset(ctx, "a"))
	d, _ = l.Allow(ctx, "a")
	require.True(t, d.Allowed)

	l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())
	clock.Advance(time.Minute)
	l.Sweep()
	require.Equal(t, 0, l.Len())
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := NewMemoryLimiter("test", 5, time.Minute, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.Allow(context.Background(), "k")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, allowed)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return s, rdb
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	s, rdb := newMiniRedis(t)
	l := NewRedisLimiter(rdb, nil, "forgot", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 3-i, d.Remaining)
	}
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.True(t, d.RetryAfter > 0 && d.RetryAfter <= time.Minute)

	require.True(t, s.Exists("ioea:ratelimit:forgot:10.0.0.1"))
	s.FastForward(time.Minute)

	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, d.Allowed, "window should reset after expiry")
}

func TestRedisLimiter_Reset(t *testing.T) {
	_, rdb := newMiniRedis(t)
	l := NewRedisLimiter(rdb, nil, "login", 1, time.Minute)
	ctx := context.Background()

	l.Allow(ctx, "k")
	d, _ := l.Allow(ctx, "k")
	require.False(t, d.Allowed)
	require.NoError(t, l.Reset(ctx, "k"))
	d, _ = l.Allow(ctx, "k")
	require.True(t, d.Allowed)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	s, rdb := newMiniRedis(t)
	l := NewRedisLimiter(rdb, nil, "forgot", 1, time.Minute)
	s.Close()

	d, err := l.Allow(context.Background(), "k")
	require.Error(t, err)
	require.True(t, d.Allowed)
}
