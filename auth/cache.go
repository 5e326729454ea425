package auth

import (
	"sync"
	"time"
)

// DefaultCacheSize bounds the fallback cache when no size is configured.
const DefaultCacheSize = 10000

// MemoryCache holds sessions created while the durable store was unreachable.
// Entries are keyed by the raw cookie token and are lost on restart.
// When full, expired entries are swept and then the entry closest to expiry
// is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*Session
	max     int
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most max sessions.
func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &MemoryCache{
		entries: make(map[string]*Session),
		max:     max,
		now:     time.Now,
	}
}

// Get returns a copy of the cached session for token.
func (c *MemoryCache) Get(token string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[token]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Put stores a copy of s under token.
func (c *MemoryCache) Put(token string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[token]; !exists && len(c.entries) >= c.max {
		c.sweepLocked(c.now())
		if len(c.entries) >= c.max {
			c.evictLocked()
		}
	}
	c.entries[token] = s.clone()
}

// Delete removes token. Missing tokens are ignored.
func (c *MemoryCache) Delete(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// DeleteUser removes every cached session owned by userID.
func (c *MemoryCache) DeleteUser(userID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, s := range c.entries {
		if s.UserID == userID {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Sweep drops entries expired at now and returns how many were removed.
func (c *MemoryCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// Len returns the number of cached sessions.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Session)
	c.mu.Unlock()
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	n := 0
	for k, s := range c.entries {
		if !now.Before(s.ExpiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) evictLocked() {
	var victim string
	var soonest time.Time
	for k, s := range c.entries {
		if victim == "" || s.ExpiresAt.Before(soonest) {
			victim, soonest = k, s.ExpiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}
