package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
}

// TTLCache is an in-process byte cache. When full, expired entries are purged first and
// then the entry closest to expiry is evicted.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	max int
	now func() time.Time
}

// NewTTLCache returns a cache holding at most maxEntries (0 means unbounded).
func NewTTLCache(maxEntries int) *TTLCache {
	return &TTLCache{m: make(map[string]entry), max: maxEntries, now: time.Now}
}

// WithClock replaces the time source.
func (c *TTLCache) WithClock(now func() time.Time) *TTLCache {
	c.now = now
	return c
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	now := c.now()
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && c.max > 0 && len(c.m) >= c.max {
		c.evict(now)
	}
	c.m[key] = entry{v: value, exp: exp}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache) evict(now time.Time) {
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
	if len(c.m) < c.max {
		return
	}
	var victim string
	var soonest time.Time
	for k, e := range c.m {
		if victim == "" || (!e.exp.IsZero() && (soonest.IsZero() || e.exp.Before(soonest))) {
			victim, soonest = k, e.exp
		}
	}
	delete(c.m, victim)
}
