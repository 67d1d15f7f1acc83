package cache

import (
	"context"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Layered reads L1 first, then L2, back-filling L1 on an L2 hit. Writes go to both.
// L2 errors are treated as misses so a shared cache outage never blocks a tick.
type Layered struct {
	l1    BytesCache
	l2    BytesCache
	l1TTL time.Duration
}

// NewLayered builds a two-level cache. l2 may be nil.
func NewLayered(l1, l2 BytesCache, l1TTL time.Duration) *Layered {
	return &Layered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (c *Layered) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, _ := c.l1.GetBytes(ctx, key); ok {
		return b, true, nil
	}
	if c.l2 == nil {
		return nil, false, nil
	}
	b, ok, err := c.l2.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, nil
	}
	_ = c.l1.SetBytes(ctx, key, b, c.l1TTL)
	return b, true, nil
}

func (c *Layered) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	_ = c.l1.SetBytes(ctx, key, value, l1TTL)
	if c.l2 != nil {
		return c.l2.SetBytes(ctx, key, value, ttl)
	}
	return nil
}
