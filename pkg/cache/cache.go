package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	ErrNotOwner  = errors.New("cache: lock not held by caller")
	ErrStale     = errors.New("cache: stored version is not older")
)

// Service is the key/value surface the stores build on.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	SetAdd(ctx context.Context, set string, members ...string) error
	SetMembers(ctx context.Context, set string) ([]string, error)
	// TryLock takes key for ttl and returns the owner token needed by Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
	// SetVersioned stores value only when the stored JSON "version" field is absent or
	// lower than version; otherwise it returns ErrStale.
	SetVersioned(ctx context.Context, key string, value interface{}, version int64) error
}

// MGetTyped retrieves multiple keys and unmarshals them, skipping entries that fail to decode.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	if len(keys) == 0 {
		return make(map[string]T), nil
	}
	raw, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for key, v := range raw {
		var obj T
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			continue
		}
		out[key] = obj
	}
	return out, nil
}
