package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	pkgcache "SetupScan/pkg/cache"
	applogger "SetupScan/pkg/logger"
)

const (
	phaseIndexKey   = "phase:index"
	lockRetryPeriod = 25 * time.Millisecond
)

func phaseRecordKey(key string) string { return "phase:rec:" + key }
func phaseLockKey(key string) string   { return "phase:lock:" + key }

// RedisPhaseStore keeps phase records as JSON values with an index set of keys.
// Locks are SETNX leases so several scanner instances can share one store.
type RedisPhaseStore struct {
	c       pkgcache.Service
	lockTTL time.Duration
	l       *applogger.Logger
}

func NewRedisPhaseStore(c pkgcache.Service, lockTTL time.Duration, l *applogger.Logger) *RedisPhaseStore {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &RedisPhaseStore{c: c, lockTTL: lockTTL, l: l}
}

func (s *RedisPhaseStore) Get(ctx context.Context, key string) (models.PhaseRecord, error) {
	var rec models.PhaseRecord
	if err := s.c.Get(ctx, phaseRecordKey(key), &rec); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return rec, domrepo.ErrRecordNotFound
		}
		return rec, fmt.Errorf("get phase record %s: %w", key, err)
	}
	return rec, nil
}

func (s *RedisPhaseStore) Save(ctx context.Context, rec models.PhaseRecord) error {
	key := rec.Key()
	if err := s.c.SetVersioned(ctx, phaseRecordKey(key), rec, rec.Version); err != nil {
		if errors.Is(err, pkgcache.ErrStale) {
			return fmt.Errorf("%w: %s v%d", domrepo.ErrVersionConflict, key, rec.Version)
		}
		return fmt.Errorf("save phase record %s: %w", key, err)
	}
	if err := s.c.SetAdd(ctx, phaseIndexKey, key); err != nil {
		return fmt.Errorf("index phase record %s: %w", key, err)
	}
	return nil
}

func (s *RedisPhaseStore) List(ctx context.Context) ([]models.PhaseRecord, error) {
	keys, err := s.c.SetMembers(ctx, phaseIndexKey)
	if err != nil {
		return nil, fmt.Errorf("list phase index: %w", err)
	}
	sort.Strings(keys)
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = phaseRecordKey(k)
	}
	got, err := pkgcache.MGetTyped[models.PhaseRecord](ctx, s.c, full...)
	if err != nil {
		return nil, fmt.Errorf("list phase records: %w", err)
	}
	out := make([]models.PhaseRecord, 0, len(got))
	for _, k := range full {
		if rec, ok := got[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Lock polls for the lease until ctx is done.
func (s *RedisPhaseStore) Lock(ctx context.Context, key string) (func(), error) {
	lk := phaseLockKey(key)
	for {
		token, ok, err := s.c.TryLock(ctx, lk, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := s.c.Unlock(uctx, lk, token); err != nil {
						s.l.Warn("phase lock release failed",
							applogger.String("key", key),
							applogger.Error(err))
					}
				})
			}, nil
		}
		t := time.NewTimer(lockRetryPeriod)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %s: %v", domrepo.ErrLockHeld, key, ctx.Err())
		case <-t.C:
		}
	}
}

// MemoryPhaseStore is the single-process PhaseStore.
type MemoryPhaseStore struct {
	mu    sync.RWMutex
	recs  map[string]models.PhaseRecord
	lmu   sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryPhaseStore() *MemoryPhaseStore {
	return &MemoryPhaseStore{recs: make(map[string]models.PhaseRecord), locks: make(map[string]chan struct{})}
}

func (s *MemoryPhaseStore) Get(_ context.Context, key string) (models.PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key]
	if !ok {
		return models.PhaseRecord{}, domrepo.ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryPhaseStore) Save(_ context.Context, rec models.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Key()
	if cur, ok := s.recs[key]; ok && cur.Version >= rec.Version {
		return fmt.Errorf("%w: %s v%d", domrepo.ErrVersionConflict, key, rec.Version)
	}
	s.recs[key] = rec
	return nil
}

func (s *MemoryPhaseStore) List(_ context.Context) ([]models.PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PhaseRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *MemoryPhaseStore) Lock(ctx context.Context, key string) (func(), error) {
	s.lmu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.lmu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", domrepo.ErrLockHeld, key, ctx.Err())
	}
}
