package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/domain/repository"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	ck := &clock{t: time.Unix(0, 0)}
	c := NewTTLCache(0).WithClock(ck.now)
	require.NoError(t, c.SetBytes(ctx, "k", []byte("v"), time.Second))

	b, ok, err := c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	ck.t = ck.t.Add(2 * time.Second)
	_, ok, _ = c.GetBytes(ctx, "k")
	assert.False(t, ok)
}

func TestTTLCacheEvictsSoonestExpiry(t *testing.T) {
	ctx := context.Background()
	ck := &clock{t: time.Unix(0, 0)}
	c := NewTTLCache(2).WithClock(ck.now)
	_ = c.SetBytes(ctx, "long", []byte("1"), time.Hour)
	_ = c.SetBytes(ctx, "short", []byte("2"), time.Minute)
	_ = c.SetBytes(ctx, "new", []byte("3"), time.Hour)

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.GetBytes(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "long")
	assert.True(t, ok)
}

type brokenCache struct{}

func (brokenCache) GetBytes(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (brokenCache) SetBytes(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}

func TestLayeredBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewTTLCache(0), NewTTLCache(0)
	_ = l2.SetBytes(ctx, "k", []byte("v"), time.Minute)
	c := NewLayered(l1, l2, time.Second)

	b, ok, err := c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)
	_, ok, _ = l1.GetBytes(ctx, "k")
	assert.True(t, ok)
}

func TestLayeredTreatsL2ErrorAsMiss(t *testing.T) {
	c := NewLayered(NewTTLCache(0), brokenCache{}, time.Second)
	_, ok, err := c.GetBytes(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, ok)
}

type countingSource struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (s *countingSource) GetLatestNCandles(_ context.Context, _ string, n int, _ repository.Timeframe) ([]models.Candle, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return make([]models.Candle, n), nil
}

func TestCachedCandleSourceCachesAndCollapses(t *testing.T) {
	src := &countingSource{gate: make(chan struct{})}
	s := NewCachedCandleSource(src, NewTTLCache(0), nil, CandleConfig{TTL: time.Minute}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.GetLatestNCandles(context.Background(), "EURUSD", 5, repository.TF1h)
			assert.NoError(t, err)
			assert.Len(t, got, 5)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	_, err := s.GetLatestNCandles(context.Background(), "EURUSD", 5, repository.TF1h)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

type fetchErrors struct {
	repository.NopMetrics
	n atomic.Int32
}

func (f *fetchErrors) RecordFetchError(string) { f.n.Add(1) }

func TestCachedCandleSourceBreakerOpens(t *testing.T) {
	src := &countingSource{err: errors.New("ch down")}
	m := &fetchErrors{}
	s := NewCachedCandleSource(src, nil, nil, CandleConfig{BreakerFailures: 2, BreakerCooldown: time.Hour}, m, nil)

	for i := 0; i < 2; i++ {
		_, err := s.GetLatestNCandles(context.Background(), "EURUSD", 5, repository.TF1h)
		assert.Error(t, err)
	}
	_, err := s.GetLatestNCandles(context.Background(), "EURUSD", 5, repository.TF1h)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, int32(3), m.n.Load())
}
