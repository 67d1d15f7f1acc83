package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/domain/repository"
	"SetupScan/internal/service/ratelimit"
	applogger "SetupScan/pkg/logger"
)

// ErrSourceUnavailable is returned while the breaker around the upstream source is open.
var ErrSourceUnavailable = errors.New("candle source unavailable")

// CandleConfig tunes CachedCandleSource.
type CandleConfig struct {
	TTL             time.Duration
	LimiterKey      string
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// CachedCandleSource fronts a CandleSource with a byte cache, collapses concurrent
// identical fetches and trips a breaker on repeated upstream failure.
type CachedCandleSource struct {
	src     repository.CandleSource
	cache   BytesCache
	cfg     CandleConfig
	limiter *ratelimit.Limiter
	sf      singleflight.Group
	cb      *gobreaker.CircuitBreaker
	metrics repository.Metrics
	l       *applogger.Logger
}

func NewCachedCandleSource(src repository.CandleSource, c BytesCache, lim *ratelimit.Limiter, cfg CandleConfig,
	m repository.Metrics, l *applogger.Logger) *CachedCandleSource {
	if cfg.TTL <= 0 {
		cfg.TTL = 20 * time.Second
	}
	if cfg.LimiterKey == "" {
		cfg.LimiterKey = "candles"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if m == nil {
		m = repository.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	if lim == nil {
		lim = ratelimit.New(0, 1)
	}
	st := gobreaker.Settings{
		Name:    "candle-source",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()))
		},
	}
	return &CachedCandleSource{
		src: src, cache: c, cfg: cfg, limiter: lim,
		cb: gobreaker.NewCircuitBreaker(st), metrics: m, l: l,
	}
}

func candleKey(pair string, n int, tf repository.Timeframe) string {
	return fmt.Sprintf("candles:%s:%s:%d", pair, tf, n)
}

// GetLatestNCandles implements repository.CandleSource.
func (s *CachedCandleSource) GetLatestNCandles(ctx context.Context, pair string, n int, tf repository.Timeframe) ([]models.Candle, error) {
	key := candleKey(pair, n, tf)
	if s.cache != nil {
		if b, ok, _ := s.cache.GetBytes(ctx, key); ok {
			var out []models.Candle
			if err := json.Unmarshal(b, &out); err == nil {
				return out, nil
			}
		}
	}

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		if err := s.limiter.Wait(ctx, s.cfg.LimiterKey); err != nil {
			return nil, err
		}
		res, err := s.cb.Execute(func() (interface{}, error) {
			return s.src.GetLatestNCandles(ctx, pair, n, tf)
		})
		if err != nil {
			return nil, err
		}
		candles, _ := res.([]models.Candle)
		if s.cache != nil {
			if b, err := json.Marshal(candles); err == nil {
				_ = s.cache.SetBytes(ctx, key, b, s.cfg.TTL)
			}
		}
		return candles, nil
	})
	if err != nil {
		s.metrics.RecordFetchError(string(tf))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		s.l.Warn("candle fetch failed",
			applogger.String("pair", pair),
			applogger.String("timeframe", string(tf)),
			applogger.Error(err))
		return nil, err
	}
	candles, _ := v.([]models.Candle)
	return candles, nil
}
