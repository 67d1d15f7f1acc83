package usecase

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/services/structure"
	applogger "SetupScan/pkg/logger"
)

// SeriesKey identifies one candle series.
type SeriesKey struct {
	Pair      string
	Timeframe domrepo.Timeframe
}

type analysisCell struct {
	once sync.Once
	a    *models.Analysis
}

// Snapshot is the per-tick view of the market. Candles are fetched once by LoadSnapshot and
// are read-only afterwards; analyses are computed on first use and shared by all readers.
type Snapshot struct {
	detector *structure.Detector
	series   map[SeriesKey][]models.Candle
	cells    map[SeriesKey]*analysisCell
	empty    *models.Analysis
}

// SnapshotLoader fetches the candle series a tick needs.
type SnapshotLoader struct {
	src      domrepo.CandleSource
	detector *structure.Detector
	limit    int
	workers  int
	l        *applogger.Logger
}

func NewSnapshotLoader(src domrepo.CandleSource, det *structure.Detector, limit, workers int, l *applogger.Logger) *SnapshotLoader {
	if limit <= 0 {
		limit = 300
	}
	if workers <= 0 {
		workers = 4
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SnapshotLoader{src: src, detector: det, limit: limit, workers: workers, l: l}
}

// Load fetches every key once. A failed fetch leaves that series empty so dependent rules
// fail closed; only cancellation of ctx fails the whole load.
func (s *SnapshotLoader) Load(ctx context.Context, keys []SeriesKey) (*Snapshot, error) {
	snap := &Snapshot{
		detector: s.detector,
		series:   make(map[SeriesKey][]models.Candle, len(keys)),
		cells:    make(map[SeriesKey]*analysisCell, len(keys)),
		empty:    s.detector.Analyze(nil),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	seen := make(map[SeriesKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		snap.cells[k] = &analysisCell{}
		g.Go(func() error {
			candles, err := s.src.GetLatestNCandles(gctx, k.Pair, s.limit, k.Timeframe)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.l.Warn("series unavailable for tick",
					applogger.String("pair", k.Pair),
					applogger.String("timeframe", string(k.Timeframe)),
					applogger.Error(err))
				return nil
			}
			mu.Lock()
			snap.series[k] = candles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Analysis implements rules.Source.
func (s *Snapshot) Analysis(pair string, tf domrepo.Timeframe) *models.Analysis {
	k := SeriesKey{Pair: pair, Timeframe: tf}
	cell, ok := s.cells[k]
	if !ok {
		return s.empty
	}
	cell.once.Do(func() { cell.a = s.detector.Analyze(s.series[k]) })
	return cell.a
}

// Candles returns the raw series for k.
func (s *Snapshot) Candles(pair string, tf domrepo.Timeframe) []models.Candle {
	return s.series[SeriesKey{Pair: pair, Timeframe: tf}]
}

// seriesFor lists the series a model needs on one pair: its own timeframe, both
// neighbours for scoped checks, and the bias timeframes.
func seriesFor(pair string, tf domrepo.Timeframe) []SeriesKey {
	tfs := []domrepo.Timeframe{tf, tf.Higher(), tf.Lower(), mediumBiasTF, higherBiasTF}
	out := make([]SeriesKey, 0, len(tfs))
	for _, t := range tfs {
		out = append(out, SeriesKey{Pair: pair, Timeframe: t})
	}
	return out
}
