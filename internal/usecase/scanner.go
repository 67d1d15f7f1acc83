package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/services/confluence"
	"SetupScan/internal/services/phase"
	"SetupScan/internal/services/rules"
	applogger "SetupScan/pkg/logger"
)

// ScannerConfig bounds one scan tick.
type ScannerConfig struct {
	Pairs       []string
	Directions  []models.Direction
	Interval    time.Duration
	TickTimeout time.Duration
	Workers     int
}

// TickReport summarizes one tick.
type TickReport struct {
	Keys     int64
	Advanced int64
	Skipped  int64
	Failed   int64
	Events   int64
	Duration time.Duration
}

// Scanner drives the phase machine over every active model, pair and direction.
type Scanner struct {
	cfg       ScannerConfig
	models    domrepo.ModelStore
	store     domrepo.PhaseStore
	emitter   domrepo.AlertEmitter
	loader    *SnapshotLoader
	evaluator *rules.Evaluator
	scorer    *confluence.Scorer
	machine   *phase.Machine
	ctxp      *ContextProvider
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewScanner(cfg ScannerConfig, ms domrepo.ModelStore, store domrepo.PhaseStore, emitter domrepo.AlertEmitter,
	loader *SnapshotLoader, ev *rules.Evaluator, sc *confluence.Scorer, pm *phase.Machine, ctxp *ContextProvider,
	m domrepo.Metrics, l *applogger.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 45 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if len(cfg.Directions) == 0 {
		cfg.Directions = []models.Direction{models.Bullish, models.Bearish}
	}
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Scanner{
		cfg: cfg, models: ms, store: store, emitter: emitter, loader: loader,
		evaluator: ev, scorer: sc, machine: pm, ctxp: ctxp, metrics: m, l: l, now: time.Now,
	}
}

// Run ticks every interval until ctx is cancelled. A failed tick is logged and the loop continues.
func (s *Scanner) Run(ctx context.Context) error {
	s.l.Info("scanner started",
		applogger.Duration("interval", s.cfg.Interval),
		applogger.Int("workers", s.cfg.Workers))
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := s.RunTick(ctx); err != nil && ctx.Err() == nil {
			s.l.Error("scan tick failed", applogger.Error(err))
		}
		select {
		case <-ctx.Done():
			s.l.Info("scanner stopped")
			return nil
		case <-t.C:
		}
	}
}

type scanJob struct {
	model models.Model
	pair  string
	tf    domrepo.Timeframe
	dir   models.Direction
}

// RunTick performs one bounded tick. On timeout, keys that had not yet been committed are
// left unchanged.
func (s *Scanner) RunTick(parent context.Context) (TickReport, error) {
	start := time.Now()
	var rep TickReport
	ctx, cancel := context.WithTimeout(parent, s.cfg.TickTimeout)
	defer cancel()

	finish := func(result string, err error) (TickReport, error) {
		rep.Duration = time.Since(start)
		s.metrics.RecordTick(result, rep.Duration.Seconds())
		return rep, err
	}

	all, err := s.models.List(ctx)
	if err != nil {
		return finish("error", fmt.Errorf("list models: %w", err))
	}
	var jobs []scanJob
	var keys []SeriesKey
	for _, m := range all {
		if !m.Active {
			continue
		}
		pairs := m.Pairs
		if len(pairs) == 0 {
			pairs = s.cfg.Pairs
		}
		tf := domrepo.NormalizeTimeframe(m.Timeframe)
		for _, p := range pairs {
			keys = append(keys, seriesFor(p, tf)...)
			for _, d := range s.cfg.Directions {
				if !m.Trades(d) {
					continue
				}
				jobs = append(jobs, scanJob{model: m, pair: p, tf: tf, dir: d})
			}
		}
	}
	if len(jobs) == 0 {
		return finish("idle", nil)
	}

	snap, err := s.loader.Load(ctx, keys)
	if err != nil {
		return finish(tickResult(err), fmt.Errorf("load market data: %w", err))
	}

	now := s.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, j := range jobs {
		atomic.AddInt64(&rep.Keys, 1)
		g.Go(func() error {
			if err := s.processKey(gctx, snap, j, now, &rep); err != nil {
				atomic.AddInt64(&rep.Failed, 1)
				s.l.Warn("scan key failed",
					applogger.String("model_id", j.model.ID),
					applogger.String("pair", j.pair),
					applogger.String("direction", string(j.dir)),
					applogger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		s.l.Warn("scan tick abandoned", applogger.Error(err), applogger.Int64("failed", rep.Failed))
		return finish(tickResult(err), err)
	}
	s.l.Debug("scan tick done",
		applogger.Int64("keys", rep.Keys),
		applogger.Int64("advanced", rep.Advanced),
		applogger.Int64("skipped", rep.Skipped),
		applogger.Duration("duration", time.Since(start)))
	return finish("ok", nil)
}

func tickResult(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "error"
}

func (s *Scanner) processKey(ctx context.Context, snap *Snapshot, j scanJob, now time.Time, rep *TickReport) error {
	key := models.PhaseKey(j.model.ID, j.pair, j.dir)
	release, err := s.store.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	rec, err := s.store.Get(ctx, key)
	if errors.Is(err, domrepo.ErrRecordNotFound) {
		rec = models.NewPhaseRecord(j.model.ID, j.pair, j.dir, now)
	} else if err != nil {
		return err
	}

	base := snap.Analysis(j.pair, j.tf)
	if base.Empty() {
		atomic.AddInt64(&rep.Skipped, 1)
		s.metrics.RecordSkipped("no_data")
		return nil
	}
	px, chg, atrPct := activity(base)
	in := phase.Input{
		Now:      now,
		Close:    px,
		Activity: phase.Activity{PriceChangePct: chg, ATRPct: atrPct},
		Model:    j.model,
	}
	out := s.machine.Tick(rec, in, func(r models.Rule) bool {
		return s.evaluator.Evaluate(r, j.pair, j.tf, j.dir, snap)
	})
	if out.Skipped {
		atomic.AddInt64(&rep.Skipped, 1)
		s.metrics.RecordSkipped("inactive")
		return nil
	}
	if !out.Changed {
		return nil
	}
	for i := range out.Events {
		ev := &out.Events[i]
		if ev.Type == models.EventPhaseCompleted && ev.Phase == models.Phase3 {
			score := s.score(ctx, snap, j, now)
			ev.Score = &score
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	out.Record.Version = rec.Version + 1
	out.Record.UpdatedAt = now
	if err := s.store.Save(ctx, out.Record); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if rec.Current != out.Record.Current {
		atomic.AddInt64(&rep.Advanced, 1)
		s.metrics.RecordTransition(rec.Current.String(), out.Record.Current.String(), transitionReason(out.Events))
	}
	if len(out.Events) == 0 {
		return nil
	}
	atomic.AddInt64(&rep.Events, int64(len(out.Events)))
	for _, ev := range out.Events {
		fields := []applogger.Field{
			applogger.String("type", string(ev.Type)),
			applogger.String("model_id", ev.ModelID),
			applogger.String("pair", ev.Pair),
			applogger.String("direction", string(ev.Direction)),
			applogger.String("phase", ev.Phase.String()),
			applogger.String("reason", ev.Reason),
		}
		if ev.Score != nil {
			fields = append(fields,
				applogger.Bool("valid", ev.Score.Valid),
				applogger.Float64("score", ev.Score.FinalScore),
				applogger.String("tier", string(ev.Score.Tier)))
		}
		s.l.Info("phase event", fields...)
	}
	if s.emitter != nil {
		if err := s.emitter.Emit(ctx, out.Events...); err != nil {
			s.l.Warn("emit phase events failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return nil
}

// score grades the full model at the moment the trigger phase completes.
func (s *Scanner) score(ctx context.Context, snap *Snapshot, j scanJob, now time.Time) models.ScoreResult {
	setup := models.Setup{
		ModelID:   j.model.ID,
		Pair:      j.pair,
		Timeframe: string(j.tf),
		Direction: j.dir,
		Outcomes:  s.evaluator.EvaluateAll(j.model.Rules, j.pair, j.tf, j.dir, snap),
		Context:   s.ctxp.Build(ctx, snap, j.pair, j.tf, now),
	}
	return s.scorer.Score(setup, j.model)
}

func transitionReason(events []models.PhaseEvent) string {
	for _, ev := range events {
		if ev.Type == models.EventPhaseReset {
			return ev.Reason
		}
	}
	return "completed"
}
