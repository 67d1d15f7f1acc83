package usecase

import (
	"context"
	"fmt"
	"time"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/services/confluence"
	"SetupScan/internal/services/rules"
	"SetupScan/internal/services/structure"
)

// EvaluationResult is the ad-hoc score of one setup.
type EvaluationResult struct {
	Score    models.ScoreResult   `json:"score"`
	Outcomes map[string]bool      `json:"outcomes"`
	Context  models.MarketContext `json:"context"`
	Summary  string               `json:"summary"`
}

// EvaluateUseCase scores a setup on demand and serves structure views.
type EvaluateUseCase struct {
	models    domrepo.ModelStore
	candles   domrepo.CandleSource
	loader    *SnapshotLoader
	detector  *structure.Detector
	evaluator *rules.Evaluator
	scorer    *confluence.Scorer
	ctxp      *ContextProvider
	now       func() time.Time
}

func NewEvaluateUseCase(ms domrepo.ModelStore, candles domrepo.CandleSource, loader *SnapshotLoader,
	det *structure.Detector, ev *rules.Evaluator, sc *confluence.Scorer, ctxp *ContextProvider) *EvaluateUseCase {
	return &EvaluateUseCase{
		models: ms, candles: candles, loader: loader, detector: det,
		evaluator: ev, scorer: sc, ctxp: ctxp, now: time.Now,
	}
}

// EvaluateSetup runs every rule of the model against live data and scores the result.
func (uc *EvaluateUseCase) EvaluateSetup(ctx context.Context, modelID, pair string, tf domrepo.Timeframe, dir models.Direction) (*EvaluationResult, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	m, err := uc.models.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if tf == "" {
		tf = domrepo.NormalizeTimeframe(m.Timeframe)
	}
	snap, err := uc.loader.Load(ctx, seriesFor(pair, tf))
	if err != nil {
		return nil, fmt.Errorf("load market data: %w", err)
	}
	now := uc.now()
	setup := models.Setup{
		ModelID:   m.ID,
		Pair:      pair,
		Timeframe: string(tf),
		Direction: dir,
		Outcomes:  uc.evaluator.EvaluateAll(m.Rules, pair, tf, dir, snap),
		Context:   uc.ctxp.Build(ctx, snap, pair, tf, now),
	}
	res := uc.scorer.Score(setup, m)
	return &EvaluationResult{
		Score:    res,
		Outcomes: setup.Outcomes,
		Context:  setup.Context,
		Summary:  confluence.Summary(res),
	}, nil
}

// Structure returns the full analysis of the latest n candles.
func (uc *EvaluateUseCase) Structure(ctx context.Context, pair string, tf domrepo.Timeframe, n int) (*models.Analysis, error) {
	if pair == "" {
		return nil, fmt.Errorf("pair required")
	}
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	candles, err := uc.candles.GetLatestNCandles(ctx, pair, n, tf)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return uc.detector.Analyze(candles), nil
}
