package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/repository"
	"SetupScan/internal/services/confluence"
	"SetupScan/internal/services/phase"
	"SetupScan/internal/services/rules"
	"SetupScan/internal/services/structure"
)

type staticModels []models.Model

func (s staticModels) List(context.Context) ([]models.Model, error) { return s, nil }

func (s staticModels) Get(_ context.Context, id string) (models.Model, error) {
	for _, m := range s {
		if m.ID == id {
			return m, nil
		}
	}
	return models.Model{}, domrepo.ErrModelNotFound
}

func (s staticModels) Save(context.Context, models.Model) (models.ValidationReport, error) {
	return models.ValidationReport{}, errors.New("read only")
}

type seriesSource struct {
	candles []models.Candle
	block   bool
}

func (s seriesSource) GetLatestNCandles(ctx context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(s.candles) {
		return s.candles[len(s.candles)-n:], nil
	}
	return s.candles, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.PhaseEvent
}

func (r *recordingEmitter) Emit(_ context.Context, ev ...models.PhaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev...)
	return nil
}

type fixedNews struct{ at time.Time }

func (f fixedNews) NextHighImpact(context.Context, string, time.Time) (time.Time, bool, error) {
	return f.at, !f.at.IsZero(), nil
}

// zigzag ends at 10:00 UTC so session checks pass.
func zigzag(n int) []models.Candle {
	end := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		px := 100.0
		if i%2 == 1 {
			px = 101
		}
		out[i] = models.Candle{
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Hour),
			Open:      px - 0.2, High: px + 0.5, Low: px - 0.5, Close: px, Volume: 10,
		}
	}
	return out
}

func flat(n int) []models.Candle {
	cs := zigzag(n)
	for i := range cs {
		cs[i].Open, cs[i].High, cs[i].Low, cs[i].Close = 100, 100, 100, 100
	}
	return cs
}

func sessionModel() models.Model {
	r := func(id string, p models.Phase) models.Rule {
		return models.Rule{ID: id, Name: "Session window", Weight: 1, Phase: p}
	}
	return models.Model{
		ID: "ict", Active: true, Bias: models.TrendNeutral, Timeframe: "1h",
		TierA: 4, TierB: 3, TierC: 1,
		Rules: []models.Rule{r("p1", models.Phase1), r("p2", models.Phase2), r("p3", models.Phase3), r("p4", models.Phase4)},
	}
}

type harness struct {
	scanner *Scanner
	store   *repository.MemoryPhaseStore
	emitter *recordingEmitter
	now     time.Time
}

func newHarness(t *testing.T, src domrepo.CandleSource, news domrepo.NewsCalendar, timeout time.Duration) *harness {
	t.Helper()
	det := structure.NewDetector(structure.DefaultConfig())
	h := &harness{
		store:   repository.NewMemoryPhaseStore(),
		emitter: &recordingEmitter{},
		now:     time.Date(2024, 3, 12, 10, 5, 0, 0, time.UTC),
	}
	h.scanner = NewScanner(
		ScannerConfig{Pairs: []string{"EURUSD"}, Directions: []models.Direction{models.Bullish}, TickTimeout: timeout, Workers: 2},
		staticModels{sessionModel()}, h.store, h.emitter,
		NewSnapshotLoader(src, det, 120, 2, nil),
		rules.NewEvaluator(rules.NewRegistry(), rules.DefaultParams(), nil, nil),
		confluence.NewScorer(confluence.Config{}),
		phase.NewMachine(phase.DefaultConfig()),
		NewContextProvider(news, nil),
		nil, nil,
	)
	h.scanner.now = func() time.Time { return h.now }
	return h
}

func (h *harness) record(t *testing.T) models.PhaseRecord {
	t.Helper()
	rec, err := h.store.Get(context.Background(), models.PhaseKey("ict", "EURUSD", models.Bullish))
	require.NoError(t, err)
	return rec
}

func TestScannerAdvancesOnePhasePerTick(t *testing.T) {
	h := newHarness(t, seriesSource{candles: zigzag(80)}, nil, time.Second)
	ctx := context.Background()

	for want := models.Phase2; want <= models.Phase4; want++ {
		rep, err := h.scanner.RunTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rep.Advanced)
		assert.Equal(t, want, h.record(t).Current)
		h.now = h.now.Add(time.Minute)
	}

	rec := h.record(t)
	require.NotNil(t, rec.Levels)
	assert.Equal(t, 101.0, rec.Levels.Entry)
	assert.Equal(t, int64(3), rec.Version)

	require.Len(t, h.emitter.events, 3)
	trigger := h.emitter.events[2]
	assert.Equal(t, models.Phase3, trigger.Phase)
	require.NotNil(t, trigger.Score)
	assert.True(t, trigger.Score.Valid)
	assert.Equal(t, 4.0, trigger.Score.RawScore)
	assert.Nil(t, h.emitter.events[0].Score)

	// Before the confirmation wait nothing changes.
	_, err := h.scanner.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Phase4, h.record(t).Current)

	h.now = h.now.Add(10 * time.Minute)
	_, err = h.scanner.RunTick(ctx)
	require.NoError(t, err)
	rec = h.record(t)
	assert.Equal(t, models.Phase1, rec.Current)
	assert.Equal(t, models.StatusConfirmed, rec.LastResult)
	assert.Equal(t, 1, rec.Cycle)

	last := h.emitter.events[len(h.emitter.events)-2:]
	assert.Equal(t, models.EventPhase4Result, last[0].Type)
	assert.Equal(t, models.EventPhaseReset, last[1].Type)
	assert.Equal(t, models.ResetResolved, last[1].Reason)
}

func TestScannerHonoursModelBias(t *testing.T) {
	h := newHarness(t, seriesSource{candles: zigzag(80)}, nil, time.Second)
	h.scanner.cfg.Directions = []models.Direction{models.Bullish, models.Bearish}
	m := sessionModel()
	m.Bias = models.TrendBullish
	h.scanner.models = staticModels{m}

	rep, err := h.scanner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Keys)
	_, err = h.store.Get(context.Background(), models.PhaseKey("ict", "EURUSD", models.Bearish))
	assert.ErrorIs(t, err, domrepo.ErrRecordNotFound)

	m.Bias = models.TrendNeutral
	h.scanner.models = staticModels{m}
	rep, err = h.scanner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Keys)
}

func TestScannerSkipsQuietMarket(t *testing.T) {
	h := newHarness(t, seriesSource{candles: flat(80)}, nil, time.Second)
	rep, err := h.scanner.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Skipped)
	all, _ := h.store.List(context.Background())
	assert.Empty(t, all)
	assert.Empty(t, h.emitter.events)
}

func TestScannerTimeoutCommitsNothing(t *testing.T) {
	h := newHarness(t, seriesSource{block: true}, nil, 20*time.Millisecond)
	_, err := h.scanner.RunTick(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	all, _ := h.store.List(context.Background())
	assert.Empty(t, all)
}

func TestScannerWaitsForLockedKey(t *testing.T) {
	h := newHarness(t, seriesSource{candles: zigzag(80)}, nil, 50*time.Millisecond)
	release, err := h.store.Lock(context.Background(), models.PhaseKey("ict", "EURUSD", models.Bullish))
	require.NoError(t, err)
	defer release()

	_, err = h.scanner.RunTick(context.Background())
	assert.Error(t, err)
	all, _ := h.store.List(context.Background())
	assert.Empty(t, all)
}

func TestEvaluateSetupNewsBlackout(t *testing.T) {
	det := structure.NewDetector(structure.DefaultConfig())
	src := seriesSource{candles: zigzag(80)}
	now := time.Date(2024, 3, 12, 10, 5, 0, 0, time.UTC)
	uc := NewEvaluateUseCase(staticModels{sessionModel()}, src, NewSnapshotLoader(src, det, 120, 2, nil), det,
		rules.NewEvaluator(rules.NewRegistry(), rules.DefaultParams(), nil, nil),
		confluence.NewScorer(confluence.Config{}),
		NewContextProvider(fixedNews{at: now.Add(10 * time.Minute)}, nil))
	uc.now = func() time.Time { return now }

	res, err := uc.EvaluateSetup(context.Background(), "ict", "", "", models.Bullish)
	require.NoError(t, err)
	assert.False(t, res.Score.Valid)
	assert.Equal(t, confluence.ReasonNewsBlackout, res.Score.Reason)
	assert.Len(t, res.Outcomes, 4)
	require.NotNil(t, res.Context.MinutesToNews)
	assert.InDelta(t, 10.0, *res.Context.MinutesToNews, 1e-9)

	uc.ctxp = NewContextProvider(nil, nil)
	res, err = uc.EvaluateSetup(context.Background(), "ict", "", "", models.Bullish)
	require.NoError(t, err)
	assert.True(t, res.Score.Valid)
	assert.Equal(t, 4.0, res.Score.RawScore)

	_, err = uc.EvaluateSetup(context.Background(), "missing", "", "", models.Bullish)
	assert.ErrorIs(t, err, domrepo.ErrModelNotFound)
}

func TestStructureView(t *testing.T) {
	det := structure.NewDetector(structure.DefaultConfig())
	src := seriesSource{candles: zigzag(80)}
	uc := NewEvaluateUseCase(staticModels{}, src, NewSnapshotLoader(src, det, 120, 2, nil), det, nil, nil, nil)

	a, err := uc.Structure(context.Background(), "EURUSD", domrepo.TF1h, 50)
	require.NoError(t, err)
	assert.Len(t, a.Candles, 50)

	_, err = uc.Structure(context.Background(), "EURUSD", "2h", 50)
	assert.Error(t, err)
}

type relaySink struct{ got []models.PhaseEvent }

func (r *relaySink) Publish(ev models.PhaseEvent, _ []byte) { r.got = append(r.got, ev) }

func TestAlertRelay(t *testing.T) {
	sink := &relaySink{}
	r := NewAlertRelay("alerts", sink)
	assert.Equal(t, "alerts", r.Topic())
	require.NoError(t, r.Handle(context.Background(), []byte(`{"type":"phase_completed","model_id":"m","pair":"EURUSD"}`)))
	assert.Error(t, r.Handle(context.Background(), []byte(`{}`)))
	assert.Error(t, r.Handle(context.Background(), []byte(`nope`)))
	assert.Len(t, sink.got, 1)
}
