package rules

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/domain/repository"
)

type mapSource map[repository.Timeframe]*models.Analysis

func (m mapSource) Analysis(_ string, tf repository.Timeframe) *models.Analysis { return m[tf] }

type recordingMetrics struct {
	repository.NopMetrics
	mu         sync.Mutex
	unresolved map[string]int
	checkErrs  map[string]int
	results    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{unresolved: map[string]int{}, checkErrs: map[string]int{}, results: map[string]int{}}
}

func (r *recordingMetrics) RecordUnresolvedRule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved[id]++
}

func (r *recordingMetrics) RecordCheckError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkErrs[kind]++
}

func (r *recordingMetrics) RecordRule(kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[kind+"/"+result]++
}

var base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func flat(n int, at time.Time) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Timestamp: at.Add(time.Duration(i-n+1) * time.Hour), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 100}
	}
	return out
}

func newTestEvaluator(m *recordingMetrics) *Evaluator {
	return NewEvaluator(NewRegistry(), DefaultParams(), nil, m)
}

func TestEvaluateHTFReadsHigherTimeframe(t *testing.T) {
	m := newRecordingMetrics()
	e := newTestEvaluator(m)
	rule := models.Rule{ID: "htf", Tag: string(KindHTFTrendAligned)}
	src := mapSource{
		repository.TF4h: {Candles: flat(5, base), Trend: models.TrendBullish},
		repository.TF1h: {Candles: flat(5, base), Trend: models.TrendBearish},
	}

	assert.True(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bearish, src))

	delete(src, repository.TF4h)
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))
	assert.Equal(t, 1, m.results["htf_trend_aligned/no_data"])
}

func TestEvaluateUnresolvedCountsAsFailed(t *testing.T) {
	m := newRecordingMetrics()
	e := newTestEvaluator(m)
	src := mapSource{repository.TF1h: {Candles: flat(5, base)}}

	assert.False(t, e.Evaluate(models.Rule{ID: "x", Name: "gut feeling"}, "EURUSD", repository.TF1h, models.Bullish, src))
	assert.Equal(t, 1, m.unresolved["x"])
}

func TestEvaluateRecoversPanics(t *testing.T) {
	m := newRecordingMetrics()
	reg := newRegistry([]Definition{
		{Kind: "boom", check: func(Input) (bool, error) { panic("index out of range") }},
		{Kind: "broken", check: func(Input) (bool, error) { return true, errors.New("bad input") }},
	})
	e := NewEvaluator(reg, DefaultParams(), nil, m)
	src := mapSource{repository.TF1h: {Candles: flat(5, base)}}

	assert.False(t, e.Evaluate(models.Rule{ID: "a", Tag: "boom"}, "EURUSD", repository.TF1h, models.Bullish, src))
	assert.False(t, e.Evaluate(models.Rule{ID: "b", Tag: "broken"}, "EURUSD", repository.TF1h, models.Bullish, src))
	assert.Equal(t, 1, m.checkErrs["boom"])
	assert.Equal(t, 1, m.checkErrs["broken"])
}

func TestEvaluateSessionWindow(t *testing.T) {
	e := newTestEvaluator(newRecordingMetrics())
	rule := models.Rule{ID: "s", Name: "killzone"}

	in := mapSource{repository.TF1h: {Candles: flat(5, base.Add(13*time.Hour))}}
	out := mapSource{repository.TF1h: {Candles: flat(5, base.Add(22*time.Hour))}}
	assert.True(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, in))
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, out))
}

func TestEvaluateVolumeSpike(t *testing.T) {
	e := newTestEvaluator(newRecordingMetrics())
	rule := models.Rule{ID: "v", Tag: string(KindVolumeSpike)}
	cs := flat(25, base)
	src := mapSource{repository.TF1h: {Candles: cs}}
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))

	spiked := append([]models.Candle(nil), cs...)
	spiked[len(spiked)-1].Volume = 200
	src[repository.TF1h] = &models.Analysis{Candles: spiked}
	assert.True(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))
}

func TestEvaluateSweepReclaimUsesLowerTimeframe(t *testing.T) {
	e := newTestEvaluator(newRecordingMetrics())
	rule := models.Rule{ID: "sr", Tag: string(KindSweepReclaim)}
	cs := flat(5, base)
	cs[2] = models.Candle{Timestamp: cs[2].Timestamp, Open: 100, High: 100.7, Low: 98, Close: 100.5, Volume: 100}
	ltf := &models.Analysis{
		Candles: cs,
		Sweeps:  []models.LiquiditySweep{{Direction: models.Bullish, Index: 2, Level: 99}},
	}

	assert.True(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, mapSource{repository.TF15m: ltf}))
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, mapSource{repository.TF1h: ltf}))
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bearish, mapSource{repository.TF15m: ltf}))
}

func TestEvaluateOrderBlockProximity(t *testing.T) {
	e := newTestEvaluator(newRecordingMetrics())
	rule := models.Rule{ID: "ob", Tag: string(KindOBProximity)}
	cs := flat(5, base)
	a := &models.Analysis{
		Candles:     cs,
		Regime:      models.Regime{ATR: 1},
		OrderBlocks: []models.OrderBlock{{Direction: models.Bullish, Upper: 100, Lower: 99, Status: models.OrderBlockTested}},
	}
	src := mapSource{repository.TF1h: a}
	// Last close is 100.5, half an ATR above the zone.
	assert.True(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))

	a.OrderBlocks[0].Status = models.OrderBlockBroken
	assert.False(t, e.Evaluate(rule, "EURUSD", repository.TF1h, models.Bullish, src))
}

func TestEvaluateAllKeysByRuleID(t *testing.T) {
	e := newTestEvaluator(newRecordingMetrics())
	src := mapSource{repository.TF4h: {Candles: flat(5, base), Trend: models.TrendBullish}}
	out := e.EvaluateAll([]models.Rule{
		{ID: "a", Tag: string(KindHTFTrendAligned)},
		{ID: "b", Name: "nothing useful"},
	}, "EURUSD", repository.TF1h, models.Bullish, src)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, out)
}
