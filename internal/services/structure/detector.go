package structure

import (
	"math"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/services/features"
)

// Config tunes the detector. Zero fields fall back to defaults in NewDetector.
type Config struct {
	SwingWindow        int
	LiquidityLookback  int
	OrderBlockLookback int
	ATRPeriod          int
	ATRMeanPeriod      int
	EqualTolATRFrac    float64
	EqualTolPriceFrac  float64
	MinBodyRatio       float64
	VolWindow          int
	VolHistory         int
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		SwingWindow:        3,
		LiquidityLookback:  20,
		OrderBlockLookback: 12,
		ATRPeriod:          14,
		ATRMeanPeriod:      50,
		EqualTolATRFrac:    0.10,
		EqualTolPriceFrac:  0.0005,
		MinBodyRatio:       0.5,
		VolWindow:          20,
		VolHistory:         100,
	}
}

// Detector derives market structure from one candle series. It holds no state between
// calls and is safe for concurrent use.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SwingWindow <= 0 {
		cfg.SwingWindow = def.SwingWindow
	}
	if cfg.LiquidityLookback <= 0 {
		cfg.LiquidityLookback = def.LiquidityLookback
	}
	if cfg.OrderBlockLookback <= 0 {
		cfg.OrderBlockLookback = def.OrderBlockLookback
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.ATRMeanPeriod <= 0 {
		cfg.ATRMeanPeriod = def.ATRMeanPeriod
	}
	if cfg.EqualTolATRFrac <= 0 {
		cfg.EqualTolATRFrac = def.EqualTolATRFrac
	}
	if cfg.EqualTolPriceFrac <= 0 {
		cfg.EqualTolPriceFrac = def.EqualTolPriceFrac
	}
	if cfg.MinBodyRatio <= 0 {
		cfg.MinBodyRatio = def.MinBodyRatio
	}
	if cfg.VolWindow <= 1 {
		cfg.VolWindow = def.VolWindow
	}
	if cfg.VolHistory <= 0 {
		cfg.VolHistory = def.VolHistory
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// Analyze runs every detection pass over candles. Invalid rows are dropped; a series
// shorter than twice the swing window yields an empty analysis with a neutral trend.
func (d *Detector) Analyze(candles []models.Candle) *models.Analysis {
	a := &models.Analysis{
		Trend:  models.TrendNeutral,
		Regime: models.Regime{State: models.VolNormal, Band: models.VolBandNormal, Trend: models.TrendNeutral},
	}
	cs := models.CleanCandles(candles)
	if len(cs) < 2*d.cfg.SwingWindow || len(cs) < 3 {
		return a
	}
	a.Candles = cs

	atr := features.ATR(cs, d.cfg.ATRPeriod)
	d.scanStructure(cs, atr, a)
	a.FVGs = d.detectFVGs(cs)
	a.Sweeps = d.detectSweeps(cs, a.EqualLevels)
	d.trackOrderBlocks(cs, a.OrderBlocks)
	a.Regime = d.regime(cs, atr, a.Trend)
	return a
}

type trackedLevel struct {
	price float64
	index int
	ok    bool
}

// scanStructure walks the series bar by bar. A swing at j is only registered once bar
// j+window has been processed, so no break can use a level that was not yet knowable.
func (d *Detector) scanStructure(cs []models.Candle, atr []float64, a *models.Analysis) {
	w := d.cfg.SwingWindow
	var hi, lo trackedLevel
	var prevHigh, prevLow *models.SwingPoint
	trend := models.TrendNeutral
	flipIdx := 0

	for i := range cs {
		if j := i - w; j >= w {
			if isSwingHigh(cs, j, w) {
				sp := models.SwingPoint{Index: j, Price: cs[j].High, Kind: models.SwingHigh, ConfirmedAt: i, Timestamp: cs[j].Timestamp}
				a.Swings = append(a.Swings, sp)
				hi = trackedLevel{price: sp.Price, index: j, ok: true}
				if lvl, ok := d.pairEqual(prevHigh, sp, atr); ok {
					a.EqualLevels = append(a.EqualLevels, lvl)
				}
				prevHigh = &sp
			}
			if isSwingLow(cs, j, w) {
				sp := models.SwingPoint{Index: j, Price: cs[j].Low, Kind: models.SwingLow, ConfirmedAt: i, Timestamp: cs[j].Timestamp}
				a.Swings = append(a.Swings, sp)
				lo = trackedLevel{price: sp.Price, index: j, ok: true}
				if lvl, ok := d.pairEqual(prevLow, sp, atr); ok {
					a.EqualLevels = append(a.EqualLevels, lvl)
				}
				prevLow = &sp
			}
		}

		c := cs[i]
		var dir models.Direction
		var level float64
		// One break per bar. A tracked high never sits below a tracked low: whichever
		// swing confirmed later closed on its side of the other, so no close clears both.
		switch {
		case hi.ok && c.Close > hi.price:
			dir, level = models.Bullish, hi.price
			hi.ok = false
		case lo.ok && c.Close < lo.price:
			dir, level = models.Bearish, lo.price
			lo.ok = false
		default:
			continue
		}

		ev := models.StructureEvent{
			Type:      classify(cs, i, dir, trend, flipIdx),
			Direction: dir,
			Level:     level,
			Index:     i,
			Timestamp: c.Timestamp,
		}
		next := models.TrendOf(dir)
		if next != trend {
			flipIdx = i
		}
		trend = next
		ev.TrendAfter = trend
		a.Events = append(a.Events, ev)

		if ob, ok := d.findOrderBlock(cs, i, dir); ok {
			a.OrderBlocks = append(a.OrderBlocks, ob)
		}
	}
	a.Trend = trend
}

// classify labels a break: BOS with the trend, CHoCH against it, MSS when the close also
// clears the reaction extreme printed since the last flip.
func classify(cs []models.Candle, i int, dir models.Direction, trend models.Trend, flipIdx int) models.EventType {
	against := (dir == models.Bullish && trend == models.TrendBearish) ||
		(dir == models.Bearish && trend == models.TrendBullish)
	if !against {
		return models.EventBOS
	}
	px := cs[i].Close
	if dir == models.Bullish {
		reaction := math.Inf(-1)
		for k := flipIdx; k < i; k++ {
			reaction = math.Max(reaction, cs[k].High)
		}
		if px > reaction {
			return models.EventMSS
		}
		return models.EventCHoCH
	}
	reaction := math.Inf(1)
	for k := flipIdx; k < i; k++ {
		reaction = math.Min(reaction, cs[k].Low)
	}
	if px < reaction {
		return models.EventMSS
	}
	return models.EventCHoCH
}

func isSwingHigh(cs []models.Candle, j, w int) bool {
	if j-w < 0 || j+w >= len(cs) {
		return false
	}
	h := cs[j].High
	for k := j - w; k <= j+w; k++ {
		if k != j && cs[k].High >= h {
			return false
		}
	}
	return true
}

func isSwingLow(cs []models.Candle, j, w int) bool {
	if j-w < 0 || j+w >= len(cs) {
		return false
	}
	l := cs[j].Low
	for k := j - w; k <= j+w; k++ {
		if k != j && cs[k].Low <= l {
			return false
		}
	}
	return true
}

// pairEqual joins two sequential same-side swings into one level when they sit within
// max(ATR fraction, price fraction) of each other.
func (d *Detector) pairEqual(prev *models.SwingPoint, cur models.SwingPoint, atr []float64) (models.EqualLevel, bool) {
	if prev == nil {
		return models.EqualLevel{}, false
	}
	tol := math.Max(d.cfg.EqualTolATRFrac*atr[cur.Index], d.cfg.EqualTolPriceFrac*cur.Price)
	if math.Abs(cur.Price-prev.Price) > tol {
		return models.EqualLevel{}, false
	}
	return models.EqualLevel{
		Kind:        cur.Kind,
		Price:       (cur.Price + prev.Price) / 2,
		FirstIndex:  prev.Index,
		SecondIndex: cur.Index,
		ConfirmedAt: cur.ConfirmedAt,
	}, true
}
