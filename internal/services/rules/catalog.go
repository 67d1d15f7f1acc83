package rules

import (
	"errors"
	"math"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/domain/repository"
	"SetupScan/internal/services/features"
	"SetupScan/internal/services/structure"
)

// Kind names one concrete check. The set is closed; model rules map onto it at load time.
type Kind string

const (
	KindHTFTrendAligned Kind = "htf_trend_aligned"
	KindBOSConfirmed    Kind = "bos_confirmed"
	KindCHoCHDetected   Kind = "choch_detected"
	KindMSSConfirmed    Kind = "mss_confirmed"
	KindOBProximity     Kind = "ob_proximity"
	KindFVGProximity    Kind = "fvg_proximity"
	KindLiquiditySweep  Kind = "liquidity_sweep"
	KindSweepReclaim    Kind = "sweep_reclaim"
	KindVolumeSpike     Kind = "volume_spike"
	KindSessionWindow   Kind = "session_window"
	KindRSIConfirm      Kind = "rsi_confirm"
	KindEMAAlignment    Kind = "ema_alignment"
	KindPremiumDiscount Kind = "premium_discount"
	KindDisplacement    Kind = "displacement"
)

// Scope selects which timeframe a check reads relative to the rule's own timeframe.
type Scope int

const (
	ScopeSame Scope = iota
	ScopeHigher
	ScopeLower
)

// Resolve maps tf onto the timeframe the scope reads.
func (s Scope) Resolve(tf repository.Timeframe) repository.Timeframe {
	switch s {
	case ScopeHigher:
		return tf.Higher()
	case ScopeLower:
		return tf.Lower()
	default:
		return tf
	}
}

var errNoData = errors.New("no analysis available")

// Params are the numeric thresholds the checks use.
type Params struct {
	RecentBars       int
	ProximityATR     float64
	ReclaimRatio     float64
	VolumeRatio      float64
	VolumePeriod     int
	RSIPeriod        int
	EMAFast          int
	EMASlow          int
	DisplacementATR  float64
	DisplacementBars int
	RangeBars        int
}

func DefaultParams() Params {
	return Params{
		RecentBars:       20,
		ProximityATR:     0.5,
		ReclaimRatio:     2.0,
		VolumeRatio:      1.5,
		VolumePeriod:     20,
		RSIPeriod:        14,
		EMAFast:          20,
		EMASlow:          50,
		DisplacementATR:  1.5,
		DisplacementBars: 3,
		RangeBars:        50,
	}
}

// Input is what a single check sees.
type Input struct {
	Pair      string
	Timeframe repository.Timeframe
	Direction models.Direction
	Analysis  *models.Analysis
	Params    Params
}

type checkFunc func(in Input) (bool, error)

// Definition describes one catalog entry. Keywords drive fuzzy matching of free-form names.
type Definition struct {
	Kind     Kind
	Aliases  []string
	Keywords []string
	Scope    Scope
	check    checkFunc
}

// catalog order breaks fuzzy-match ties.
var catalog = []Definition{
	{Kind: KindHTFTrendAligned, Aliases: []string{"htf_bias", "htf_alignment", "higher_timeframe_trend"},
		Keywords: []string{"htf", "higher", "timeframe", "trend", "bias", "aligned", "alignment"}, Scope: ScopeHigher, check: checkTrendAligned},
	{Kind: KindBOSConfirmed, Aliases: []string{"bos", "break_of_structure"},
		Keywords: []string{"bos", "break", "structure", "confirmed"}, Scope: ScopeSame, check: checkBOS},
	{Kind: KindCHoCHDetected, Aliases: []string{"choch", "change_of_character"},
		Keywords: []string{"choch", "change", "character"}, Scope: ScopeSame, check: checkCHoCH},
	{Kind: KindMSSConfirmed, Aliases: []string{"mss", "market_structure_shift"},
		Keywords: []string{"mss", "market", "structure", "shift"}, Scope: ScopeSame, check: checkMSS},
	{Kind: KindOBProximity, Aliases: []string{"order_block", "ob_retest", "order_block_retest"},
		Keywords: []string{"ob", "order", "block", "retest", "proximity", "zone"}, Scope: ScopeSame, check: checkOBProximity},
	{Kind: KindFVGProximity, Aliases: []string{"fvg", "fair_value_gap", "fvg_retest"},
		Keywords: []string{"fvg", "fair", "value", "gap", "imbalance", "proximity"}, Scope: ScopeSame, check: checkFVGProximity},
	{Kind: KindLiquiditySweep, Aliases: []string{"sweep", "liquidity_grab", "stop_hunt"},
		Keywords: []string{"liquidity", "sweep", "grab", "equal", "highs", "lows"}, Scope: ScopeSame, check: checkSweep},
	{Kind: KindSweepReclaim, Aliases: []string{"reclaim", "wick_rejection", "ltf_reclaim"},
		Keywords: []string{"sweep", "reclaim", "wick", "rejection", "ltf"}, Scope: ScopeLower, check: checkSweepReclaim},
	{Kind: KindVolumeSpike, Aliases: []string{"volume", "volume_confirmation"},
		Keywords: []string{"volume", "spike", "surge", "confirmation"}, Scope: ScopeSame, check: checkVolumeSpike},
	{Kind: KindSessionWindow, Aliases: []string{"killzone", "session", "kill_zone"},
		Keywords: []string{"session", "window", "killzone", "kill", "zone", "london", "york"}, Scope: ScopeSame, check: checkSession},
	{Kind: KindRSIConfirm, Aliases: []string{"rsi", "rsi_filter"},
		Keywords: []string{"rsi", "momentum", "confirm", "filter"}, Scope: ScopeSame, check: checkRSI},
	{Kind: KindEMAAlignment, Aliases: []string{"ema", "ema_trend", "ema_cross"},
		Keywords: []string{"ema", "moving", "average", "alignment", "cross"}, Scope: ScopeSame, check: checkEMA},
	{Kind: KindPremiumDiscount, Aliases: []string{"premium", "discount", "pd_array"},
		Keywords: []string{"premium", "discount", "equilibrium", "range"}, Scope: ScopeSame, check: checkPremiumDiscount},
	{Kind: KindDisplacement, Aliases: []string{"impulse", "displacement_candle"},
		Keywords: []string{"displacement", "impulse", "expansion", "candle"}, Scope: ScopeSame, check: checkDisplacement},
}

func lastN(n, length int) int {
	if n <= 0 || n > length {
		return 0
	}
	return length - n
}

func recentEvent(in Input, match func(models.StructureEvent) bool) bool {
	a := in.Analysis
	since := lastN(in.Params.RecentBars, len(a.Candles))
	for i := len(a.Events) - 1; i >= 0; i-- {
		ev := a.Events[i]
		if ev.Index < since {
			return false
		}
		if ev.Direction == in.Direction && match(ev) {
			return true
		}
	}
	return false
}

func checkTrendAligned(in Input) (bool, error) {
	return in.Analysis.Trend == models.TrendOf(in.Direction), nil
}

func checkBOS(in Input) (bool, error) {
	return recentEvent(in, func(ev models.StructureEvent) bool {
		return ev.Type == models.EventBOS || ev.Type == models.EventMSS
	}), nil
}

func checkCHoCH(in Input) (bool, error) {
	return recentEvent(in, func(ev models.StructureEvent) bool {
		return ev.Type == models.EventCHoCH || ev.Type == models.EventMSS
	}), nil
}

func checkMSS(in Input) (bool, error) {
	return recentEvent(in, func(ev models.StructureEvent) bool { return ev.Type == models.EventMSS }), nil
}

// zoneDistance is zero inside [lower, upper] and the gap to the nearest edge outside.
func zoneDistance(px, lower, upper float64) float64 {
	switch {
	case px < lower:
		return lower - px
	case px > upper:
		return px - upper
	default:
		return 0
	}
}

func checkOBProximity(in Input) (bool, error) {
	last, _ := in.Analysis.Last()
	tol := in.Params.ProximityATR * in.Analysis.Regime.ATR
	for _, ob := range structure.LiveOrderBlocks(in.Analysis, in.Direction) {
		if zoneDistance(last.Close, ob.Lower, ob.Upper) <= tol {
			return true, nil
		}
	}
	return false, nil
}

func checkFVGProximity(in Input) (bool, error) {
	last, _ := in.Analysis.Last()
	tol := in.Params.ProximityATR * in.Analysis.Regime.ATR
	for _, g := range structure.UnfilledFVGs(in.Analysis, in.Direction) {
		if zoneDistance(last.Close, g.Lower, g.Upper) <= tol {
			return true, nil
		}
	}
	return false, nil
}

func recentSweeps(in Input) []models.LiquiditySweep {
	since := lastN(in.Params.RecentBars, len(in.Analysis.Candles))
	var out []models.LiquiditySweep
	for _, s := range in.Analysis.Sweeps {
		if s.Index >= since && s.Direction == in.Direction {
			out = append(out, s)
		}
	}
	return out
}

func checkSweep(in Input) (bool, error) {
	return len(recentSweeps(in)) > 0, nil
}

// checkSweepReclaim requires a recent sweep whose candle rejected the level with a wick at
// least ReclaimRatio times its body.
func checkSweepReclaim(in Input) (bool, error) {
	for _, s := range recentSweeps(in) {
		c := in.Analysis.Candles[s.Index]
		var wick float64
		if in.Direction == models.Bullish {
			wick = math.Min(c.Open, c.Close) - c.Low
		} else {
			wick = c.High - math.Max(c.Open, c.Close)
		}
		body := c.Body()
		if body == 0 && wick > 0 {
			return true, nil
		}
		if body > 0 && wick/body >= in.Params.ReclaimRatio {
			return true, nil
		}
	}
	return false, nil
}

func checkVolumeSpike(in Input) (bool, error) {
	vols := features.Volumes(in.Analysis.Candles)
	p := in.Params.VolumePeriod
	if len(vols) < p+1 {
		return false, errNoData
	}
	avg := 0.0
	for _, v := range vols[len(vols)-1-p : len(vols)-1] {
		avg += v
	}
	avg /= float64(p)
	if avg <= 0 {
		return false, nil
	}
	return vols[len(vols)-1]/avg >= in.Params.VolumeRatio, nil
}

func checkSession(in Input) (bool, error) {
	last, _ := in.Analysis.Last()
	switch models.SessionAt(last.Timestamp) {
	case models.SessionLondon, models.SessionNewYork, models.SessionOverlap:
		return true, nil
	default:
		return false, nil
	}
}

func checkRSI(in Input) (bool, error) {
	if len(in.Analysis.Candles) <= in.Params.RSIPeriod {
		return false, errNoData
	}
	rsi := features.RSI(in.Analysis.Candles, in.Params.RSIPeriod)
	if in.Direction == models.Bullish {
		return rsi >= 50 && rsi <= 70, nil
	}
	return rsi >= 30 && rsi <= 50, nil
}

func checkEMA(in Input) (bool, error) {
	cs := in.Analysis.Candles
	if len(cs) < in.Params.EMASlow {
		return false, errNoData
	}
	fast := features.EMA(cs, in.Params.EMAFast)
	slow := features.EMA(cs, in.Params.EMASlow)
	n := len(cs) - 1
	px := cs[n].Close
	if in.Direction == models.Bullish {
		return fast[n] > slow[n] && px > fast[n], nil
	}
	return fast[n] < slow[n] && px < fast[n], nil
}

// checkPremiumDiscount wants longs below equilibrium of the recent dealing range and
// shorts above it.
func checkPremiumDiscount(in Input) (bool, error) {
	cs := in.Analysis.Candles[lastN(in.Params.RangeBars, len(in.Analysis.Candles)):]
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range cs {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if hi <= lo {
		return false, nil
	}
	eq := (hi + lo) / 2
	px := cs[len(cs)-1].Close
	if in.Direction == models.Bullish {
		return px < eq, nil
	}
	return px > eq, nil
}

func checkDisplacement(in Input) (bool, error) {
	atr := in.Analysis.Regime.ATR
	if atr <= 0 {
		return false, nil
	}
	cs := in.Analysis.Candles[lastN(in.Params.DisplacementBars, len(in.Analysis.Candles)):]
	for _, c := range cs {
		dirOK := (in.Direction == models.Bullish && c.Bullish()) || (in.Direction == models.Bearish && c.Bearish())
		if dirOK && c.Body() >= in.Params.DisplacementATR*atr {
			return true, nil
		}
	}
	return false, nil
}
