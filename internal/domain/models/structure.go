package models

import "time"

// Direction is the side a setup or structural event points to.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return d == Bullish || d == Bearish }

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Bullish {
		return Bearish
	}
	return Bullish
}

// Trend is the single structure state advanced by every structural event.
type Trend string

const (
	TrendNeutral Trend = "neutral"
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// TrendOf maps a direction onto the trend it establishes.
func TrendOf(d Direction) Trend {
	switch d {
	case Bullish:
		return TrendBullish
	case Bearish:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// SwingKind distinguishes fractal highs from fractal lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a fractal extreme. ConfirmedAt is the index of the bar at which it became
// knowable, always Index + swing window.
type SwingPoint struct {
	Index       int       `json:"index"`
	Price       float64   `json:"price"`
	Kind        SwingKind `json:"kind"`
	ConfirmedAt int       `json:"confirmed_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventType classifies a structural break.
type EventType string

const (
	EventBOS   EventType = "BOS"
	EventCHoCH EventType = "CHoCH"
	EventMSS   EventType = "MSS"
)

// StructureEvent is a close beyond a tracked swing level.
type StructureEvent struct {
	Type      EventType `json:"type"`
	Direction Direction `json:"direction"`
	Level     float64   `json:"level"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	// TrendAfter is the trend once this event is applied.
	TrendAfter Trend `json:"trend_after"`
}

// FVG is a three-candle imbalance. Index is the middle candle.
type FVG struct {
	Direction Direction `json:"direction"`
	Index     int       `json:"index"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	CE        float64   `json:"ce"`
	Filled    bool      `json:"filled"`
	FilledAt  int       `json:"filled_at,omitempty"`
}

// Contains reports whether price lies inside the gap bounds.
func (g FVG) Contains(price float64) bool { return price >= g.Lower && price <= g.Upper }

// EqualLevel is an averaged pair of sequential same-side swings.
type EqualLevel struct {
	Kind        SwingKind `json:"kind"`
	Price       float64   `json:"price"`
	FirstIndex  int       `json:"first_index"`
	SecondIndex int       `json:"second_index"`
	ConfirmedAt int       `json:"confirmed_at"`
}

// LiquiditySweep is an intrabar breach of an equal level that closes back inside.
// Direction is the expected move after the sweep: equal highs swept give a bearish sweep.
type LiquiditySweep struct {
	Direction Direction `json:"direction"`
	Index     int       `json:"index"`
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBlockStatus tracks how later price interacted with a zone.
type OrderBlockStatus string

const (
	OrderBlockActive OrderBlockStatus = "active"
	OrderBlockTested OrderBlockStatus = "tested"
	OrderBlockBroken OrderBlockStatus = "broken"
)

// OrderBlock is the last opposite-colored candle before a structural shift.
type OrderBlock struct {
	Direction  Direction        `json:"direction"`
	CreatedIdx int              `json:"created_idx"`
	CandleIdx  int              `json:"candle_idx"`
	Upper      float64          `json:"upper"`
	Lower      float64          `json:"lower"`
	Status     OrderBlockStatus `json:"status"`
	Touches    int              `json:"touches"`
}

// VolatilityState compares current ATR to its rolling mean.
type VolatilityState string

const (
	VolExpansion   VolatilityState = "expansion"
	VolContraction VolatilityState = "contraction"
	VolNormal      VolatilityState = "normal"
)

// VolBand is the coarse return-volatility percentile band.
type VolBand string

const (
	VolBandLow     VolBand = "low"
	VolBandNormal  VolBand = "normal"
	VolBandHigh    VolBand = "high"
	VolBandExtreme VolBand = "extreme"
)

// Regime is the coarse volatility/trend label for a series.
type Regime struct {
	State      VolatilityState `json:"state"`
	Band       VolBand         `json:"band"`
	ATR        float64         `json:"atr"`
	ATRRatio   float64         `json:"atr_ratio"`
	Percentile float64         `json:"percentile"`
	Trend      Trend           `json:"trend"`
}

// Analysis is everything the structure detector derives from one candle series.
type Analysis struct {
	Candles     []Candle         `json:"-"`
	Swings      []SwingPoint     `json:"swings"`
	Events      []StructureEvent `json:"events"`
	Trend       Trend            `json:"trend"`
	FVGs        []FVG            `json:"fvgs"`
	EqualLevels []EqualLevel     `json:"equal_levels"`
	Sweeps      []LiquiditySweep `json:"sweeps"`
	OrderBlocks []OrderBlock     `json:"order_blocks"`
	Regime      Regime           `json:"regime"`
}

// Empty reports whether the detector had enough history to produce output.
func (a *Analysis) Empty() bool { return a == nil || len(a.Candles) == 0 }

// Last returns the most recent candle and false when there is none.
func (a *Analysis) Last() (Candle, bool) {
	if a.Empty() {
		return Candle{}, false
	}
	return a.Candles[len(a.Candles)-1], true
}
