package models

import (
	"math"
	"time"
)

// Candle represents one OHLCV bucket for a (pair, timeframe) series.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether the row is a usable OHLCV record.
func (c Candle) Valid() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume < 0 {
		return false
	}
	if c.High < c.Low {
		return false
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return false
	}
	return !c.Timestamp.IsZero()
}

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body is the absolute open/close distance.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// Bullish reports a close above the open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports a close below the open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// CleanCandles drops invalid rows and rows that do not strictly advance in time.
// The input slice is never modified.
func CleanCandles(in []Candle) []Candle {
	out := make([]Candle, 0, len(in))
	for _, c := range in {
		if !c.Valid() {
			continue
		}
		if n := len(out); n > 0 && !c.Timestamp.After(out[n-1].Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}
