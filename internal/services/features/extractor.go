package features

import (
	"math"
	"sort"

	"SetupScan/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// StdDev is the sample standard deviation of the last window values ending at end (exclusive).
func StdDev(xs []float64, end, window int) float64 {
	if window <= 1 || end < window || end > len(xs) {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for i := end - window; i < end; i++ {
		sum += xs[i]
		sum2 += xs[i] * xs[i]
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// RollingStdDev returns the rolling sample stddev series; entries before the first full
// window are zero.
func RollingStdDev(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := window; i <= len(xs); i++ {
		out[i-1] = StdDev(xs, i, window)
	}
	return out
}

// Percentile returns the share (0..100) of sample values strictly below v.
func Percentile(sample []float64, v float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, v)
	return 100 * float64(below) / float64(len(sorted))
}

// TrueRange series; the first bar uses its own range.
func TrueRange(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			pc := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-pc), math.Abs(c.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR is a simple moving average of true range. Entries before the first full period are
// the running mean so early bars still carry a usable scale.
func ATR(candles []models.Candle, period int) []float64 {
	tr := TrueRange(candles)
	out := make([]float64, len(tr))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
			out[i] = sum / float64(period)
			continue
		}
		out[i] = sum / float64(i+1)
	}
	return out
}

// SMA of xs over period; entries before the first full period are zero.
func SMA(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range xs {
		sum += v
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA of closes seeded with the first close.
func EMA(candles []models.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 || period <= 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = candles[0].Close
	for i := 1; i < len(candles); i++ {
		out[i] = candles[i].Close*k + out[i-1]*(1-k)
	}
	return out
}

// RSI with Wilder smoothing. Returns 50 when there is not enough data.
func RSI(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) <= period {
		return 50
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := candles[i].Close - candles[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	for i := period + 1; i < len(candles); i++ {
		d := candles[i].Close - candles[i-1].Close
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// Volumes extracts the volume column.
func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
