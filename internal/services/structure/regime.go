package structure

import (
	"SetupScan/internal/domain/models"
	"SetupScan/internal/services/features"
)

const (
	expansionRatio   = 1.2
	contractionRatio = 0.8
)

// regime compares the latest ATR to its rolling mean and ranks the latest return
// volatility against its own recent history.
func (d *Detector) regime(cs []models.Candle, atr []float64, trend models.Trend) models.Regime {
	r := models.Regime{State: models.VolNormal, Band: models.VolBandNormal, Trend: trend}
	last := len(atr) - 1
	if last < 0 {
		return r
	}
	r.ATR = atr[last]

	start := len(atr) - d.cfg.ATRMeanPeriod
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range atr[start:] {
		sum += v
	}
	if mean := sum / float64(len(atr)-start); mean > 0 {
		r.ATRRatio = r.ATR / mean
		switch {
		case r.ATRRatio > expansionRatio:
			r.State = models.VolExpansion
		case r.ATRRatio < contractionRatio:
			r.State = models.VolContraction
		}
	}

	rets := features.ComputeLogReturns(cs)
	if len(rets) < d.cfg.VolWindow+1 {
		return r
	}
	rolling := features.RollingStdDev(rets, d.cfg.VolWindow)[d.cfg.VolWindow-1:]
	if len(rolling) > d.cfg.VolHistory {
		rolling = rolling[len(rolling)-d.cfg.VolHistory:]
	}
	current := rolling[len(rolling)-1]
	r.Percentile = features.Percentile(rolling, current)
	r.Band = BandFor(r.Percentile)
	return r
}

// BandFor maps a volatility percentile onto its band.
func BandFor(pct float64) models.VolBand {
	switch {
	case pct < 25:
		return models.VolBandLow
	case pct < 75:
		return models.VolBandNormal
	case pct < 95:
		return models.VolBandHigh
	default:
		return models.VolBandExtreme
	}
}
