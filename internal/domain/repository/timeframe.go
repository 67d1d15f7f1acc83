package repository

import "time"

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

// ladder is ordered from finest to coarsest.
var ladder = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d, TF1w}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	return position(tf) >= 0
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Higher returns the next coarser timeframe ("1h" -> "4h"). The coarsest maps to itself.
func (tf Timeframe) Higher() Timeframe {
	i := position(tf)
	if i < 0 {
		return tf
	}
	if i == len(ladder)-1 {
		return tf
	}
	return ladder[i+1]
}

// Lower returns the next finer timeframe ("1h" -> "15m"). The finest maps to itself.
func (tf Timeframe) Lower() Timeframe {
	i := position(tf)
	if i <= 0 {
		return tf
	}
	return ladder[i-1]
}

// Duration is the bucket length of tf, zero if unknown.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	case TF1w:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

func position(tf Timeframe) int {
	for i, t := range ladder {
		if t == tf {
			return i
		}
	}
	return -1
}
