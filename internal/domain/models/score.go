package models

import "time"

// Tier is the discrete alert-quality bucket.
type Tier string

const (
	TierNone Tier = ""
	TierA    Tier = "A"
	TierB    Tier = "B"
	TierC    Tier = "C"
)

// Rank orders tiers so that a better tier compares greater; no tier ranks 0.
func (t Tier) Rank() int {
	switch t {
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	default:
		return 0
	}
}

// Session labels the trading window a timestamp falls into.
type Session string

const (
	SessionAsia    Session = "asia"
	SessionLondon  Session = "london"
	SessionNewYork Session = "new_york"
	SessionOverlap Session = "overlap"
	SessionOff     Session = "off"
)

// SessionAt labels t by UTC hour: asia 00-07, london 07-12, the london/new york overlap
// 12-16, new_york 16-21, off otherwise.
func SessionAt(t time.Time) Session {
	switch h := t.UTC().Hour(); {
	case h < 7:
		return SessionAsia
	case h < 12:
		return SessionLondon
	case h < 16:
		return SessionOverlap
	case h < 21:
		return SessionNewYork
	default:
		return SessionOff
	}
}

// MarketContext holds the live signals that enter scoring from outside the candle series.
type MarketContext struct {
	Session  Session `json:"session"`
	ATRRatio float64 `json:"atr_ratio"`
	VolBand  VolBand `json:"vol_band"`
	// MinutesToNews is nil when no high-impact event is known.
	MinutesToNews *float64 `json:"minutes_to_news,omitempty"`
	MediumBias    Trend    `json:"medium_bias"`
	HigherBias    Trend    `json:"higher_bias"`
}

// Setup is one candidate trade with the outcome of every rule already evaluated.
type Setup struct {
	ModelID   string          `json:"model_id"`
	Pair      string          `json:"pair"`
	Timeframe string          `json:"timeframe"`
	Direction Direction       `json:"direction"`
	Outcomes  map[string]bool `json:"outcomes"`
	Context   MarketContext   `json:"context"`
}

// Modifier is one additive adjustment to the raw score.
type Modifier struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ScoreResult is the outcome of one confluence evaluation.
type ScoreResult struct {
	Valid           bool       `json:"valid"`
	Reason          string     `json:"reason,omitempty"`
	MandatoryFailed []string   `json:"mandatory_failed,omitempty"`
	PassedRules     []string   `json:"passed_rules,omitempty"`
	FailedRules     []string   `json:"failed_rules,omitempty"`
	RawScore        float64    `json:"raw_score"`
	Modifiers       []Modifier `json:"modifiers,omitempty"`
	FinalScore      float64    `json:"final_score"`
	Tier            Tier       `json:"tier"`
}
