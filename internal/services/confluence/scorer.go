package confluence

import (
	"fmt"

	"SetupScan/internal/domain/models"
)

const (
	ReasonMandatoryFailed = "mandatory_failed"
	ReasonNewsBlackout    = "news_blackout"
	ReasonBelowMinScore   = "below_min_score"

	ModifierVolatility = "volatility"
	ModifierHTF        = "htf_alignment"
)

// Config holds the scorer's context thresholds.
type Config struct {
	NewsBlackoutMinutes float64
}

// Scorer turns rule outcomes plus market context into a tiered score. Score is a pure
// function of its arguments.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	if cfg.NewsBlackoutMinutes <= 0 {
		cfg.NewsBlackoutMinutes = 30
	}
	return &Scorer{cfg: cfg}
}

// Score evaluates setup against model. Gates run in order and stop at the first failure:
// mandatory rules, then the news blackout. Rules absent from setup.Outcomes count as failed.
func (s *Scorer) Score(setup models.Setup, model models.Model) models.ScoreResult {
	var res models.ScoreResult

	for _, r := range model.Rules {
		if r.Mandatory && !setup.Outcomes[r.ID] {
			res.MandatoryFailed = append(res.MandatoryFailed, r.ID)
		}
	}
	if len(res.MandatoryFailed) > 0 {
		res.Reason = ReasonMandatoryFailed
		return res
	}

	if m := setup.Context.MinutesToNews; m != nil && *m >= 0 && *m <= s.cfg.NewsBlackoutMinutes {
		res.Reason = ReasonNewsBlackout
		return res
	}

	for _, r := range model.Rules {
		if setup.Outcomes[r.ID] {
			res.PassedRules = append(res.PassedRules, r.ID)
			res.RawScore += r.Weight
		} else {
			res.FailedRules = append(res.FailedRules, r.ID)
		}
	}

	res.Modifiers = []models.Modifier{
		{Name: ModifierVolatility, Value: VolatilityModifier(setup.Context.VolBand)},
		{Name: ModifierHTF, Value: HTFModifier(model.TargetTrend(setup.Direction), setup.Context.MediumBias, setup.Context.HigherBias)},
	}
	res.FinalScore = res.RawScore
	for _, m := range res.Modifiers {
		res.FinalScore += m.Value
	}

	res.Valid = true
	res.Tier = TierFor(res.FinalScore, model)
	if model.MinScore > 0 && res.FinalScore < model.MinScore {
		res.Tier = models.TierNone
		res.Reason = ReasonBelowMinScore
	}
	return res
}

// VolatilityModifier rewards elevated volatility and penalizes extremes.
func VolatilityModifier(band models.VolBand) float64 {
	switch band {
	case models.VolBandHigh:
		return 0.5
	case models.VolBandExtreme:
		return -1.0
	default:
		return 0
	}
}

// HTFModifier is +0.5 when both higher timeframes agree with target, -1.5 when either
// opposes it, and 0 otherwise.
func HTFModifier(target, medium, higher models.Trend) float64 {
	if target == models.TrendNeutral {
		return 0
	}
	opposite := models.TrendBearish
	if target == models.TrendBearish {
		opposite = models.TrendBullish
	}
	switch {
	case medium == opposite || higher == opposite:
		return -1.5
	case medium == target && higher == target:
		return 0.5
	default:
		return 0
	}
}

// TierFor picks the first tier whose threshold final reaches, checked A then B then C.
func TierFor(final float64, model models.Model) models.Tier {
	switch {
	case final >= model.TierA:
		return models.TierA
	case final >= model.TierB:
		return models.TierB
	case final >= model.TierC:
		return models.TierC
	default:
		return models.TierNone
	}
}

// Summary is a one-line description for logs and alerts.
func Summary(r models.ScoreResult) string {
	if !r.Valid {
		return fmt.Sprintf("invalid (%s)", r.Reason)
	}
	tier := string(r.Tier)
	if tier == "" {
		tier = "-"
	}
	return fmt.Sprintf("tier %s final %.2f raw %.2f passed %d/%d",
		tier, r.FinalScore, r.RawScore, len(r.PassedRules), len(r.PassedRules)+len(r.FailedRules))
}
