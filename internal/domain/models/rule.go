package models

import (
	"errors"
	"fmt"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidModel is returned when a model definition cannot be evaluated.
var ErrInvalidModel = errors.New("invalid model")

// Phase is one of the four confirmation stages. Zero means the rule carries no phase tag.
type Phase int

const (
	PhaseUntagged Phase = iota
	Phase1
	Phase2
	Phase3
	Phase4
)

// Phases lists the confirmation stages in order.
var Phases = [...]Phase{Phase1, Phase2, Phase3, Phase4}

func (p Phase) String() string {
	if p < Phase1 || p > Phase4 {
		return "untagged"
	}
	return fmt.Sprintf("phase%d", int(p))
}

// Next returns the following phase; Phase4 wraps to Phase1.
func (p Phase) Next() Phase {
	if p >= Phase4 || p < Phase1 {
		return Phase1
	}
	return p + 1
}

// Rule is one weighted condition of a model.
type Rule struct {
	ID        string  `yaml:"id" json:"id" validate:"required"`
	Name      string  `yaml:"name" json:"name" validate:"required"`
	Tag       string  `yaml:"tag,omitempty" json:"tag,omitempty"`
	Weight    float64 `yaml:"weight" json:"weight" validate:"gte=0"`
	Mandatory bool    `yaml:"mandatory" json:"mandatory"`
	Phase     Phase   `yaml:"phase" json:"phase" validate:"gte=0,lte=4"`
}

// Model is a named set of rules with tier thresholds.
type Model struct {
	ID        string   `yaml:"id" json:"id" validate:"required"`
	Name      string   `yaml:"name" json:"name"`
	Active    bool     `yaml:"active" json:"active" default:"true"`
	Bias      Trend    `yaml:"bias" json:"bias" default:"neutral" validate:"oneof=neutral bullish bearish"`
	Timeframe string   `yaml:"timeframe" json:"timeframe" default:"1h" validate:"required"`
	Pairs     []string `yaml:"pairs,omitempty" json:"pairs,omitempty"`
	Rules     []Rule   `yaml:"rules" json:"rules" validate:"required,min=1,dive"`
	TierA     float64  `yaml:"tier_a" json:"tier_a"`
	TierB     float64  `yaml:"tier_b" json:"tier_b"`
	TierC     float64  `yaml:"tier_c" json:"tier_c"`
	MinScore  float64  `yaml:"min_score" json:"min_score" validate:"gte=0"`
}

// ValidationReport carries non-fatal findings that operators should review.
type ValidationReport struct {
	ModelID  string   `json:"model_id"`
	Warnings []string `json:"warnings,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// ApplyDefaults fills zero-valued fields from their default tags.
func (m *Model) ApplyDefaults() error {
	if err := defaults.Set(m); err != nil {
		return fmt.Errorf("model defaults: %w", err)
	}
	return nil
}

// Validate checks the structural invariants of a model. Rule-name resolution is checked
// separately by the rule registry.
func (m *Model) Validate() (ValidationReport, error) {
	report := ValidationReport{ModelID: m.ID}
	if err := structValidator().Struct(m); err != nil {
		return report, fmt.Errorf("%w: %s: %v", ErrInvalidModel, m.ID, err)
	}
	if !(m.TierA > m.TierB && m.TierB > m.TierC && m.TierC > 0) {
		return report, fmt.Errorf("%w: %s: tiers must satisfy tier_a > tier_b > tier_c > 0 (got %.2f/%.2f/%.2f)",
			ErrInvalidModel, m.ID, m.TierA, m.TierB, m.TierC)
	}

	seen := make(map[string]struct{}, len(m.Rules))
	perPhase := make(map[Phase]int, 4)
	for _, r := range m.Rules {
		if _, dup := seen[r.ID]; dup {
			return report, fmt.Errorf("%w: %s: duplicate rule id %q", ErrInvalidModel, m.ID, r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Phase == PhaseUntagged {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("rule %q has no phase tag and is excluded from phase evaluation", r.ID))
			continue
		}
		perPhase[r.Phase]++
	}
	for _, p := range Phases {
		if perPhase[p] == 0 {
			return report, fmt.Errorf("%w: %s: %s has no tagged rules", ErrInvalidModel, m.ID, p)
		}
	}
	return report, nil
}

// RulesFor returns the rules explicitly tagged with phase p, in definition order.
func (m *Model) RulesFor(p Phase) []Rule {
	out := make([]Rule, 0, len(m.Rules))
	for _, r := range m.Rules {
		if r.Phase == p {
			out = append(out, r)
		}
	}
	return out
}

// Trades reports whether the model scans dir. A directional bias rules out the other side.
func (m *Model) Trades(dir Direction) bool {
	if m.Bias != TrendBullish && m.Bias != TrendBearish {
		return true
	}
	return TrendOf(dir) == m.Bias
}

// TargetTrend is the trend the model wants; a neutral bias defers to the setup direction.
func (m *Model) TargetTrend(dir Direction) Trend {
	if m.Bias == TrendBullish || m.Bias == TrendBearish {
		return m.Bias
	}
	return TrendOf(dir)
}
