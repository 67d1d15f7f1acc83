package phase

import (
	"math"
	"time"

	"github.com/google/uuid"

	"SetupScan/internal/domain/models"
)

// Config holds thresholds and windows of the confirmation cycle.
type Config struct {
	// Thresholds are the minimum weighted pass percentages for phases 1-4.
	Thresholds   [4]float64
	Phase2Window time.Duration
	Phase3Window time.Duration
	ConfirmWait  time.Duration

	MinPriceChangePct float64
	MinATRPct         float64

	StopLossPct float64
	TP1Pct      float64
	TP2Pct      float64
	TP3Pct      float64
}

const (
	minConfirmWait = time.Minute
	maxConfirmWait = time.Hour
)

func DefaultConfig() Config {
	return Config{
		Thresholds:        [4]float64{60, 60, 70, 50},
		Phase2Window:      4 * time.Hour,
		Phase3Window:      time.Hour,
		ConfirmWait:       5 * time.Minute,
		MinPriceChangePct: 0.05,
		MinATRPct:         0.05,
		StopLossPct:       0.5,
		TP1Pct:            0.75,
		TP2Pct:            1.5,
		TP3Pct:            2.5,
	}
}

// Activity is the short-term movement used to skip dead markets.
type Activity struct {
	PriceChangePct float64
	ATRPct         float64
}

// Input is everything one tick needs besides the record.
type Input struct {
	Now      time.Time
	Close    float64
	Activity Activity
	Model    models.Model
}

// Outcome is the result of one tick. Record is a fresh copy; the input record is never
// mutated. Changed is false when there is nothing to persist.
type Outcome struct {
	Record  models.PhaseRecord
	Events  []models.PhaseEvent
	Skipped bool
	Changed bool
}

// EvalFunc reports whether one rule holds right now.
type EvalFunc func(models.Rule) bool

// Machine applies the phase transition rules. It holds no per-key state.
type Machine struct {
	cfg   Config
	newID func() string
}

func NewMachine(cfg Config) *Machine {
	def := DefaultConfig()
	for i, v := range cfg.Thresholds {
		if v <= 0 {
			cfg.Thresholds[i] = def.Thresholds[i]
		}
	}
	if cfg.Phase2Window <= 0 {
		cfg.Phase2Window = def.Phase2Window
	}
	if cfg.Phase3Window <= 0 {
		cfg.Phase3Window = def.Phase3Window
	}
	if cfg.ConfirmWait <= 0 {
		cfg.ConfirmWait = def.ConfirmWait
	}
	cfg.ConfirmWait = min(max(cfg.ConfirmWait, minConfirmWait), maxConfirmWait)
	if cfg.StopLossPct <= 0 {
		cfg.StopLossPct = def.StopLossPct
	}
	if cfg.TP1Pct <= 0 {
		cfg.TP1Pct = def.TP1Pct
	}
	if cfg.TP2Pct <= 0 {
		cfg.TP2Pct = def.TP2Pct
	}
	if cfg.TP3Pct <= 0 {
		cfg.TP3Pct = def.TP3Pct
	}
	return &Machine{cfg: cfg, newID: uuid.NewString}
}

func (m *Machine) Config() Config { return m.cfg }

// Active reports whether the market moved enough to be worth evaluating.
func (m *Machine) Active(a Activity) bool {
	return math.Abs(a.PriceChangePct) >= m.cfg.MinPriceChangePct || a.ATRPct >= m.cfg.MinATRPct
}

// Tick advances rec by at most one phase. Checks run in a fixed order: activity, expiry,
// phase-4 resolution, mandatory invalidation, then the phase threshold. A failing
// mandatory rule resets phases 2 and 3; in phase 1 it only blocks the advance.
func (m *Machine) Tick(rec models.PhaseRecord, in Input, eval EvalFunc) Outcome {
	if !m.Active(in.Activity) {
		return Outcome{Record: rec, Skipped: true}
	}

	next := rec
	if rec.Levels != nil {
		lv := *rec.Levels
		next.Levels = &lv
	}
	if next.Current < models.Phase1 || next.Current > models.Phase4 {
		next.Restart(in.Now)
	}
	out := Outcome{Record: next}
	cur := out.Record.Current
	st := out.Record.State(cur)

	if !st.ExpiresAt.IsZero() && in.Now.After(st.ExpiresAt) {
		st.Status = models.StatusExpired
		m.reset(&out, in, cur, models.ResetExpired)
		return out
	}

	if cur == models.Phase4 {
		m.resolve(&out, in, eval)
		return out
	}

	pct, mandatoryFailed := m.evaluate(in.Model.RulesFor(cur), eval)
	if mandatoryFailed && cur == models.Phase1 {
		// Nothing to invalidate yet: phase 1 just stays blocked.
		if pct != st.ScorePct {
			st.ScorePct = pct
			out.Record.UpdatedAt = in.Now
			out.Changed = true
		}
		return out
	}
	if mandatoryFailed {
		st.Status = models.StatusInvalidated
		st.ScorePct = pct
		m.reset(&out, in, cur, models.ResetInvalidated)
		return out
	}
	if pct != st.ScorePct {
		st.ScorePct = pct
		out.Changed = true
	}
	if pct < m.cfg.Thresholds[cur-1] {
		if out.Changed {
			out.Record.UpdatedAt = in.Now
		}
		return out
	}

	st.Status = models.StatusCompleted
	st.CompletedAt = in.Now
	nextPhase := cur.Next()
	ns := out.Record.State(nextPhase)
	*ns = models.PhaseState{Status: models.StatusActive, StartedAt: in.Now}
	switch cur {
	case models.Phase1:
		ns.ExpiresAt = in.Now.Add(m.cfg.Phase2Window)
	case models.Phase2:
		ns.ExpiresAt = in.Now.Add(m.cfg.Phase3Window)
	case models.Phase3:
		lv := m.Levels(in.Close, out.Record.Direction)
		out.Record.Levels = &lv
		out.Record.ConfirmAt = in.Now.Add(m.cfg.ConfirmWait)
	}
	out.Record.Current = nextPhase
	out.Record.UpdatedAt = in.Now
	out.Changed = true
	out.Events = append(out.Events, m.event(out.Record, in.Now, models.EventPhaseCompleted, cur))
	return out
}

// resolve runs the single phase-4 evaluation once the confirmation wait has elapsed.
func (m *Machine) resolve(out *Outcome, in Input, eval EvalFunc) {
	if in.Now.Before(out.Record.ConfirmAt) {
		return
	}
	pct, mandatoryFailed := m.evaluate(in.Model.RulesFor(models.Phase4), eval)
	st := out.Record.State(models.Phase4)
	st.ScorePct = pct
	st.CompletedAt = in.Now
	result := models.StatusConfirmed
	if mandatoryFailed || pct < m.cfg.Thresholds[3] {
		result = models.StatusFailed
	}
	st.Status = result
	out.Record.LastResult = result

	ev := m.event(out.Record, in.Now, models.EventPhase4Result, models.Phase4)
	ev.Result = result
	out.Events = append(out.Events, ev)
	m.reset(out, in, models.Phase4, models.ResetResolved)
}

func (m *Machine) reset(out *Outcome, in Input, at models.Phase, reason string) {
	ev := m.event(out.Record, in.Now, models.EventPhaseReset, at)
	ev.Reason = reason
	out.Events = append(out.Events, ev)
	out.Record.Restart(in.Now)
	out.Record.Cycle++
	out.Record.UpdatedAt = in.Now
	out.Changed = true
}

// evaluate returns the weighted pass percentage of rules and whether any mandatory rule
// failed. Rules with zero total weight are scored by count.
func (m *Machine) evaluate(rules []models.Rule, eval EvalFunc) (float64, bool) {
	if len(rules) == 0 {
		return 0, false
	}
	var total, passed float64
	var count, passedCount int
	mandatoryFailed := false
	for _, r := range rules {
		ok := eval(r)
		total += r.Weight
		count++
		if ok {
			passed += r.Weight
			passedCount++
		} else if r.Mandatory {
			mandatoryFailed = true
		}
	}
	if total > 0 {
		return 100 * passed / total, mandatoryFailed
	}
	return 100 * float64(passedCount) / float64(count), mandatoryFailed
}

// Levels derives entry, stop, and targets from fixed percentage offsets off px.
func (m *Machine) Levels(px float64, dir models.Direction) models.TradeLevels {
	sign := 1.0
	if dir == models.Bearish {
		sign = -1
	}
	at := func(pct float64) float64 { return px * (1 + sign*pct/100) }
	return models.TradeLevels{
		Entry:    px,
		StopLoss: at(-m.cfg.StopLossPct),
		TP1:      at(m.cfg.TP1Pct),
		TP2:      at(m.cfg.TP2Pct),
		TP3:      at(m.cfg.TP3Pct),
	}
}

func (m *Machine) event(rec models.PhaseRecord, now time.Time, typ models.PhaseEventType, p models.Phase) models.PhaseEvent {
	ev := models.PhaseEvent{
		ID:        m.newID(),
		Type:      typ,
		ModelID:   rec.ModelID,
		Pair:      rec.Pair,
		Direction: rec.Direction,
		Phase:     p,
		Timestamp: now,
	}
	if rec.Levels != nil {
		lv := *rec.Levels
		ev.Levels = &lv
	}
	return ev
}
