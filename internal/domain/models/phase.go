package models

import (
	"fmt"
	"time"
)

// PhaseStatus is the status of a single phase inside a record.
type PhaseStatus string

const (
	StatusPending     PhaseStatus = "pending"
	StatusActive      PhaseStatus = "active"
	StatusCompleted   PhaseStatus = "completed"
	StatusExpired     PhaseStatus = "expired"
	StatusInvalidated PhaseStatus = "invalidated"
	StatusConfirmed   PhaseStatus = "confirmed"
	StatusFailed      PhaseStatus = "failed"
)

// PhaseState is the per-phase slice of a record.
type PhaseState struct {
	Status      PhaseStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	// ExpiresAt is the validity deadline of the phase; zero means no deadline.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	ScorePct  float64   `json:"score_pct"`
}

// TradeLevels are the entry, stop, and targets computed when phase 3 completes.
type TradeLevels struct {
	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stop_loss"`
	TP1      float64 `json:"tp1"`
	TP2      float64 `json:"tp2"`
	TP3      float64 `json:"tp3"`
}

// PhaseRecord is the persisted confirmation state of one (model, pair, direction) key.
type PhaseRecord struct {
	ModelID   string        `json:"model_id"`
	Pair      string        `json:"pair"`
	Direction Direction     `json:"direction"`
	Current   Phase         `json:"overall_status"`
	Phases    [4]PhaseState `json:"phases"`
	Levels    *TradeLevels  `json:"levels,omitempty"`
	ConfirmAt time.Time     `json:"confirm_at,omitempty"`
	Cycle     int           `json:"cycle"`
	// LastResult is the outcome of the most recent phase-4 resolution.
	LastResult PhaseStatus `json:"last_result,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Version    int64       `json:"version"`
}

// PhaseKey is the store key of a record.
func PhaseKey(modelID, pair string, dir Direction) string {
	return fmt.Sprintf("%s:%s:%s", modelID, pair, dir)
}

// Key returns the store key of r.
func (r *PhaseRecord) Key() string { return PhaseKey(r.ModelID, r.Pair, r.Direction) }

// NewPhaseRecord returns a record sitting at the start of phase 1.
func NewPhaseRecord(modelID, pair string, dir Direction, now time.Time) PhaseRecord {
	r := PhaseRecord{ModelID: modelID, Pair: pair, Direction: dir, UpdatedAt: now}
	r.Restart(now)
	return r
}

// Restart clears per-cycle state and returns the record to phase 1.
func (r *PhaseRecord) Restart(now time.Time) {
	r.Current = Phase1
	r.Levels = nil
	r.ConfirmAt = time.Time{}
	for i := range r.Phases {
		r.Phases[i] = PhaseState{Status: StatusPending}
	}
	r.Phases[0] = PhaseState{Status: StatusActive, StartedAt: now}
}

// State returns the per-phase state for p.
func (r *PhaseRecord) State(p Phase) *PhaseState {
	if p < Phase1 || p > Phase4 {
		return nil
	}
	return &r.Phases[p-1]
}

// PhaseEventType names an emitted transition.
type PhaseEventType string

const (
	EventPhaseCompleted PhaseEventType = "phase_completed"
	EventPhase4Result   PhaseEventType = "phase4_result"
	EventPhaseReset     PhaseEventType = "phase_reset"
)

// Reset reasons carried on phase_reset events.
const (
	ResetExpired     = "expired"
	ResetInvalidated = "invalidated"
	ResetResolved    = "resolved"
)

// PhaseEvent is what the alert emitter receives.
type PhaseEvent struct {
	ID        string         `json:"id"`
	Type      PhaseEventType `json:"type"`
	ModelID   string         `json:"model_id"`
	Pair      string         `json:"pair"`
	Direction Direction      `json:"direction"`
	Phase     Phase          `json:"phase"`
	Result    PhaseStatus    `json:"phase4_result,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Levels    *TradeLevels   `json:"levels,omitempty"`
	Score     *ScoreResult   `json:"score,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
