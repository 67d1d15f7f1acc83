package repository

import (
	"context"
	"errors"
	"time"

	"SetupScan/internal/domain/models"
)

var (
	ErrRecordNotFound = errors.New("phase record not found")
	ErrModelNotFound  = errors.New("model not found")
	ErrLockHeld       = errors.New("key is locked by another writer")

	// ErrVersionConflict means another writer already saved this or a later version.
	ErrVersionConflict = errors.New("phase record version conflict")
)

// CandleSource supplies ascending OHLCV candles per (pair, timeframe).
type CandleSource interface {
	GetLatestNCandles(ctx context.Context, pair string, n int, tf Timeframe) ([]models.Candle, error)
}

// PhaseStore persists phase records and linearizes writers per key.
type PhaseStore interface {
	Get(ctx context.Context, key string) (models.PhaseRecord, error)
	// Save rejects rec with ErrVersionConflict unless its Version is newer than the stored one.
	Save(ctx context.Context, rec models.PhaseRecord) error
	List(ctx context.Context) ([]models.PhaseRecord, error)
	// Lock acquires exclusive ownership of key; release must be called exactly once.
	Lock(ctx context.Context, key string) (release func(), err error)
}

// ModelStore owns model definitions. Save must reject models that cannot be evaluated.
type ModelStore interface {
	List(ctx context.Context) ([]models.Model, error)
	Get(ctx context.Context, id string) (models.Model, error)
	Save(ctx context.Context, m models.Model) (models.ValidationReport, error)
}

// AlertEmitter receives phase events for external presentation.
type AlertEmitter interface {
	Emit(ctx context.Context, events ...models.PhaseEvent) error
}

// ResultFilter narrows a ResultArchive query. Empty fields match everything.
type ResultFilter struct {
	ModelID string
	Pair    string
	Since   time.Time
	Limit   int
}

// ResultArchive serves archived phase-4 outcomes, newest first.
type ResultArchive interface {
	Results(ctx context.Context, f ResultFilter) ([]models.PhaseEvent, error)
}

// NewsCalendar reports the next high-impact news event for a pair.
type NewsCalendar interface {
	NextHighImpact(ctx context.Context, pair string, now time.Time) (time.Time, bool, error)
}

type Metrics interface {
	RecordTick(result string, seconds float64)
	RecordRule(kind, result string)
	RecordUnresolvedRule(modelID string)
	RecordCheckError(kind string)
	RecordTransition(from, to, reason string)
	RecordFetchError(timeframe string)
	RecordSkipped(reason string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordTick(string, float64)              {}
func (NopMetrics) RecordRule(string, string)               {}
func (NopMetrics) RecordUnresolvedRule(string)             {}
func (NopMetrics) RecordCheckError(string)                 {}
func (NopMetrics) RecordTransition(string, string, string) {}
func (NopMetrics) RecordFetchError(string)                 {}
func (NopMetrics) RecordSkipped(string)                    {}
