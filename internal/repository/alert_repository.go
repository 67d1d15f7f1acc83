package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	pkgch "SetupScan/pkg/clickhouse"
	pkgkafka "SetupScan/pkg/kafka"
	applogger "SetupScan/pkg/logger"
)

// CHEventArchive appends phase events to ClickHouse for later reporting.
type CHEventArchive struct {
	db    *sql.DB
	table string
}

func NewCHEventArchive(ch *pkgch.Client) *CHEventArchive {
	return &CHEventArchive{db: ch.DB(), table: ch.Database() + ".phase_events"}
}

// EventTables returns the DDL of the event archive.
func EventTables(database string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.phase_events (
            ts          DateTime64(3, 'UTC'),
            id          String,
            type        LowCardinality(String),
            model_id    LowCardinality(String),
            pair        LowCardinality(String),
            direction   LowCardinality(String),
            phase       UInt8,
            result      LowCardinality(String),
            reason      String,
            levels      String,
            tier        LowCardinality(String),
            final_score Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (model_id, pair, ts, id)`, database)}
}

// Emit inserts events in one multi-row statement.
func (a *CHEventArchive) Emit(ctx context.Context, events ...models.PhaseEvent) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*12)
	for _, e := range events {
		levels := ""
		if e.Levels != nil {
			b, err := json.Marshal(e.Levels)
			if err != nil {
				return fmt.Errorf("marshal levels: %w", err)
			}
			levels = string(b)
		}
		var tier string
		var final float64
		if e.Score != nil {
			tier, final = string(e.Score.Tier), e.Score.FinalScore
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, e.Timestamp.UTC(), e.ID, string(e.Type), e.ModelID, e.Pair,
			string(e.Direction), uint8(e.Phase), string(e.Result), e.Reason, levels, tier, final)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, id, type, model_id, pair, direction, phase, result, reason, levels, tier, final_score) VALUES %s",
		a.table, strings.Join(values, ","))
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("archive events: %w", err)
	}
	return nil
}

// Results returns phase-4 outcomes newest first.
func (a *CHEventArchive) Results(ctx context.Context, f domrepo.ResultFilter) ([]models.PhaseEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	where := []string{"type = ?"}
	args := []interface{}{string(models.EventPhase4Result)}
	if f.ModelID != "" {
		where = append(where, "model_id = ?")
		args = append(args, f.ModelID)
	}
	if f.Pair != "" {
		where = append(where, "pair = ?")
		args = append(args, f.Pair)
	}
	if !f.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, f.Since.UTC())
	}
	args = append(args, f.Limit)
	q := fmt.Sprintf(`
        SELECT ts, id, model_id, pair, direction, result, levels
        FROM %s FINAL
        WHERE %s
        ORDER BY ts DESC
        LIMIT ?`, a.table, strings.Join(where, " AND "))

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []models.PhaseEvent
	for rows.Next() {
		e := models.PhaseEvent{Type: models.EventPhase4Result, Phase: models.Phase4}
		var dir, result, levels string
		if err := rows.Scan(&e.Timestamp, &e.ID, &e.ModelID, &e.Pair, &dir, &result, &levels); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		e.Direction = models.Direction(dir)
		e.Result = models.PhaseStatus(result)
		if levels != "" {
			var lv models.TradeLevels
			if err := json.Unmarshal([]byte(levels), &lv); err == nil {
				e.Levels = &lv
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// KafkaAlertEmitter publishes events keyed by record so one key stays on one partition.
type KafkaAlertEmitter struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertEmitter(producer *pkgkafka.Producer, topic string) *KafkaAlertEmitter {
	return &KafkaAlertEmitter{producer: producer, topic: topic}
}

func (k *KafkaAlertEmitter) Emit(ctx context.Context, events ...models.PhaseEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(models.PhaseKey(e.ModelID, e.Pair, e.Direction)),
			Value: e,
		}
	}
	return k.producer.PublishBatch(ctx, k.topic, msgs)
}

// FanoutEmitter delivers every event to each sink. A failing sink does not stop the others.
type FanoutEmitter struct {
	sinks []domrepo.AlertEmitter
	l     *applogger.Logger
}

func NewFanoutEmitter(l *applogger.Logger, sinks ...domrepo.AlertEmitter) *FanoutEmitter {
	if l == nil {
		l = applogger.NewNop()
	}
	out := make([]domrepo.AlertEmitter, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &FanoutEmitter{sinks: out, l: l}
}

func (f *FanoutEmitter) Emit(ctx context.Context, events ...models.PhaseEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, events...); err != nil {
			f.l.Warn("alert sink failed",
				applogger.String("sink", fmt.Sprintf("%T", s)),
				applogger.Int("events", len(events)),
				applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
