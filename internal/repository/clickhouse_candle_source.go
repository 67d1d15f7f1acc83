package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	pkgch "SetupScan/pkg/clickhouse"
	applogger "SetupScan/pkg/logger"
)

// CHCandleSource implements CandleSource over per-timeframe OHLCV tables.
type CHCandleSource struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHCandleSource(ch *pkgch.Client, l *applogger.Logger) *CHCandleSource {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleSource{db: ch.DB(), database: ch.Database(), l: l}
}

// CandleTables returns the DDL for every supported timeframe table.
func CandleTables(database string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF15m, domrepo.TF1h, domrepo.TF4h, domrepo.TF1d, domrepo.TF1w} {
		stmts = append(stmts, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            bucket DateTime64(3, 'UTC'),
            pair   LowCardinality(String),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            vol    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (pair, bucket)`, tableFor(database, tf)))
	}
	return stmts
}

func tableFor(database string, tf domrepo.Timeframe) string {
	return fmt.Sprintf("%s.candles_%s", database, tf)
}

// GetLatestNCandles returns up to n candles in ascending time order.
func (s *CHCandleSource) GetLatestNCandles(ctx context.Context, pair string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if n <= 0 {
		return nil, nil
	}
	table := tableFor(s.database, tf)
	q := fmt.Sprintf(`
        SELECT bucket, open, high, low, close, vol
        FROM %s FINAL
        WHERE pair = ?
        ORDER BY bucket DESC
        LIMIT ?`, table)

	rows, err := s.db.QueryContext(ctx, q, pair, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", table),
			applogger.String("pair", pair),
			applogger.Int("limit", n),
			applogger.Error(err))
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("table", table),
		applogger.String("pair", pair),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}
