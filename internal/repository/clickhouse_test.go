package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	pkgch "SetupScan/pkg/clickhouse"
)

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return pkgch.NewClientFromDB(db, "scan"), mock
}

func TestCHCandleSourceReturnsAscending(t *testing.T) {
	ch, mock := newMockClient(t)
	src := NewCHCandleSource(ch, nil)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"bucket", "open", "high", "low", "close", "vol"}).
		AddRow(t0.Add(2*time.Hour), 3.0, 3.5, 2.5, 3.2, 10.0).
		AddRow(t0.Add(time.Hour), 2.0, 2.5, 1.5, 2.2, 10.0).
		AddRow(t0, 1.0, 1.5, 0.5, 1.2, 10.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan.candles_1h FINAL")).
		WithArgs("EURUSD", 3).
		WillReturnRows(rows)

	got, err := src.GetLatestNCandles(context.Background(), "EURUSD", 3, domrepo.TF1h)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.Equal(t, 3.2, got[2].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHCandleSourceRejectsTimeframe(t *testing.T) {
	ch, _ := newMockClient(t)
	_, err := NewCHCandleSource(ch, nil).GetLatestNCandles(context.Background(), "EURUSD", 3, "2h")
	assert.Error(t, err)
}

func TestCandleTablesCoverLadder(t *testing.T) {
	stmts := CandleTables("scan")
	require.Len(t, stmts, 8)
	assert.Contains(t, stmts[1], "scan.candles_1m")
	assert.Contains(t, stmts[7], "scan.candles_1w")
}

func TestCHEventArchiveEmitBatches(t *testing.T) {
	ch, mock := newMockClient(t)
	a := NewCHEventArchive(ch)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []models.PhaseEvent{
		{ID: "1", Type: models.EventPhaseCompleted, ModelID: "m", Pair: "EURUSD", Direction: models.Bullish, Phase: models.Phase3,
			Levels: &models.TradeLevels{Entry: 1}, Score: &models.ScoreResult{Tier: models.TierA, FinalScore: 5.5}, Timestamp: now},
		{ID: "2", Type: models.EventPhaseReset, ModelID: "m", Pair: "EURUSD", Direction: models.Bullish, Phase: models.Phase2,
			Reason: models.ResetExpired, Timestamp: now},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan.phase_events")).
		WithArgs(now, "1", "phase_completed", "m", "EURUSD", "bullish", uint8(3), "", "", `{"entry":1,"stop_loss":0,"tp1":0,"tp2":0,"tp3":0}`, "A", 5.5,
			now, "2", "phase_reset", "m", "EURUSD", "bullish", uint8(2), "", "expired", "", "", 0.0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, a.Emit(context.Background(), events...))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHEventArchiveResults(t *testing.T) {
	ch, mock := newMockClient(t)
	a := NewCHEventArchive(ch)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan.phase_events FINAL")).
		WithArgs("phase4_result", "m", 10).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "id", "model_id", "pair", "direction", "result", "levels"}).
			AddRow(now, "e1", "m", "EURUSD", "bullish", "confirmed", `{"entry":1.1}`))

	got, err := a.Results(context.Background(), domrepo.ResultFilter{ModelID: "m", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusConfirmed, got[0].Result)
	require.NotNil(t, got[0].Levels)
	assert.Equal(t, 1.1, got[0].Levels.Entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, ...models.PhaseEvent) error {
	f.calls++
	return assert.AnError
}

type countingSink struct{ events int }

func (c *countingSink) Emit(_ context.Context, ev ...models.PhaseEvent) error {
	c.events += len(ev)
	return nil
}

func TestFanoutEmitterContinuesPastFailure(t *testing.T) {
	bad, good := &failingSink{}, &countingSink{}
	f := NewFanoutEmitter(nil, bad, nil, good)
	err := f.Emit(context.Background(), models.PhaseEvent{ID: "a"}, models.PhaseEvent{ID: "b"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 2, good.events)
}
