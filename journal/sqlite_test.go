package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(ticket int64, closeT time.Time) TradeRecord {
	return TradeRecord{
		Ticket:     ticket,
		StrategyID: "EURUSD_TREND_01",
		Symbol:     "EURUSD",
		Action:     "BUY",
		Volume:     0.1,
		OpenTime:   closeT.Add(-90 * time.Second),
		CloseTime:  closeT,
		Duration:   90 * time.Second,
		OpenPrice:  1.1000,
		ClosePrice: 1.1010,
		StopLoss:   1.0995,
		TakeProfit: 1.1010,
		NetPL:      9.5,
		Profit:     10,
		Commission: -0.5,
		Reason:     "Take Profit",
		Meta:       map[string]any{"rsi": 71.5},
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity_history')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity_history"])
}

func TestSQLiteUpsertTrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)
	rec := sampleTrade(5001, closeT)
	require.NoError(t, j.UpsertTrade(ctx, rec))

	got, err := j.GetTrade(ctx, 5001)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD_TREND_01", got.StrategyID)
	assert.Equal(t, "BUY", got.Action)
	assert.InDelta(t, 0.1, got.Volume, 1e-9)
	assert.True(t, got.OpenTime.Equal(rec.OpenTime))
	assert.True(t, got.CloseTime.Equal(closeT))
	assert.Equal(t, 90*time.Second, got.Duration)
	assert.InDelta(t, 1.0995, got.StopLoss, 1e-9)
	assert.InDelta(t, 9.5, got.NetPL, 1e-9)
	assert.Equal(t, "Take Profit", got.Reason)
	assert.Equal(t, map[string]any{"rsi": 71.5}, got.Meta)
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, path := newTestSQLite(t)

	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)
	rec := sampleTrade(5001, closeT)
	require.NoError(t, j.UpsertTrade(ctx, rec))

	rec.NetPL = 12.25
	rec.Reason = "Manual Close"
	require.NoError(t, j.UpsertTrade(ctx, rec))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		count  int
		pnl    float64
		reason string
	)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(pnl), MAX(close_reason) FROM trades WHERE ticket = 5001`).Scan(&count, &pnl, &reason))
	assert.Equal(t, 1, count)
	assert.InDelta(t, 12.25, pnl, 1e-9)
	assert.Equal(t, "Manual Close", reason)
}

func TestSQLiteTradeWithoutOpenTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	rec := sampleTrade(7, time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC))
	rec.OpenTime = time.Time{}
	rec.Meta = nil
	require.NoError(t, j.UpsertTrade(ctx, rec))

	got, err := j.GetTrade(ctx, 7)
	require.NoError(t, err)
	assert.True(t, got.OpenTime.IsZero())
	assert.Nil(t, got.Meta)
}

func TestSQLiteAppendEquity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.AppendEquity(ctx, EquitySnapshot{
			Time:          t0.Add(time.Duration(i) * time.Minute),
			Balance:       10000,
			Equity:        10000 + float64(i),
			OpenPositions: i,
			StrategyPL:    map[string]float64{"EURUSD_TREND_01": float64(i), "Manual/Other": 0},
		}))
	}

	snaps, err := j.ListEquity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Time.Equal(t0.Add(time.Minute)))
	assert.True(t, snaps[1].Time.Equal(t0.Add(2*time.Minute)))
	assert.InDelta(t, 10002, snaps[1].Equity, 1e-9)
	assert.Equal(t, 2, snaps[1].OpenPositions)
	assert.Equal(t, map[string]float64{"EURUSD_TREND_01": 2, "Manual/Other": 0}, snaps[1].StrategyPL)
}
