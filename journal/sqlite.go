package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var (
	_ Journal = (*SQLite)(nil)
	_ Reader  = (*SQLite)(nil)
)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; avoids SQLITE_BUSY between the loop and CLI readers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

const upsertTradeSQL = `
	INSERT INTO trades
	(ticket, strategy_id, symbol, action, volume, open_time, close_time, duration_sec,
	 open_price, close_price, sl, tp, pnl, profit, commission, swap, close_reason, meta_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticket) DO UPDATE SET
		strategy_id = excluded.strategy_id,
		symbol = excluded.symbol,
		action = excluded.action,
		volume = excluded.volume,
		open_time = excluded.open_time,
		close_time = excluded.close_time,
		duration_sec = excluded.duration_sec,
		open_price = excluded.open_price,
		close_price = excluded.close_price,
		sl = excluded.sl,
		tp = excluded.tp,
		pnl = excluded.pnl,
		profit = excluded.profit,
		commission = excluded.commission,
		swap = excluded.swap,
		close_reason = excluded.close_reason,
		meta_json = excluded.meta_json`

func (j *SQLite) UpsertTrade(ctx context.Context, t TradeRecord) error {
	meta, err := encodeJSON(t.Meta)
	if err != nil {
		return fmt.Errorf("upsert trade %d: %w", t.Ticket, err)
	}
	_, err = j.db.ExecContext(ctx, upsertTradeSQL,
		t.Ticket, t.StrategyID, t.Symbol, t.Action, t.Volume,
		nullTime(t.OpenTime), t.CloseTime.UTC(), int64(t.Duration/time.Second),
		t.OpenPrice, t.ClosePrice, t.StopLoss, t.TakeProfit,
		t.NetPL, t.Profit, t.Commission, t.Swap, t.Reason, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert trade %d: %w", t.Ticket, err)
	}
	return nil
}

func (j *SQLite) AppendEquity(ctx context.Context, e EquitySnapshot) error {
	pl, err := encodeJSON(e.StrategyPL)
	if err != nil {
		return fmt.Errorf("append equity: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO equity_history
		(timestamp, balance, equity, open_positions, strategy_pl)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Balance, e.Equity, e.OpenPositions, pl,
	)
	if err != nil {
		return fmt.Errorf("append equity: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func encodeJSON(v any) (sql.NullString, error) {
	switch m := v.(type) {
	case map[string]any:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]float64:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	}
	s, err := sonic.MarshalString(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
