package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const tradeColumns = `ticket, strategy_id, symbol, action, volume, open_time, close_time, duration_sec,
	open_price, close_price, sl, tp, pnl, profit, commission, swap, close_reason, meta_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (TradeRecord, error) {
	var (
		rec      TradeRecord
		openTime sql.NullTime
		durSec   int64
		meta     sql.NullString
	)
	err := row.Scan(
		&rec.Ticket,
		&rec.StrategyID,
		&rec.Symbol,
		&rec.Action,
		&rec.Volume,
		&openTime,
		&rec.CloseTime,
		&durSec,
		&rec.OpenPrice,
		&rec.ClosePrice,
		&rec.StopLoss,
		&rec.TakeProfit,
		&rec.NetPL,
		&rec.Profit,
		&rec.Commission,
		&rec.Swap,
		&rec.Reason,
		&meta,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	if openTime.Valid {
		rec.OpenTime = openTime.Time
	}
	rec.Duration = time.Duration(durSec) * time.Second
	if meta.Valid && meta.String != "" {
		if err := sonic.UnmarshalString(meta.String, &rec.Meta); err != nil {
			return TradeRecord{}, fmt.Errorf("decode meta for ticket %d: %w", rec.Ticket, err)
		}
	}
	return rec, nil
}

// GetTrade returns a single trade record by ticket.
func (j *SQLite) GetTrade(ctx context.Context, ticket int64) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE ticket = ?`, ticket)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %d: %w", ticket, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns trades newest close first.
func (j *SQLite) ListTrades(ctx context.Context, f TradeFilter) ([]TradeRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.StrategyID != "" {
		where = append(where, "strategy_id = ?")
		args = append(args, f.StrategyID)
	}
	if !f.Since.IsZero() {
		where = append(where, "close_time >= ?")
		args = append(args, f.Since.UTC())
	}

	q := `SELECT ` + tradeColumns + ` FROM trades`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY close_time DESC, ticket DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DayStats counts trades closed on the calendar day of day (in its location)
// and sums their net P/L.
func (j *SQLite) DayStats(ctx context.Context, day time.Time) (DayStats, error) {
	start, end := dayBounds(day)
	stats := DayStats{Day: start}

	var total sql.NullFloat64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(pnl)
		FROM trades
		WHERE close_time >= ? AND close_time < ?`, start.UTC(), end.UTC(),
	).Scan(&stats.Trades, &total)
	if err != nil {
		return DayStats{}, err
	}
	stats.NetPL = total.Float64
	return stats, nil
}

// ListEquity returns the latest snapshots, oldest first.
func (j *SQLite) ListEquity(ctx context.Context, limit int) ([]EquitySnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT timestamp, balance, equity, open_positions, strategy_pl
		FROM (
			SELECT id, timestamp, balance, equity, open_positions, strategy_pl
			FROM equity_history ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			e  EquitySnapshot
			pl sql.NullString
		)
		if err := rows.Scan(&e.Time, &e.Balance, &e.Equity, &e.OpenPositions, &pl); err != nil {
			return nil, err
		}
		if pl.Valid && pl.String != "" {
			if err := sonic.UnmarshalString(pl.String, &e.StrategyPL); err != nil {
				return nil, fmt.Errorf("decode strategy_pl: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
