package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the server-backed journal. It keeps the same tables as the
// SQLite journal so reports read the same way from either store.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ Journal = (*Postgres)(nil)
	_ Reader  = (*Postgres)(nil)
)

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (j *Postgres) UpsertTrade(ctx context.Context, t TradeRecord) error {
	meta, err := encodeJSON(t.Meta)
	if err != nil {
		return fmt.Errorf("upsert trade %d: %w", t.Ticket, err)
	}
	var openTime *time.Time
	if !t.OpenTime.IsZero() {
		ot := t.OpenTime.UTC()
		openTime = &ot
	}
	var metaArg *string
	if meta.Valid {
		metaArg = &meta.String
	}

	_, err = j.pool.Exec(ctx, `
		INSERT INTO trades
		(ticket, strategy_id, symbol, action, volume, open_time, close_time, duration_sec,
		 open_price, close_price, sl, tp, pnl, profit, commission, swap, close_reason, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18::jsonb)
		ON CONFLICT (ticket) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			symbol = EXCLUDED.symbol,
			action = EXCLUDED.action,
			volume = EXCLUDED.volume,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time,
			duration_sec = EXCLUDED.duration_sec,
			open_price = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			sl = EXCLUDED.sl,
			tp = EXCLUDED.tp,
			pnl = EXCLUDED.pnl,
			profit = EXCLUDED.profit,
			commission = EXCLUDED.commission,
			swap = EXCLUDED.swap,
			close_reason = EXCLUDED.close_reason,
			meta_json = EXCLUDED.meta_json`,
		t.Ticket, t.StrategyID, t.Symbol, t.Action, t.Volume,
		openTime, t.CloseTime.UTC(), int64(t.Duration/time.Second),
		t.OpenPrice, t.ClosePrice, t.StopLoss, t.TakeProfit,
		t.NetPL, t.Profit, t.Commission, t.Swap, t.Reason, metaArg,
	)
	if err != nil {
		return fmt.Errorf("upsert trade %d: %w", t.Ticket, err)
	}
	return nil
}

func (j *Postgres) AppendEquity(ctx context.Context, e EquitySnapshot) error {
	pl, err := encodeJSON(e.StrategyPL)
	if err != nil {
		return fmt.Errorf("append equity: %w", err)
	}
	var plArg *string
	if pl.Valid {
		plArg = &pl.String
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO equity_history (timestamp, balance, equity, open_positions, strategy_pl)
		VALUES ($1, $2, $3, $4, $5::jsonb)`,
		e.Time.UTC(), e.Balance, e.Equity, e.OpenPositions, plArg,
	)
	if err != nil {
		return fmt.Errorf("append equity: %w", err)
	}
	return nil
}

const pgTradeColumns = `ticket, strategy_id, symbol, action, volume, open_time, close_time, duration_sec,
	open_price, close_price, sl, tp, pnl, profit, commission, swap, close_reason, meta_json::text`

func scanPgTrade(row pgx.Row) (TradeRecord, error) {
	var (
		rec      TradeRecord
		openTime *time.Time
		durSec   int64
		meta     *string
	)
	err := row.Scan(
		&rec.Ticket, &rec.StrategyID, &rec.Symbol, &rec.Action, &rec.Volume,
		&openTime, &rec.CloseTime, &durSec,
		&rec.OpenPrice, &rec.ClosePrice, &rec.StopLoss, &rec.TakeProfit,
		&rec.NetPL, &rec.Profit, &rec.Commission, &rec.Swap, &rec.Reason, &meta,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	if openTime != nil {
		rec.OpenTime = *openTime
	}
	rec.Duration = time.Duration(durSec) * time.Second
	if meta != nil && *meta != "" {
		if err := sonic.UnmarshalString(*meta, &rec.Meta); err != nil {
			return TradeRecord{}, fmt.Errorf("decode meta for ticket %d: %w", rec.Ticket, err)
		}
	}
	return rec, nil
}

func (j *Postgres) GetTrade(ctx context.Context, ticket int64) (TradeRecord, error) {
	row := j.pool.QueryRow(ctx, `SELECT `+pgTradeColumns+` FROM trades WHERE ticket = $1`, ticket)
	rec, err := scanPgTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %d: %w", ticket, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

func (j *Postgres) ListTrades(ctx context.Context, f TradeFilter) ([]TradeRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.StrategyID != "" {
		args = append(args, f.StrategyID)
		where = append(where, fmt.Sprintf("strategy_id = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		where = append(where, fmt.Sprintf("close_time >= $%d", len(args)))
	}

	q := `SELECT ` + pgTradeColumns + ` FROM trades`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY close_time DESC, ticket DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := j.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanPgTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *Postgres) DayStats(ctx context.Context, day time.Time) (DayStats, error) {
	start, end := dayBounds(day)
	stats := DayStats{Day: start}

	var total *float64
	err := j.pool.QueryRow(ctx, `
		SELECT COUNT(*), SUM(pnl) FROM trades
		WHERE close_time >= $1 AND close_time < $2`, start, end,
	).Scan(&stats.Trades, &total)
	if err != nil {
		return DayStats{}, err
	}
	if total != nil {
		stats.NetPL = *total
	}
	return stats, nil
}

func (j *Postgres) ListEquity(ctx context.Context, limit int) ([]EquitySnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.pool.Query(ctx, `
		SELECT timestamp, balance, equity, open_positions, strategy_pl::text
		FROM (
			SELECT * FROM equity_history ORDER BY id DESC LIMIT $1
		) latest ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			e  EquitySnapshot
			pl *string
		)
		if err := rows.Scan(&e.Time, &e.Balance, &e.Equity, &e.OpenPositions, &pl); err != nil {
			return nil, err
		}
		if pl != nil && *pl != "" {
			if err := sonic.UnmarshalString(*pl, &e.StrategyPL); err != nil {
				return nil, fmt.Errorf("decode strategy_pl: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}
