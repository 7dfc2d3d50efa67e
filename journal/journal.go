// Package journal persists closed trades and periodic equity snapshots.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trademanager/config"
)

var ErrNotFound = errors.New("not found")

// TradeRecord is one closed position. Ticket is the key; writing the same
// ticket twice leaves a single row.
type TradeRecord struct {
	Ticket     int64
	StrategyID string
	Symbol     string
	Action     string // "BUY" or "SELL"
	Volume     float64
	OpenTime   time.Time
	CloseTime  time.Time
	Duration   time.Duration
	OpenPrice  float64
	ClosePrice float64
	StopLoss   float64
	TakeProfit float64
	NetPL      float64
	Profit     float64
	Commission float64
	Swap       float64
	Reason     string
	Meta       map[string]any
}

type EquitySnapshot struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	OpenPositions int
	StrategyPL    map[string]float64
}

type Journal interface {
	UpsertTrade(ctx context.Context, t TradeRecord) error
	AppendEquity(ctx context.Context, e EquitySnapshot) error
	Close() error
}

// TradeFilter narrows ListTrades. Zero values mean no restriction.
type TradeFilter struct {
	StrategyID string
	Since      time.Time
	Limit      int
}

type DayStats struct {
	Day    time.Time
	Trades int
	NetPL  float64
}

// Reader is implemented by the database-backed journals.
type Reader interface {
	GetTrade(ctx context.Context, ticket int64) (TradeRecord, error)
	ListTrades(ctx context.Context, f TradeFilter) ([]TradeRecord, error)
	DayStats(ctx context.Context, day time.Time) (DayStats, error)
	ListEquity(ctx context.Context, limit int) ([]EquitySnapshot, error)
}

// Open builds the journal selected by cfg.Type; sqlite is the default.
func Open(ctx context.Context, cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "", config.JournalSQLite:
		path := cfg.DBPath
		if path == "" {
			path = "trading_system.db"
		}
		return NewSQLite(path)
	case config.JournalPostgres:
		return NewPostgres(ctx, cfg.DSN)
	case config.JournalCSV:
		return NewCSV(cfg.TradesFile, cfg.EquityFile)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

// dayBounds returns local midnight of day and the following midnight.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
