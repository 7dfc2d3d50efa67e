package manager

import (
	"context"
	"fmt"
	"sort"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ReasonManual     = "Manual Close"
	ReasonStopLoss   = "Stop Loss"
	ReasonTakeProfit = "Take Profit"
	ReasonUnknown    = "Unknown"
)

// closeReason maps the exit deal's reason to the journal label.
func closeReason(r broker.DealReason) string {
	switch r {
	case broker.ReasonClient, broker.ReasonMobile, broker.ReasonWeb:
		return ReasonManual
	case broker.ReasonSL:
		return ReasonStopLoss
	case broker.ReasonTP:
		return ReasonTakeProfit
	default:
		return ReasonUnknown
	}
}

// netPL is profit + swap + commission of the exit deal, rounded to cents.
func netPL(d broker.Deal) float64 {
	return decimal.NewFromFloat(d.Profit).
		Add(decimal.NewFromFloat(d.Swap)).
		Add(decimal.NewFromFloat(d.Commission)).
		Round(2).
		InexactFloat64()
}

// buildTradeRecord assembles the journal row for a closed position. It
// reports false while the history has no closing deal yet.
func buildTradeRecord(ticket int64, strategyID string, deals []broker.Deal, tc tradeContext) (journal.TradeRecord, bool) {
	var entry, exit *broker.Deal
	for i := range deals {
		d := &deals[i]
		if entry == nil && d.Entry == broker.EntryIn {
			entry = d
		}
		if exit == nil && d.Entry.Closes() {
			exit = d
		}
	}
	if exit == nil {
		return journal.TradeRecord{}, false
	}

	rec := journal.TradeRecord{
		Ticket:     ticket,
		StrategyID: strategyID,
		Symbol:     exit.Symbol,
		Action:     exit.Side.Opposite().String(),
		Volume:     exit.Volume,
		CloseTime:  exit.Time,
		ClosePrice: exit.Price,
		StopLoss:   tc.StopLoss,
		TakeProfit: tc.TakeProfit,
		NetPL:      netPL(*exit),
		Profit:     exit.Profit,
		Commission: exit.Commission,
		Swap:       exit.Swap,
		Reason:     closeReason(exit.Reason),
		Meta:       tc.Meta,
	}
	if entry != nil {
		rec.Action = entry.Side.String()
		rec.Volume = entry.Volume
		rec.OpenTime = entry.Time
		rec.OpenPrice = entry.Price
		if d := exit.Time.Sub(entry.Time); d > 0 {
			rec.Duration = d
		}
	}
	return rec, true
}

// Reconcile journals tracked positions that are no longer open. A ticket
// stays tracked until its row is written, so a failed write is retried on
// the next cycle.
func (m *Manager) Reconcile(ctx context.Context) error {
	if len(m.tracked) == 0 {
		return nil
	}
	positions, err := m.gw.Positions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile positions: %w", err)
	}
	live := make(map[int64]bool, len(positions))
	for _, p := range positions {
		live[p.Ticket] = true
	}

	tickets := make([]int64, 0, len(m.tracked))
	for t := range m.tracked {
		if !live[t] {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })

	for _, ticket := range tickets {
		strategyID := m.tracked[ticket]
		log := m.log.With(zap.Int64("ticket", ticket), zap.String("strategy", strategyID))

		deals, err := m.gw.Deals(ctx, ticket)
		if err != nil {
			log.Warn("deal history unavailable", zap.Error(err))
			continue
		}
		rec, ok := buildTradeRecord(ticket, strategyID, deals, m.pending[ticket])
		if !ok {
			log.Debug("no exit deal yet")
			continue
		}
		if err := m.journal.UpsertTrade(ctx, rec); err != nil {
			log.Error("journal write failed, will retry", zap.Error(err))
			continue
		}

		delete(m.tracked, ticket)
		delete(m.pending, ticket)

		log.Info("position closed",
			zap.String("symbol", rec.Symbol),
			zap.String("action", rec.Action),
			zap.Float64("net_pl", rec.NetPL),
			zap.String("reason", rec.Reason),
			zap.Duration("duration", rec.Duration),
		)
		m.notifier.Notify(ctx, fmt.Sprintf("CLOSED %s %s %s #%d | P/L %.2f (%s)",
			strategyID, rec.Action, rec.Symbol, ticket, rec.NetPL, rec.Reason))
	}
	return nil
}
