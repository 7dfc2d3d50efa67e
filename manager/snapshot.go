package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/shopspring/decimal"
)

// ManualBucket collects floating P/L of positions no strategy owns.
const ManualBucket = "Manual/Other"

// strategyPL splits floating P/L by owning strategy. Every configured
// strategy appears, with 0 when it has nothing open.
func strategyPL(cfg *config.Config, positions []broker.Position) map[string]float64 {
	sums := make(map[string]decimal.Decimal, len(cfg.Strategies)+1)
	for id := range cfg.Strategies {
		sums[id] = decimal.Zero
	}
	owners := cfg.MagicIndex()
	for _, p := range positions {
		id, ok := owners[p.Magic]
		if !ok {
			id = ManualBucket
		}
		sums[id] = sums[id].Add(decimal.NewFromFloat(p.Profit)).Add(decimal.NewFromFloat(p.Swap))
	}

	out := make(map[string]float64, len(sums))
	for id, v := range sums {
		out[id] = v.Round(2).InexactFloat64()
	}
	return out
}

// Snapshot writes an equity row at most once per snapshot interval. The
// interval restarts only after a successful write.
func (m *Manager) Snapshot(ctx context.Context, cfg *config.Config, now time.Time) error {
	if !m.lastSnapshot.IsZero() && now.Sub(m.lastSnapshot) < cfg.System.Snapshot() {
		return nil
	}

	acct, err := m.gw.Account(ctx)
	if err != nil {
		return fmt.Errorf("snapshot account: %w", err)
	}
	positions, err := m.gw.Positions(ctx)
	if err != nil {
		return fmt.Errorf("snapshot positions: %w", err)
	}

	err = m.journal.AppendEquity(ctx, journal.EquitySnapshot{
		Time:          now,
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		OpenPositions: len(positions),
		StrategyPL:    strategyPL(cfg, positions),
	})
	if err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	m.account = acct
	m.lastSnapshot = now
	return nil
}
