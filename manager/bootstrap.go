package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Bootstrap loads the configuration, connects to the broker, checks the
// account identity and adopts already-open positions that belong to a
// configured strategy. Any error is fatal.
func (m *Manager) Bootstrap(ctx context.Context) error {
	cfg, err := m.cfg.Load()
	if cfg == nil {
		if err == nil {
			err = ErrNoConfig
		}
		return err
	}

	acct, err := m.gw.Account(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if want := cfg.System.AuthorizedAccount; want != 0 && acct.ID != want {
		m.log.Error("account mismatch", zap.Int64("connected", acct.ID), zap.Int64("authorized", want))
		return fmt.Errorf("%w: connected to %d, authorized %d", ErrWrongAccount, acct.ID, want)
	}
	m.account = acct

	positions, err := m.gw.Positions(ctx)
	if err != nil {
		return fmt.Errorf("%w: positions: %v", ErrConnect, err)
	}
	owners := cfg.MagicIndex()
	for _, p := range positions {
		id, ok := owners[p.Magic]
		if !ok {
			continue
		}
		m.tracked[p.Ticket] = id
		m.pending[p.Ticket] = tradeContext{StopLoss: p.StopLoss, TakeProfit: p.TakeProfit}
	}

	m.log.Info("manager ready",
		zap.Int64("account", acct.ID),
		zap.String("currency", acct.Currency),
		zap.Float64("balance", acct.Balance),
		zap.Float64("equity", acct.Equity),
		zap.Int("adopted_positions", len(m.tracked)),
		zap.Int("strategies", len(cfg.Strategies)),
	)
	m.publishStatus()
	return nil
}
