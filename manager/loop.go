package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/risk"
	"go.uber.org/zap"
)

// Run drives the loop until ctx is cancelled. Cancellation is honoured
// between iterations, never in the middle of one.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("manager loop started")
	defer m.log.Info("manager loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.Step(ctx); err != nil {
			return err
		}

		timer.Reset(m.loopInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Step runs one iteration: resolve config, serve at most one signal,
// reconcile, run the basket governor, maybe snapshot. A failing phase is
// logged and the remaining phases still run.
//
// ctx only bounds the wait for a signal. Broker and journal calls run
// detached from its cancellation so an order the terminal has filled is
// always tracked.
func (m *Manager) Step(ctx context.Context) error {
	cfg := m.resolveConfig()
	if cfg == nil {
		return ErrNoConfig
	}
	m.loopInterval = cfg.System.Loop()
	work := context.WithoutCancel(ctx)

	m.phase("intake", func() error {
		req, ok := m.queue.Poll(ctx, cfg.System.Poll())
		if ok {
			m.handle(work, cfg, req)
		}
		return nil
	})
	m.phase("reconcile", func() error {
		return m.Reconcile(work)
	})
	m.phase("risk", func() error {
		return m.checkBasket(work, cfg)
	})
	m.phase("snapshot", func() error {
		return m.Snapshot(work, cfg, m.now())
	})

	m.iterations++
	m.publishStatus()
	return nil
}

// resolveConfig returns the configuration for this iteration. After a bad
// edit the last good document stays in effect and the error is logged once.
func (m *Manager) resolveConfig() *config.Config {
	cfg, err := m.cfg.Load()
	switch {
	case err != nil:
		if msg := err.Error(); msg != m.lastCfgErr {
			m.lastCfgErr = msg
			m.log.Error("config reload failed, keeping last good config", zap.Error(err))
		}
	case m.lastCfgErr != "":
		m.lastCfgErr = ""
		m.log.Info("config reloaded")
	}
	return cfg
}

func (m *Manager) checkBasket(ctx context.Context, cfg *config.Config) error {
	res, err := m.governor.Check(ctx, m.gw, risk.PolicyFromConfig(cfg.Risk()), m.now())
	if err != nil {
		return err
	}
	switch {
	case res.Locked:
		m.notifier.Notify(ctx, fmt.Sprintf("BASKET %s: floating %.2f hit limit %.2f. Closed %d of %d positions, new entries locked.",
			res.Decision.Trigger, res.Decision.FloatingPL, res.Decision.Limit, len(res.Closed), res.Decision.Positions))
	case res.Unlocked:
		m.notifier.Notify(ctx, "Basket lock released, accepting signals.")
	}
	return nil
}

func (m *Manager) phase(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("phase panic",
				zap.String("phase", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if err := fn(); err != nil {
		m.log.Warn("phase failed", zap.String("phase", name), zap.Error(err))
	}
}
