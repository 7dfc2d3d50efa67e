package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/broker/bridge"
	"github.com/rustyeddy/trademanager/broker/sim"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/intake"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/rustyeddy/trademanager/manager"
	"github.com/rustyeddy/trademanager/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trade manager",
	Long: `Start the trade manager: connect to the broker, verify the account,
adopt open positions, then serve signals and manage risk until interrupted.

The config file is re-read whenever its modification time changes. Broker,
journal and intake address are fixed at startup.

Example:
  trademgr run -c config.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(configPath())
	cfg, err := store.Load()
	if err != nil {
		log.Error("cannot load config", zap.String("path", store.Path()), zap.Error(err))
		return err
	}

	gw, paper, err := openBroker(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()
	var ticks intake.TickSink
	if paper != nil {
		ticks = paper
	}

	j, err := journal.Open(ctx, cfg.System.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	notifier, closeNotifier := openNotifier(cfg, log)
	defer closeNotifier()

	queue := intake.NewQueue()
	m, err := manager.New(manager.Options{
		Config:   store,
		Gateway:  gw,
		Journal:  j,
		Queue:    queue,
		Notifier: notifier,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	if err := m.Bootstrap(ctx); err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}

	srv, err := intake.NewServer(intake.ServerConfig{
		Addr:   cfg.System.IntakeAddr(),
		Queue:  queue,
		Status: func() any { return m.Status() },
		Ticks:  ticks,
		Logger: log,
	})
	if err != nil {
		return err
	}

	notifier.Notify(ctx, fmt.Sprintf("Trade manager started on account %d (%d strategies)", m.Status().AccountID, len(cfg.Strategies)))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("intake server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return m.Run(gctx)
	})
	if pc := cfg.System.Broker.Paper; paper != nil && pc.TicksFile != "" {
		group.Go(func() error {
			return replayTicks(gctx, paper, pc.TicksFile, pc.ReplaySpeed, log)
		})
	}
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("trade manager stopped", zap.Error(err))
		return err
	}
	log.Info("trade manager stopped")
	return nil
}

// openBroker builds the gateway from config. The paper engine is returned
// separately so quotes can be pushed into it.
func openBroker(cfg *config.Config) (broker.Gateway, *sim.Engine, error) {
	b := cfg.System.Broker
	switch b.Type {
	case "", config.BrokerPaper:
		e := sim.NewEngine(sim.Options{
			AccountID:        b.Paper.AccountID,
			Currency:         b.Paper.Currency,
			Balance:          b.Paper.Balance,
			ContractSizes:    b.Paper.ContractSizes,
			CommissionPerLot: b.Paper.CommissionPerLot,
		})
		return e, e, nil
	case config.BrokerBridge:
		c, err := bridge.NewClient(b.URL, b.Token, cfg.System.TerminalPath, b.CallTimeout())
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker type %q", b.Type)
	}
}

func replayTicks(ctx context.Context, e *sim.Engine, path string, speed float64, log *zap.Logger) error {
	feed, err := sim.OpenTickFeed(path)
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}
	defer feed.Close()

	n, err := feed.Play(ctx, e, speed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	log.Info("tick replay finished", zap.String("file", path), zap.Int("ticks", n))
	return nil
}

func openNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func()) {
	sinks := notify.Multi{notify.Log{L: log.Named("notify")}}
	tg := cfg.System.Telegram
	if tg.Token == "" || tg.ChatID == 0 {
		return sinks, func() {}
	}
	t, err := notify.NewTelegram(tg.Token, tg.ChatID, log)
	if err != nil {
		log.Warn("telegram disabled", zap.Error(err))
		return sinks, func() {}
	}
	return append(sinks, t), func() { _ = t.Close() }
}
