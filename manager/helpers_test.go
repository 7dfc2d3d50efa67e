package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/broker/sim"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/intake"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	trendID    = "EURUSD_TREND_01"
	disabledID = "DISABLED_01"
	accountID  = 12345
)

var t0 = time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func testConfig() *config.Config {
	return &config.Config{
		System: config.SystemConfig{
			AuthorizedAccount: accountID,
			PollTimeout:       "1ms",
			LoopInterval:      "1ms",
			SnapshotInterval:  "60s",
		},
		Strategies: map[string]config.StrategyConfig{
			trendID: {
				Enabled:     true,
				Volume:      0.1,
				MagicNumber: 1001,
				TradeLimits: config.TradeLimits{
					SLPoints:  5,
					TPPoints:  floatPtr(10),
					PointSize: 0.0001,
				},
			},
			disabledID: {
				Enabled:     false,
				Volume:      1,
				MagicNumber: 3003,
			},
		},
	}
}

// staticConfig serves a fixed document and error; tests swap them freely.
type staticConfig struct {
	mu  sync.Mutex
	cfg *config.Config
	err error
}

func (s *staticConfig) Load() (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.err
}

func (s *staticConfig) set(cfg *config.Config, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg, s.err = cfg, err
}

type memJournal struct {
	mu         sync.Mutex
	trades     map[int64]journal.TradeRecord
	writes     int
	equity     []journal.EquitySnapshot
	failTrades int
	failEquity error
}

func newMemJournal() *memJournal {
	return &memJournal{trades: make(map[int64]journal.TradeRecord)}
}

func (j *memJournal) UpsertTrade(_ context.Context, t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failTrades > 0 {
		j.failTrades--
		return errors.New("disk full")
	}
	j.writes++
	j.trades[t.Ticket] = t
	return nil
}

func (j *memJournal) AppendEquity(_ context.Context, e journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failEquity != nil {
		return j.failEquity
	}
	j.equity = append(j.equity, e)
	return nil
}

func (j *memJournal) Close() error { return nil }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type harness struct {
	t        *testing.T
	m        *Manager
	sim      *sim.Engine
	journal  *memJournal
	cfg      *staticConfig
	queue    *intake.Queue
	notifier *recordingNotifier
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	e := sim.NewEngine(sim.Options{
		AccountID:     accountID,
		Balance:       10000,
		ContractSizes: map[string]float64{"EURUSD": 100000},
	})
	require.NoError(t, e.UpdatePrice(broker.Tick{Symbol: "EURUSD", Bid: 1.0998, Ask: 1.1000, Time: t0}))
	return newHarnessWith(t, e, e)
}

// newHarnessWith lets a test wrap the paper broker's gateway.
func newHarnessWith(t *testing.T, e *sim.Engine, gw broker.Gateway) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		sim:      e,
		journal:  newMemJournal(),
		cfg:      &staticConfig{cfg: testConfig()},
		queue:    intake.NewQueue(),
		notifier: &recordingNotifier{},
		now:      t0,
	}
	m, err := New(Options{
		Config:   h.cfg,
		Gateway:  gw,
		Journal:  h.journal,
		Queue:    h.queue,
		Notifier: h.notifier,
		Logger:   zaptest.NewLogger(t),
		Now:      func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) exec(raw string) Reply {
	h.t.Helper()
	cfg, _ := h.cfg.Load()
	return h.m.Execute(context.Background(), cfg, intake.NewRequest([]byte(raw)))
}

func (h *harness) price(bid, ask float64, at time.Time) {
	h.t.Helper()
	require.NoError(h.t, h.sim.UpdatePrice(broker.Tick{Symbol: "EURUSD", Bid: bid, Ask: ask, Time: at}))
}

// lock trips the basket with a hand-opened winning position.
func (h *harness) lock() {
	h.t.Helper()
	cfg := testConfig()
	cfg.System.RiskManagement = &config.RiskManagement{BasketEnabled: true, BasketTakeProfitUSD: floatPtr(1)}
	h.cfg.set(cfg, nil)

	_, err := h.sim.MarketOrder(context.Background(), broker.OrderRequest{Symbol: "EURUSD", Side: broker.Buy, Volume: 0.1})
	require.NoError(h.t, err)
	h.price(1.1010, 1.1012, t0)
	require.NoError(h.t, h.m.checkBasket(context.Background(), cfg))
	require.True(h.t, h.m.Locked())
}

func buySignal(extra string) string {
	return `{"strategy_id":"` + trendID + `","symbol":"EURUSD","action":"BUY"` + extra + `}`
}
