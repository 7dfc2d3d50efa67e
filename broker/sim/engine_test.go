package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Options{
		AccountID:     4242,
		Balance:       10000,
		ContractSizes: map[string]float64{"EURUSD": 100000},
	})
	setPrice(t, e, "EURUSD", 1.0998, 1.1000, t0)
	return e
}

func setPrice(t *testing.T, e *Engine, symbol string, bid, ask float64, tm time.Time) {
	t.Helper()
	require.NoError(t, e.UpdatePrice(broker.Tick{Symbol: symbol, Bid: bid, Ask: ask, Time: tm}))
}

func openMarket(t *testing.T, e *Engine, side broker.Side, volume, sl, tp float64) broker.OrderResult {
	t.Helper()
	res, err := e.MarketOrder(context.Background(), broker.OrderRequest{
		Symbol:     "EURUSD",
		Side:       side,
		Volume:     volume,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      1001,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Reason)
	return res
}

func TestMarketOrderFillsAtAskAndBid(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	buy := openMarket(t, e, broker.Buy, 0.1, 0, 0)
	sell := openMarket(t, e, broker.Sell, 0.2, 0, 0)

	assert.Equal(t, int64(1000), buy.Ticket)
	assert.Equal(t, int64(1001), sell.Ticket)
	assert.Equal(t, 1.1000, buy.Price)
	assert.Equal(t, 1.0998, sell.Price)

	positions, err := e.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, int64(1001), positions[1].Ticket)
	assert.Equal(t, int64(1001), positions[0].Magic)

	deals, err := e.Deals(ctx, buy.Ticket)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, broker.EntryIn, deals[0].Entry)
}

func TestMarketOrderRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		req    broker.OrderRequest
		reject string
		want   string
	}{
		{"zero volume", broker.OrderRequest{Symbol: "EURUSD", Volume: 0}, "", "Invalid volume"},
		{"unknown symbol", broker.OrderRequest{Symbol: "XAUUSD", Volume: 1}, "", "No prices"},
		{"buy stop above price", broker.OrderRequest{Symbol: "EURUSD", Volume: 1, StopLoss: 1.2}, "", "Invalid stops"},
		{"sell tp above price", broker.OrderRequest{Symbol: "EURUSD", Side: broker.Sell, Volume: 1, TakeProfit: 1.2}, "", "Invalid stops"},
		{"forced", broker.OrderRequest{Symbol: "EURUSD", Volume: 1}, "Market closed", "Market closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			if tt.reject != "" {
				e.RejectNext(tt.reject)
			}
			res, err := e.MarketOrder(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestRejectNextOnlyOnce(t *testing.T) {
	e := newEngine(t)
	e.RejectNext("Requote")

	res, err := e.MarketOrder(context.Background(), broker.OrderRequest{Symbol: "EURUSD", Volume: 0.1})
	require.NoError(t, err)
	assert.False(t, res.Success)

	openMarket(t, e, broker.Buy, 0.1, 0, 0)
}

func TestUpdatePriceTriggersTakeProfit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res := openMarket(t, e, broker.Buy, 0.1, 1.0995, 1.1010)

	setPrice(t, e, "EURUSD", 1.1011, 1.1013, t0.Add(time.Minute))

	positions, err := e.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	deals, err := e.Deals(ctx, res.Ticket)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	exit := deals[1]
	assert.Equal(t, broker.EntryOut, exit.Entry)
	assert.Equal(t, broker.ReasonTP, exit.Reason)
	assert.Equal(t, broker.Sell, exit.Side)
	assert.Equal(t, int64(1001), exit.Magic)
	// (1.1011 - 1.1000) * 0.1 lot * 100000
	assert.InDelta(t, 11.0, exit.Profit, 1e-9)
	assert.Equal(t, t0.Add(time.Minute), exit.Time)

	acct, err := e.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10011.0, acct.Balance, 1e-9)
}

func TestUpdatePriceTriggersShortStopLoss(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res := openMarket(t, e, broker.Sell, 1, 1.1008, 0)

	setPrice(t, e, "EURUSD", 1.1007, 1.1009, t0.Add(time.Minute))

	deals, err := e.Deals(ctx, res.Ticket)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, broker.ReasonSL, deals[1].Reason)
	// short opened at bid 1.0998, closed at ask 1.1009
	assert.InDelta(t, -110.0, deals[1].Profit, 1e-9)
}

func TestAccountEquityIncludesFloating(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	res := openMarket(t, e, broker.Buy, 0.1, 0, 0)
	require.NoError(t, e.SetSwap(res.Ticket, -1.5))
	setPrice(t, e, "EURUSD", 1.1020, 1.1022, t0.Add(time.Minute))

	acct, err := e.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), acct.ID)
	assert.InDelta(t, 10000.0, acct.Balance, 1e-9)
	assert.InDelta(t, 10018.5, acct.Equity, 1e-9)

	positions, err := e.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 20.0, positions[0].Profit, 1e-9)
	assert.InDelta(t, 18.5, positions[0].Floating(), 1e-9)
}

func TestClosePositionAndCloseManual(t *testing.T) {
	e := NewEngine(Options{Balance: 1000, CommissionPerLot: 7})
	setPrice(t, e, "EURUSD", 1.0998, 1.1000, t0)
	ctx := context.Background()

	a := openMarket(t, e, broker.Buy, 1, 0, 0)
	b := openMarket(t, e, broker.Buy, 1, 0, 0)

	res, err := e.ClosePosition(ctx, broker.CloseRequest{Ticket: a.Ticket})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.NoError(t, e.CloseManual(b.Ticket))

	da, err := e.Deals(ctx, a.Ticket)
	require.NoError(t, err)
	require.Len(t, da, 2)
	assert.Equal(t, broker.ReasonExpert, da[1].Reason)
	assert.InDelta(t, -7.0, da[1].Commission, 1e-9)

	db, err := e.Deals(ctx, b.Ticket)
	require.NoError(t, err)
	require.Len(t, db, 2)
	assert.Equal(t, broker.ReasonClient, db[1].Reason)

	res, err = e.ClosePosition(ctx, broker.CloseRequest{Ticket: a.Ticket})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Error(t, e.CloseManual(b.Ticket))
}

func TestTickMissingSymbol(t *testing.T) {
	e := newEngine(t)
	_, err := e.Tick(context.Background(), "GBPUSD")
	assert.ErrorIs(t, err, broker.ErrNoTick)
}

func TestUpdatePriceRejectsBadQuote(t *testing.T) {
	e := newEngine(t)
	assert.Error(t, e.UpdatePrice(broker.Tick{Symbol: "EURUSD", Bid: 1.2, Ask: 1.1}))
	assert.Error(t, e.UpdatePrice(broker.Tick{Bid: 1.1, Ask: 1.2}))
}

func TestUnrealizedPL(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 5.0, UnrealizedPL(broker.Buy, 0.1, 1.1000, 1.1005, 100000), 1e-9)
	assert.InDelta(t, -5.0, UnrealizedPL(broker.Sell, 0.1, 1.1000, 1.1005, 100000), 1e-9)
	assert.InDelta(t, 30.0, UnrealizedPL(broker.Buy, 1, 4500, 4530, 1), 1e-9)
}
