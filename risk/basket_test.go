package risk

import (
	"testing"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/config"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluateBasket(t *testing.T) {
	t.Parallel()

	policy := Policy{Enabled: true, TakeProfit: 100, StopLoss: -50}
	pos := func(profit, swap float64) broker.Position {
		return broker.Position{Profit: profit, Swap: swap}
	}

	tests := []struct {
		name      string
		policy    Policy
		positions []broker.Position
		want      Trigger
		floating  float64
	}{
		{"disabled", Policy{TakeProfit: 1}, []broker.Position{pos(500, 0)}, TriggerNone, 0},
		{"no positions", policy, nil, TriggerNone, 0},
		{"inside band", policy, []broker.Position{pos(30, 0), pos(-10, -1)}, TriggerNone, 19},
		{"take profit at limit", policy, []broker.Position{pos(60, 0), pos(40, 0)}, TriggerTakeProfit, 100},
		{"swap counts", policy, []broker.Position{pos(99.5, 0.5)}, TriggerTakeProfit, 100},
		{"stop loss", policy, []broker.Position{pos(-40, -10.01)}, TriggerStopLoss, -50.01},
		{"no stop configured", Policy{Enabled: true, TakeProfit: 100}, []broker.Position{pos(-1000, 0)}, TriggerNone, -1000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := EvaluateBasket(tt.policy, tt.positions)
			assert.Equal(t, tt.want, d.Trigger)
			assert.InDelta(t, tt.floating, d.FloatingPL, 1e-9)
			assert.Equal(t, len(tt.positions), d.Positions)
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	t.Parallel()

	p := PolicyFromConfig(config.RiskManagement{
		BasketEnabled:       true,
		BasketTakeProfitUSD: floatPtr(250),
		BasketStopLossUSD:   floatPtr(-125),
		UnlockPolicy:        config.UnlockDaily,
		UnlockTimezone:      "America/New_York",
	})
	assert.True(t, p.Enabled)
	assert.Equal(t, 250.0, p.TakeProfit)
	assert.Equal(t, -125.0, p.StopLoss)
	assert.Equal(t, config.UnlockDaily, p.UnlockPolicy)
	assert.Equal(t, "America/New_York", p.Location.String())

	empty := PolicyFromConfig(config.RiskManagement{BasketStopLossUSD: floatPtr(0)})
	assert.False(t, empty.Enabled)
	assert.Zero(t, empty.TakeProfit)
	assert.Zero(t, empty.StopLoss)
	assert.Equal(t, config.UnlockRestart, empty.UnlockPolicy)
	assert.Equal(t, time.Local, empty.Location)
}

func TestStopPrices(t *testing.T) {
	t.Parallel()

	sl, tp := StopPrices(broker.Buy, 1.1000, 5, 10, 0.0001)
	assert.Equal(t, 1.0995, sl)
	assert.Equal(t, 1.1010, tp)

	sl, tp = StopPrices(broker.Sell, 1.0998, 5, 10, 0.0001)
	assert.Equal(t, 1.1003, sl)
	assert.Equal(t, 1.0988, tp)

	sl, tp = StopPrices(broker.Buy, 4500, 0, 2.5, 1)
	assert.Zero(t, sl)
	assert.Equal(t, 4502.5, tp)
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(1.1000, 1.0995, 1.1010), 1e-9)
	assert.Zero(t, RR(1.1000, 0, 1.1010))
	assert.Zero(t, RR(1.1000, 1.1000, 1.1010))
}
