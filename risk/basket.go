package risk

import (
	"github.com/rustyeddy/trademanager/broker"
	"github.com/shopspring/decimal"
)

type State int

const (
	Unlocked State = iota
	Locked
)

func (s State) String() string {
	if s == Locked {
		return "LOCKED"
	}
	return "UNLOCKED"
}

type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerTakeProfit
	TriggerStopLoss
)

func (t Trigger) String() string {
	switch t {
	case TriggerTakeProfit:
		return "BASKET_TP"
	case TriggerStopLoss:
		return "BASKET_SL"
	default:
		return "NONE"
	}
}

type Decision struct {
	Trigger    Trigger
	FloatingPL float64
	Limit      float64
	Positions  int
}

// FloatingPL sums profit plus swap over positions, rounded to cents.
func FloatingPL(positions []broker.Position) float64 {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(decimal.NewFromFloat(p.Profit)).Add(decimal.NewFromFloat(p.Swap))
	}
	return total.Round(2).InexactFloat64()
}

// EvaluateBasket decides whether the basket crossed a limit. Take profit is
// checked before stop loss.
func EvaluateBasket(p Policy, positions []broker.Position) Decision {
	d := Decision{Positions: len(positions)}
	if !p.Enabled || len(positions) == 0 {
		return d
	}
	d.FloatingPL = FloatingPL(positions)

	switch {
	case p.TakeProfit > 0 && d.FloatingPL >= p.TakeProfit:
		d.Trigger = TriggerTakeProfit
		d.Limit = p.TakeProfit
	case p.StopLoss < 0 && d.FloatingPL <= p.StopLoss:
		d.Trigger = TriggerStopLoss
		d.Limit = p.StopLoss
	}
	return d
}
