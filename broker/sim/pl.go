package sim

import (
	"github.com/rustyeddy/trademanager/broker"
	"github.com/shopspring/decimal"
)

// UnrealizedPL values a position at mark in account currency, rounded to cents.
func UnrealizedPL(side broker.Side, volume, openPrice, mark, contractSize float64) float64 {
	move := decimal.NewFromFloat(mark).Sub(decimal.NewFromFloat(openPrice))
	pl := move.
		Mul(decimal.NewFromFloat(volume)).
		Mul(decimal.NewFromFloat(contractSize)).
		Mul(decimal.NewFromInt(int64(side.Direction())))
	return pl.Round(2).InexactFloat64()
}

func commission(perLot, volume float64) float64 {
	if perLot == 0 {
		return 0
	}
	return decimal.NewFromFloat(perLot).
		Mul(decimal.NewFromFloat(volume)).
		Neg().
		Round(2).
		InexactFloat64()
}

func hitStopLoss(p *broker.Position, mark float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Side == broker.Buy {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}

func hitTakeProfit(p *broker.Position, mark float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Side == broker.Buy {
		return mark >= p.TakeProfit
	}
	return mark <= p.TakeProfit
}
