package risk

import (
	"github.com/rustyeddy/trademanager/broker"
	"github.com/shopspring/decimal"
)

// StopPrices converts stop distances in points into absolute prices around
// entry. A zero distance yields a zero price, meaning no stop.
func StopPrices(side broker.Side, entry, slPoints, tpPoints, point float64) (sl, tp float64) {
	e := decimal.NewFromFloat(entry)
	pt := decimal.NewFromFloat(point)
	dir := decimal.NewFromInt(int64(side.Direction()))

	if slPoints > 0 {
		dist := decimal.NewFromFloat(slPoints).Mul(pt)
		sl = e.Sub(dist.Mul(dir)).InexactFloat64()
	}
	if tpPoints > 0 {
		dist := decimal.NewFromFloat(tpPoints).Mul(pt)
		tp = e.Add(dist.Mul(dir)).InexactFloat64()
	}
	return sl, tp
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// RR is the planned reward to risk ratio, 0 without a stop.
func RR(entry, stop, takeProfit float64) float64 {
	if stop == 0 || takeProfit == 0 {
		return 0
	}
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}
