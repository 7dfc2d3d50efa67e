// Package risk implements the account-wide basket governor: it watches the
// summed floating result of every open position and, when a configured
// profit or loss limit is crossed, closes everything and locks new entries.
package risk

import (
	"time"

	"github.com/rustyeddy/trademanager/config"
)

// Policy is the basket configuration for one check. It is rebuilt from the
// config snapshot every cycle, so edits apply without a restart.
type Policy struct {
	Enabled bool

	// TakeProfit is a positive currency amount; 0 disables it.
	TakeProfit float64
	// StopLoss is a negative currency amount; 0 disables it.
	StopLoss float64

	UnlockPolicy string // config.UnlockRestart or config.UnlockDaily
	Location     *time.Location
}

func PolicyFromConfig(rm config.RiskManagement) Policy {
	p := Policy{
		Enabled:      rm.BasketEnabled,
		UnlockPolicy: rm.UnlockPolicy,
		Location:     time.Local,
	}
	if rm.BasketTakeProfitUSD != nil && *rm.BasketTakeProfitUSD > 0 {
		p.TakeProfit = *rm.BasketTakeProfitUSD
	}
	if rm.BasketStopLossUSD != nil && *rm.BasketStopLossUSD < 0 {
		p.StopLoss = *rm.BasketStopLossUSD
	}
	if p.UnlockPolicy == "" {
		p.UnlockPolicy = config.UnlockRestart
	}
	if rm.UnlockTimezone != "" {
		if loc, err := time.LoadLocation(rm.UnlockTimezone); err == nil {
			p.Location = loc
		}
	}
	return p
}
