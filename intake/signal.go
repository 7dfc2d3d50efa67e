// Package intake receives trade signals from strategy processes and hands
// them, one at a time, to the manager loop. Every request gets exactly one
// text reply.
package intake

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rustyeddy/trademanager/broker"
)

var ErrInvalidSignal = errors.New("invalid signal")

// Signal is the JSON document a strategy sends.
type Signal struct {
	StrategyID string   `json:"strategy_id"`
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Volume     *float64 `json:"volume,omitempty"`
	// DynamicTP is a take-profit distance in points that replaces the
	// configured one for this order.
	DynamicTP    *float64       `json:"dynamic_tp,omitempty"`
	ExtraMetrics map[string]any `json:"extra_metrics,omitempty"`
}

func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, fmt.Errorf("%w: empty message", ErrInvalidSignal)
	}
	if err := sonic.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	return s, nil
}

// Validate checks the fields needed to place an order. The strategy id is
// resolved by the caller against the live config.
func (s Signal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	}
	if _, err := broker.ParseSide(s.Action); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if s.Volume != nil && (math.IsNaN(*s.Volume) || math.IsInf(*s.Volume, 0)) {
		return fmt.Errorf("%w: volume must be a finite number", ErrInvalidSignal)
	}
	if s.DynamicTP != nil {
		v := *s.DynamicTP
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: dynamic_tp must be a non-negative number", ErrInvalidSignal)
		}
	}
	return nil
}

// Side is the parsed action; call Validate first.
func (s Signal) Side() broker.Side {
	side, _ := broker.ParseSide(s.Action)
	return side
}

// VolumeOr returns the signal's volume when it is positive, else def.
func (s Signal) VolumeOr(def float64) float64 {
	if s.Volume != nil && *s.Volume > 0 {
		return *s.Volume
	}
	return def
}
