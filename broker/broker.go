// Package broker defines the gateway contract the trade manager uses to talk
// to a brokerage terminal, plus the value types exchanged over it.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoTick is returned by Gateway.Tick when the symbol has no current quote.
var ErrNoTick = errors.New("no market data")

type Gateway interface {
	Account(ctx context.Context) (Account, error)
	Tick(ctx context.Context, symbol string) (Tick, error)
	Positions(ctx context.Context) ([]Position, error)
	// Deals returns the full deal history of a single position.
	Deals(ctx context.Context, positionID int64) ([]Deal, error)
	MarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, req CloseRequest) (OrderResult, error)
	Close() error
}

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Direction is +1 for longs and -1 for shorts.
func (s Side) Direction() int {
	if s == Sell {
		return -1
	}
	return 1
}

func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return Buy, fmt.Errorf("unknown action %q (want BUY|SELL)", v)
	}
}

type Account struct {
	ID       int64
	Currency string
	Balance  float64
	Equity   float64
}

type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Price is the price an order on the given side fills at:
// buys lift the ask, sells hit the bid.
func (t Tick) Price(side Side) float64 {
	if side == Sell {
		return t.Bid
	}
	return t.Ask
}

// ClosePrice is the price a position of the given side is closed at.
func (t Tick) ClosePrice(side Side) float64 {
	return t.Price(side.Opposite())
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Magic      int64
	Profit     float64
	Swap       float64
	OpenTime   time.Time
	Comment    string
}

// Floating is the unrealized result used for basket accounting.
func (p Position) Floating() float64 {
	return p.Profit + p.Swap
}

type DealEntry int

const (
	EntryIn DealEntry = iota
	EntryOut
	EntryInOut
	EntryOutBy
)

func (e DealEntry) String() string {
	switch e {
	case EntryIn:
		return "IN"
	case EntryOut:
		return "OUT"
	case EntryInOut:
		return "INOUT"
	case EntryOutBy:
		return "OUT_BY"
	default:
		return fmt.Sprintf("DealEntry(%d)", int(e))
	}
}

// Closes reports whether a deal with this entry closes (part of) a position.
func (e DealEntry) Closes() bool {
	return e == EntryOut || e == EntryInOut || e == EntryOutBy
}

type DealReason int

const (
	ReasonClient DealReason = iota
	ReasonMobile
	ReasonWeb
	ReasonExpert
	ReasonSL
	ReasonTP
	ReasonStopOut
	ReasonOther
)

func (r DealReason) String() string {
	switch r {
	case ReasonClient:
		return "CLIENT"
	case ReasonMobile:
		return "MOBILE"
	case ReasonWeb:
		return "WEB"
	case ReasonExpert:
		return "EXPERT"
	case ReasonSL:
		return "SL"
	case ReasonTP:
		return "TP"
	case ReasonStopOut:
		return "SO"
	default:
		return "OTHER"
	}
}

type Deal struct {
	Ticket     int64
	PositionID int64
	Symbol     string
	Side       Side
	Entry      DealEntry
	Reason     DealReason
	Volume     float64
	Price      float64
	Profit     float64
	Swap       float64
	Commission float64
	Magic      int64
	Time       time.Time
}

type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   float64 // 0 means none
	TakeProfit float64 // 0 means none
	Magic      int64
	Comment    string
}

type CloseRequest struct {
	Ticket  int64
	Symbol  string
	Side    Side // side of the closing deal, opposite of the position
	Volume  float64
	Price   float64
	Magic   int64
	Comment string
}

type OrderResult struct {
	Ticket  int64
	Success bool
	Reason  string
	Price   float64
	Volume  float64
}
