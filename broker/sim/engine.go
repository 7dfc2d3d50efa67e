// Package sim is an in-process paper broker. It implements broker.Gateway
// with MT5-like semantics: integer tickets, entry/exit deals and
// server-side stop-loss / take-profit triggers.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/trademanager/broker"
)

const defaultFirstTicket = 1000

type Options struct {
	AccountID int64
	Currency  string
	Balance   float64

	// ContractSizes maps symbol to units per lot. Missing symbols use 1.
	ContractSizes    map[string]float64
	CommissionPerLot float64
	FirstTicket      int64
}

type Engine struct {
	mu         sync.Mutex
	acct       broker.Account
	opts       Options
	prices     map[string]broker.Tick
	positions  map[int64]*broker.Position
	deals      []broker.Deal
	nextTicket int64
	nextDeal   int64
	rejectNext string
	now        func() time.Time
}

var _ broker.Gateway = (*Engine)(nil)

func NewEngine(opts Options) *Engine {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.FirstTicket <= 0 {
		opts.FirstTicket = defaultFirstTicket
	}
	return &Engine{
		acct: broker.Account{
			ID:       opts.AccountID,
			Currency: opts.Currency,
			Balance:  opts.Balance,
			Equity:   opts.Balance,
		},
		opts:       opts,
		prices:     make(map[string]broker.Tick),
		positions:  make(map[int64]*broker.Position),
		nextTicket: opts.FirstTicket,
		nextDeal:   opts.FirstTicket * 10,
		now:        time.Now,
	}
}

// SetClock replaces the wall clock used for deals without a tick time.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// RejectNext makes the next MarketOrder fail with the given broker reason.
func (e *Engine) RejectNext(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = reason
}

// SetSwap sets the accrued swap on an open position.
func (e *Engine) SetSwap(ticket int64, swap float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok {
		return fmt.Errorf("set swap: position %d not found", ticket)
	}
	p.Swap = swap
	return nil
}

func (e *Engine) Account(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.acct
	acct.Equity = acct.Balance
	for _, p := range e.positions {
		e.revalueLocked(p)
		acct.Equity += p.Floating()
	}
	return acct, nil
}

func (e *Engine) Tick(ctx context.Context, symbol string) (broker.Tick, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.prices[symbol]
	if !ok {
		return broker.Tick{}, fmt.Errorf("%s: %w", symbol, broker.ErrNoTick)
	}
	return t, nil
}

func (e *Engine) Positions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		e.revalueLocked(p)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (e *Engine) Deals(ctx context.Context, positionID int64) ([]broker.Deal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Deal
	for _, d := range e.deals {
		if d.PositionID == positionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *Engine) MarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rejectNext != "" {
		reason := e.rejectNext
		e.rejectNext = ""
		return broker.OrderResult{Reason: reason}, nil
	}
	if req.Volume <= 0 {
		return broker.OrderResult{Reason: "Invalid volume"}, nil
	}
	tick, ok := e.prices[req.Symbol]
	if !ok {
		return broker.OrderResult{Reason: "No prices"}, nil
	}

	fill := tick.Price(req.Side)
	if !validStops(req.Side, fill, req.StopLoss, req.TakeProfit) {
		return broker.OrderResult{Reason: "Invalid stops"}, nil
	}

	ticket := e.nextTicket
	e.nextTicket++

	openTime := e.tickTimeLocked(tick)
	p := &broker.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
		OpenTime:   openTime,
		Comment:    req.Comment,
	}
	e.positions[ticket] = p
	e.appendDealLocked(broker.Deal{
		PositionID: ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Entry:      broker.EntryIn,
		Reason:     broker.ReasonExpert,
		Volume:     req.Volume,
		Price:      fill,
		Magic:      req.Magic,
		Time:       openTime,
	})

	return broker.OrderResult{
		Ticket:  ticket,
		Success: true,
		Reason:  "Request executed",
		Price:   fill,
		Volume:  req.Volume,
	}, nil
}

// ClosePosition closes a position on behalf of a program (reason EXPERT).
// A zero request price closes at the current quote.
func (e *Engine) ClosePosition(ctx context.Context, req broker.CloseRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[req.Ticket]
	if !ok {
		return broker.OrderResult{Reason: "Position doesn't exist"}, nil
	}
	tick, ok := e.prices[p.Symbol]
	if !ok {
		return broker.OrderResult{Reason: "No prices"}, nil
	}
	price := req.Price
	if price == 0 {
		price = tick.ClosePrice(p.Side)
	}
	e.closeLocked(p, price, e.tickTimeLocked(tick), broker.ReasonExpert)

	return broker.OrderResult{
		Ticket:  req.Ticket,
		Success: true,
		Reason:  "Request executed",
		Price:   price,
		Volume:  p.Volume,
	}, nil
}

// CloseManual closes a position the way a human would from the terminal
// (reason CLIENT).
func (e *Engine) CloseManual(ticket int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok {
		return fmt.Errorf("close manual: position %d not found", ticket)
	}
	tick, ok := e.prices[p.Symbol]
	if !ok {
		return fmt.Errorf("close manual: no price for %q: %w", p.Symbol, broker.ErrNoTick)
	}
	e.closeLocked(p, tick.ClosePrice(p.Side), e.tickTimeLocked(tick), broker.ReasonClient)
	return nil
}

// UpdatePrice stores a quote and closes positions whose stop-loss or
// take-profit it crosses. Longs are marked at the bid, shorts at the ask.
func (e *Engine) UpdatePrice(t broker.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("update price: symbol is required")
	}
	if t.Bid <= 0 || t.Ask <= 0 || t.Ask < t.Bid {
		return fmt.Errorf("update price: invalid quote %s bid=%v ask=%v", t.Symbol, t.Bid, t.Ask)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prices[t.Symbol] = t
	when := e.tickTimeLocked(t)

	tickets := make([]int64, 0, len(e.positions))
	for ticket := range e.positions {
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })

	for _, ticket := range tickets {
		p := e.positions[ticket]
		if p.Symbol != t.Symbol {
			continue
		}
		mark := t.ClosePrice(p.Side)
		switch {
		case hitStopLoss(p, mark):
			e.closeLocked(p, mark, when, broker.ReasonSL)
		case hitTakeProfit(p, mark):
			e.closeLocked(p, mark, when, broker.ReasonTP)
		}
	}
	return nil
}

func (e *Engine) Close() error { return nil }

func (e *Engine) closeLocked(p *broker.Position, price float64, when time.Time, reason broker.DealReason) {
	profit := UnrealizedPL(p.Side, p.Volume, p.OpenPrice, price, e.contractSize(p.Symbol))
	comm := commission(e.opts.CommissionPerLot, p.Volume)

	e.appendDealLocked(broker.Deal{
		PositionID: p.Ticket,
		Symbol:     p.Symbol,
		Side:       p.Side.Opposite(),
		Entry:      broker.EntryOut,
		Reason:     reason,
		Volume:     p.Volume,
		Price:      price,
		Profit:     profit,
		Swap:       p.Swap,
		Commission: comm,
		Magic:      p.Magic,
		Time:       when,
	})
	e.acct.Balance += profit + p.Swap + comm
	delete(e.positions, p.Ticket)
}

func (e *Engine) appendDealLocked(d broker.Deal) {
	d.Ticket = e.nextDeal
	e.nextDeal++
	e.deals = append(e.deals, d)
}

func (e *Engine) revalueLocked(p *broker.Position) {
	tick, ok := e.prices[p.Symbol]
	if !ok {
		return
	}
	p.Profit = UnrealizedPL(p.Side, p.Volume, p.OpenPrice, tick.ClosePrice(p.Side), e.contractSize(p.Symbol))
}

func (e *Engine) tickTimeLocked(t broker.Tick) time.Time {
	if t.Time.IsZero() {
		return e.now()
	}
	return t.Time
}

func (e *Engine) contractSize(symbol string) float64 {
	if cs, ok := e.opts.ContractSizes[symbol]; ok && cs > 0 {
		return cs
	}
	return 1
}

func validStops(side broker.Side, price, sl, tp float64) bool {
	if side == broker.Buy {
		return (sl == 0 || sl < price) && (tp == 0 || tp > price)
	}
	return (sl == 0 || sl > price) && (tp == 0 || tp < price)
}
