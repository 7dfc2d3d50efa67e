package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/config"
	"go.uber.org/zap"
)

const BasketCloseComment = "Basket Close"

// Closer is the part of broker.Gateway the governor needs.
type Closer interface {
	Positions(ctx context.Context) ([]broker.Position, error)
	Tick(ctx context.Context, symbol string) (broker.Tick, error)
	ClosePosition(ctx context.Context, req broker.CloseRequest) (broker.OrderResult, error)
}

// Result reports what one Check did.
type Result struct {
	Decision Decision
	// Locked is set on the call that tripped the basket.
	Locked bool
	// Unlocked is set on the call that released a daily lock.
	Unlocked bool
	Closed   []int64
	Failed   map[int64]string
}

// Governor is the basket state machine. It is owned by the manager loop and
// is not safe for concurrent use.
type Governor struct {
	state    State
	trigger  Trigger
	lockedAt time.Time
	// tickets closed on lock that may still be open
	flatten map[int64]bool
	log     *zap.Logger
}

func NewGovernor(log *zap.Logger) *Governor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Governor{log: log, flatten: make(map[int64]bool)}
}

func (g *Governor) State() State        { return g.state }
func (g *Governor) Locked() bool        { return g.state == Locked }
func (g *Governor) Trigger() Trigger    { return g.trigger }
func (g *Governor) LockedAt() time.Time { return g.lockedAt }

// Pending lists tickets the governor is still trying to close.
func (g *Governor) Pending() []int64 {
	out := make([]int64, 0, len(g.flatten))
	for t := range g.flatten {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check runs one governor cycle. While unlocked it evaluates the basket and,
// on a trigger, closes every open position and locks in the same call.
// While locked it keeps closing whatever it failed to close and applies the
// unlock policy.
func (g *Governor) Check(ctx context.Context, gw Closer, p Policy, now time.Time) (Result, error) {
	if g.state == Unlocked && !p.Enabled {
		return Result{}, nil
	}

	positions, err := gw.Positions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("basket positions: %w", err)
	}

	if g.state == Locked {
		return g.whileLocked(ctx, gw, p, positions, now), nil
	}

	d := EvaluateBasket(p, positions)
	res := Result{Decision: d}
	if d.Trigger == TriggerNone {
		return res, nil
	}

	g.log.Warn("basket limit hit, closing all positions",
		zap.Stringer("trigger", d.Trigger),
		zap.Float64("floating_pl", d.FloatingPL),
		zap.Float64("limit", d.Limit),
		zap.Int("positions", len(positions)),
	)

	for _, pos := range positions {
		g.flatten[pos.Ticket] = true
	}
	res.Closed, res.Failed = g.closeAll(ctx, gw, positions)

	g.state = Locked
	g.trigger = d.Trigger
	g.lockedAt = now
	res.Locked = true
	return res, nil
}

func (g *Governor) whileLocked(ctx context.Context, gw Closer, p Policy, positions []broker.Position, now time.Time) Result {
	res := Result{Decision: Decision{Positions: len(positions), FloatingPL: FloatingPL(positions)}}

	live := make(map[int64]bool, len(positions))
	var retry []broker.Position
	for _, pos := range positions {
		live[pos.Ticket] = true
		if g.flatten[pos.Ticket] {
			retry = append(retry, pos)
		}
	}
	for ticket := range g.flatten {
		if !live[ticket] {
			delete(g.flatten, ticket)
		}
	}
	if len(retry) > 0 {
		res.Closed, res.Failed = g.closeAll(ctx, gw, retry)
	}

	if p.UnlockPolicy == config.UnlockDaily && len(g.flatten) == 0 && laterDay(g.lockedAt, now, p.Location) {
		g.log.Info("basket lock released for new trading day",
			zap.Time("locked_at", g.lockedAt),
			zap.Stringer("trigger", g.trigger),
		)
		g.state = Unlocked
		g.trigger = TriggerNone
		g.lockedAt = time.Time{}
		res.Unlocked = true
	}
	return res
}

func (g *Governor) closeAll(ctx context.Context, gw Closer, positions []broker.Position) ([]int64, map[int64]string) {
	var closed []int64
	failed := make(map[int64]string)

	for _, pos := range positions {
		if err := closeAtMarket(ctx, gw, pos); err != nil {
			failed[pos.Ticket] = err.Error()
			g.log.Error("basket close failed",
				zap.Int64("ticket", pos.Ticket),
				zap.String("symbol", pos.Symbol),
				zap.Error(err),
			)
			continue
		}
		delete(g.flatten, pos.Ticket)
		closed = append(closed, pos.Ticket)
	}
	if len(failed) == 0 {
		failed = nil
	}
	return closed, failed
}

func closeAtMarket(ctx context.Context, gw Closer, pos broker.Position) error {
	tick, err := gw.Tick(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	res, err := gw.ClosePosition(ctx, broker.CloseRequest{
		Ticket:  pos.Ticket,
		Symbol:  pos.Symbol,
		Side:    pos.Side.Opposite(),
		Volume:  pos.Volume,
		Price:   tick.ClosePrice(pos.Side),
		Magic:   pos.Magic,
		Comment: BasketCloseComment,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("close rejected: %s", res.Reason)
	}
	return nil
}

// laterDay reports whether now falls on a later calendar day than since.
func laterDay(since, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	sy, sm, sd := since.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC).After(time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC))
}
