package manager

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/intake"
	"github.com/rustyeddy/trademanager/risk"
	"go.uber.org/zap"
)

// handle executes one request and always answers it, even if execution
// panics.
func (m *Manager) handle(ctx context.Context, cfg *config.Config, req *intake.Request) {
	reply := Reply{Kind: ReplyInternalError}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("signal handler panic",
				zap.String("request_id", req.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		req.Respond(reply.String())
	}()
	reply = m.Execute(ctx, cfg, req)
}

// Execute turns one signal into at most one market order. Checks run in a
// fixed order: lock, strategy lookup, enabled flag, then the signal itself.
func (m *Manager) Execute(ctx context.Context, cfg *config.Config, req *intake.Request) Reply {
	log := m.log.With(zap.String("request_id", req.ID), zap.String("strategy", req.Signal.StrategyID))

	if m.governor.Locked() {
		log.Info("signal rejected, basket locked")
		return Reply{Kind: ReplyLocked}
	}
	if req.Err != nil {
		log.Warn("undecodable signal", zap.Error(req.Err))
		return Reply{Kind: ReplyInvalid, Reason: trimInvalid(req.Err)}
	}

	sig := req.Signal
	strat, ok := cfg.Strategy(sig.StrategyID)
	if !ok {
		log.Warn("unknown strategy")
		return Reply{Kind: ReplyUnknownStrategy}
	}
	if !strat.Enabled {
		log.Info("strategy disabled")
		return Reply{Kind: ReplyDisabled}
	}
	if err := sig.Validate(); err != nil {
		log.Warn("invalid signal", zap.Error(err))
		return Reply{Kind: ReplyInvalid, Reason: trimInvalid(err)}
	}

	side := sig.Side()
	volume := sig.VolumeOr(strat.Volume)
	limits := strat.TradeLimits
	tpPoints := limits.TakeProfitPoints()
	if sig.DynamicTP != nil {
		tpPoints = *sig.DynamicTP
	}

	tick, err := m.gw.Tick(ctx, sig.Symbol)
	if err != nil {
		if !errors.Is(err, broker.ErrNoTick) {
			log.Warn("tick lookup failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
		return Reply{Kind: ReplyNoData}
	}

	price := tick.Price(side)
	sl, tp := risk.StopPrices(side, price, limits.SLPoints, tpPoints, limits.Point())

	res, err := m.gw.MarketOrder(ctx, broker.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Volume:     volume,
		Price:      price,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      strat.MagicNumber,
		Comment:    sig.StrategyID,
	})
	if err != nil {
		log.Error("order send failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return Reply{Kind: ReplyFailed, Reason: err.Error()}
	}
	if !res.Success {
		log.Warn("order rejected", zap.String("symbol", sig.Symbol), zap.String("reason", res.Reason))
		return Reply{Kind: ReplyFailed, Reason: res.Reason}
	}

	m.tracked[res.Ticket] = sig.StrategyID
	m.pending[res.Ticket] = tradeContext{
		Meta:       sig.ExtraMetrics,
		StopLoss:   sl,
		TakeProfit: tp,
		RequestID:  req.ID,
	}

	log.Info("position opened",
		zap.Int64("ticket", res.Ticket),
		zap.String("symbol", sig.Symbol),
		zap.Stringer("side", side),
		zap.Float64("volume", volume),
		zap.Float64("price", price),
		zap.Float64("sl", sl),
		zap.Float64("tp", tp),
		zap.Float64("rr", risk.RR(price, sl, tp)),
	)
	return Reply{Kind: ReplyOpened, Side: side, Ticket: res.Ticket, Volume: volume}
}

// trimInvalid drops the sentinel prefix so the reply reads
// "Invalid Signal (symbol is required)".
func trimInvalid(err error) string {
	return strings.TrimPrefix(err.Error(), intake.ErrInvalidSignal.Error()+": ")
}
