package executor

import (
	"context"
	"math"

	"go.uber.org/zap"

	"trade-executor-go/order"
	"trade-executor-go/risk"
)

// HandleExpiredPositions places an exit for the oldest trade held past its
// hold threshold. At most one exit is in flight per trade; the next expired
// trade is picked up on the following monitor pass.
func (e *OrderExecutor) HandleExpiredPositions(ctx context.Context) {
	if e.pos.InCooldown() {
		return
	}
	t := e.pos.TradeToClose()
	if t == nil {
		return
	}
	if t.ExitOrderID != 0 {
		return
	}

	price := e.book.ExitPrice(t.Side, e.asg.SpreadStrategy)
	if price <= 0 {
		e.log.Warn("expired trade held, no market data on exit side",
			zap.Int64("tradeID", t.ID))
		return
	}

	o := order.New(e.broker.NextOrderID(), order.TypeExit, t.Side.ExitAction(), t.Size, price)
	if err := e.placeOrder(ctx, o, t); err != nil {
		e.log.Debug("exit rejected", zap.Int64("tradeID", t.ID), zap.Error(err))
	}
}

// HandleDanglingShares enforces the position cap against the broker's
// count: when it runs over, every resting entry is pulled so no further
// shares can accumulate.
func (e *OrderExecutor) HandleDanglingShares(ctx context.Context) {
	if math.Abs(float64(e.pos.TrueShareCount())) > e.asg.MaxPositionSize {
		e.log.Warn("broker position over cap, cancelling pending entries",
			zap.Int("trueShareCount", e.pos.TrueShareCount()),
			zap.Float64("cap", e.asg.MaxPositionSize))
		e.cancelPendingEntries(ctx)
	}
}

// HandleMaxPositionSizeCheck cancels resting entries once the broker count
// reaches the cap.
func (e *OrderExecutor) HandleMaxPositionSizeCheck(ctx context.Context) {
	if math.Abs(float64(e.pos.TrueShareCount())) >= e.asg.MaxPositionSize {
		e.cancelPendingEntries(ctx)
	}
}

// HandleStaleBrackets cancels take profit and stop loss orders orphaned by
// a flat broker position.
func (e *OrderExecutor) HandleStaleBrackets(ctx context.Context) {
	for _, o := range risk.StaleBrackets(e.pos) {
		e.cancelOrder(ctx, o)
	}
}

// HandlePnLChecks fires the emergency protocol when any closed trade has
// realized a loss past the per-trade limit.
func (e *OrderExecutor) HandlePnLChecks(ctx context.Context) {
	pnls := e.pos.RealizedPnLs()
	if len(pnls) == 0 {
		return
	}
	worst := pnls[0]
	for _, pnl := range pnls[1:] {
		if pnl < worst {
			worst = pnl
		}
	}
	if worst < -e.asg.MaxLossPerTrade {
		e.log.Error("per-trade loss limit breached",
			zap.Float64("worst", worst),
			zap.Float64("limit", e.asg.MaxLossPerTrade))
		e.EmergencyExitProtocol(ctx)
	}
}

// HandlePositionUpdate applies a broker position callback and runs the
// limit sweep it may have requested.
func (e *OrderExecutor) HandlePositionUpdate(ctx context.Context, shareCount int, avgPrice float64) {
	e.limitSweep = false
	e.pos.OnBrokerPositionUpdate(shareCount, avgPrice)

	e.mon.SetTrueShareCount(e.asg.Ticker, shareCount)
	e.mon.SetInternalSize(e.asg.Ticker, e.pos.Size())

	if e.limitSweep {
		e.limitSweep = false
		e.HandleMaxPositionSizeCheck(ctx)
	}
	e.drainCancels(ctx)
}

// HandlePnLUpdate records a broker PnL callback for monitoring.
func (e *OrderExecutor) HandlePnLUpdate(realized, unrealized float64) {
	e.mon.SetPnL(e.asg.Ticker, realized, unrealized)
}
