package executor

import (
	"context"
	"math"

	"go.uber.org/zap"

	"trade-executor-go/order"
	"trade-executor-go/signal"
)

// HandleSignal converts a directional signal into an entry order. The
// signal is dropped when the cooldown is running, when the broker-reported
// position has no headroom, or when the book has no price on the entry side.
func (e *OrderExecutor) HandleSignal(ctx context.Context, sig signal.Signal) {
	if e.pos.InCooldown() {
		e.log.Debug("signal dropped, cooldown active",
			zap.Time("signalTime", sig.Timestamp))
		return
	}

	held := math.Abs(float64(e.pos.TrueShareCount()))
	if held >= e.asg.MaxPositionSize {
		e.log.Debug("signal dropped, position at cap",
			zap.Float64("held", held),
			zap.Float64("cap", e.asg.MaxPositionSize))
		return
	}

	size := math.Min(e.asg.MaxPositionSize-held, e.asg.UnitSize)
	if size <= 0 {
		return
	}

	price := e.book.EntryPrice(sig.Direction, e.asg.SpreadStrategy)
	if price <= 0 {
		e.log.Warn("signal dropped, no market data on entry side",
			zap.String("direction", string(sig.Direction)))
		return
	}

	action := order.ActionBuy
	if sig.Direction == signal.Bearish {
		action = order.ActionSell
	}

	o := order.New(e.broker.NextOrderID(), order.TypeEntry, action, size, price)
	if err := e.placeOrder(ctx, o, nil); err != nil {
		e.log.Debug("entry rejected", zap.Error(err))
	}
}
