package executor

import (
	"context"

	"go.uber.org/zap"

	"trade-executor-go/order"
	"trade-executor-go/position"
)

// EmergencyExitProtocol liquidates the position unconditionally: every
// open order except a pre-existing emergency order is cancelled, the
// emergency flag goes up, and liquidation is handed to the retry loop. If
// no retry loop is wired, a single liquidating order goes out inline.
//
// Reentrant calls while a previous invocation is still running are no-ops.
func (e *OrderExecutor) EmergencyExitProtocol(ctx context.Context) {
	if !e.protocolRunning.CompareAndSwap(false, true) {
		return
	}
	defer e.protocolRunning.Store(false)

	for _, o := range e.pos.Pool.Orders() {
		if o.Type != order.TypeEmergencyExit {
			e.cancelOrder(ctx, o)
		}
	}

	if e.pos.TrueShareCount() == 0 {
		e.setEmergency(false)
		e.log.Info("emergency protocol: already flat")
		return
	}

	e.setEmergency(true)
	e.log.Error("emergency exit engaged",
		zap.Int("trueShareCount", e.pos.TrueShareCount()))

	if e.onEmergency != nil {
		e.onEmergency()
		return
	}

	// No retry loop available; put one liquidating order out now.
	if o := e.pos.Pool.EmergencyExitOrder(); o != nil {
		action, size, price, ok := e.emergencyOrderSpec()
		if !ok {
			return
		}
		if o.Action == action && o.RequiresUpdate(size, price) {
			if err := e.modifyOrder(ctx, o, size, price); err != nil {
				e.log.Error("emergency modify failed", zap.Error(err))
			}
		}
		return
	}
	e.placeEmergencyOrder(ctx)
}

// EmergencyRetryStep runs one iteration of the emergency retry loop.
// Returns true when liquidation is complete and the loop should stop.
func (e *OrderExecutor) EmergencyRetryStep(ctx context.Context) bool {
	if !e.emergencyExit.Load() {
		return true
	}
	if e.pos.TrueShareCount() == 0 {
		e.setEmergency(false)
		e.log.Info("emergency exit complete, position flat")
		return true
	}

	e.mon.EmergencyRetry(e.asg.Ticker)

	// The previous attempt did not flatten us; pull it and re-price
	// against the current touch.
	for _, o := range e.pos.Pool.OrdersOfType(order.TypeEmergencyExit) {
		e.cancelOrder(ctx, o)
		e.pos.Pool.Remove(o.ID)
	}
	e.placeEmergencyOrder(ctx)
	return false
}

// emergencyOrderSpec sizes the liquidating order to the broker's full
// count at the passive touch, falling back to the last trade price.
func (e *OrderExecutor) emergencyOrderSpec() (order.Action, float64, float64, bool) {
	held := e.pos.TrueShareCount()
	if held == 0 {
		return "", 0, 0, false
	}

	side := position.SideLong
	action := order.ActionSell
	if held < 0 {
		side = position.SideShort
		action = order.ActionBuy
	}

	price := e.book.PassiveTouch(side)
	if price <= 0 {
		e.log.Error("emergency exit has no price to liquidate at")
		return "", 0, 0, false
	}
	return action, float64(abs(held)), price, true
}

func (e *OrderExecutor) placeEmergencyOrder(ctx context.Context) {
	action, size, price, ok := e.emergencyOrderSpec()
	if !ok {
		return
	}
	o := order.New(e.broker.NextOrderID(), order.TypeEmergencyExit, action, size, price)
	if err := e.placeOrder(ctx, o, nil); err != nil {
		e.log.Error("emergency order rejected", zap.Error(err))
	}
}
