package executor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"trade-executor-go/order"
)

// OnOrderStatus applies one broker lifecycle event and runs the follow-up
// actions the order type demands. Duplicate terminal events surface as
// ErrOrderDoesNotExist from the pool and are dropped here, which is the
// idempotence guarantee.
func (e *OrderExecutor) OnOrderStatus(ctx context.Context, orderID int64, status order.Status, filled, avgPrice float64) {
	switch status {
	case order.StatusPreSubmitted:
		e.onPreSubmitted(ctx, orderID)
	case order.StatusSubmitted:
		e.onSubmitted(ctx, orderID, filled, avgPrice)
	case order.StatusFilled:
		e.onFilled(ctx, orderID, filled, avgPrice)
	case order.StatusCanceled:
		e.onCancelled(ctx, orderID, filled, avgPrice)
	default:
		e.log.Warn("unknown order status",
			zap.Int64("orderID", orderID),
			zap.String("status", string(status)))
	}

	e.drainCancels(ctx)
}

func (e *OrderExecutor) onPreSubmitted(ctx context.Context, orderID int64) {
	o, err := e.pos.Pool.Get(orderID)
	if err != nil {
		return
	}
	// A stop acknowledged while the internal position is already empty
	// protects nothing; pull it before it can trigger.
	if o.Type == order.TypeStopLoss && e.pos.Size() == 0 {
		e.cancelOrder(ctx, o)
	}
}

func (e *OrderExecutor) onSubmitted(ctx context.Context, orderID int64, filled, avgPrice float64) {
	o, err := e.pos.OnOrderSubmitted(orderID, filled, avgPrice)
	if err != nil {
		e.logEventError("submitted", orderID, err)
		return
	}

	// A bracket that partially filled already reduced the position; make
	// sure the opposite bracket shrinks with it.
	if filled > 0 {
		switch o.Type {
		case order.TypeTakeProfit:
			e.maintainStopLosses(ctx)
		case order.TypeStopLoss:
			e.maintainTakeProfits(ctx)
		}
	}
}

func (e *OrderExecutor) onFilled(ctx context.Context, orderID int64, filled, avgPrice float64) {
	o, err := e.pos.OnOrderFilled(orderID, filled, avgPrice)
	if err != nil {
		e.logEventError("filled", orderID, err)
		return
	}
	e.mon.OrderFilled(e.asg.Ticker, string(o.Type))
	e.mon.SetInternalSize(e.asg.Ticker, e.pos.Size())

	switch o.Type {
	case order.TypeEntry:
		e.MaintainBrackets(ctx)
		e.HandleMaxPositionSizeCheck(ctx)

	case order.TypeExit:
		// Position already archived the trade if it emptied.

	case order.TypeTakeProfit:
		e.maintainStopLosses(ctx)

	case order.TypeStopLoss:
		e.maintainTakeProfits(ctx)

	case order.TypeEmergencyExit:
		e.cancelBrackets(ctx)
		if e.pos.TrueShareCount() == 0 {
			e.setEmergency(false)
			e.log.Info("emergency exit filled, position flat")
		}

	case order.TypeDanglingShares:
		if e.pos.Size() == 0 {
			e.cancelBrackets(ctx)
		}
	}
}

func (e *OrderExecutor) onCancelled(ctx context.Context, orderID int64, filled, avgPrice float64) {
	o, err := e.pos.OnOrderCancelled(orderID, filled, avgPrice)
	if err != nil {
		e.logEventError("cancelled", orderID, err)
		return
	}

	switch o.Type {
	case order.TypeEntry:
		// A lapsed entry may have left partial shares behind; close out
		// anything already past its hold window.
		e.HandleExpiredPositions(ctx)

	case order.TypeExit:
		// The trade is still past its hold window; re-arm the exit now
		// instead of waiting for the next monitor pass.
		e.HandleExpiredPositions(ctx)

	case order.TypeTakeProfit:
		e.maintainStopLosses(ctx)

	case order.TypeStopLoss:
		e.maintainTakeProfits(ctx)

	case order.TypeEmergencyExit:
		if e.emergencyExit.Load() {
			e.EmergencyExitProtocol(ctx)
		}
	}
}

func (e *OrderExecutor) logEventError(event string, orderID int64, err error) {
	if errors.Is(err, order.ErrOrderDoesNotExist) {
		e.log.Debug("event for unknown order, dropped",
			zap.String("event", event),
			zap.Int64("orderID", orderID))
		return
	}
	e.log.Error("event handling failed",
		zap.String("event", event),
		zap.Int64("orderID", orderID),
		zap.Error(err))
}
