package executor

import (
	"context"

	"go.uber.org/zap"

	"trade-executor-go/order"
	"trade-executor-go/position"
)

// MaintainBrackets brings the take profit and stop loss orders of every
// trade in line with the trade's current size and anchor.
func (e *OrderExecutor) MaintainBrackets(ctx context.Context) {
	e.maintainTakeProfits(ctx)
	e.maintainStopLosses(ctx)
}

func (e *OrderExecutor) maintainTakeProfits(ctx context.Context) {
	for _, t := range e.pos.AllTrades() {
		e.maintainTakeProfit(ctx, t)
	}
}

func (e *OrderExecutor) maintainStopLosses(ctx context.Context) {
	for _, t := range e.pos.AllTrades() {
		e.maintainStopLoss(ctx, t)
	}
}

// maintainTakeProfit reconciles one trade's take profit: cancel when the
// bracket is no longer wanted, modify when size or price drifted, place
// when missing.
func (e *OrderExecutor) maintainTakeProfit(ctx context.Context, t *position.Trade) {
	price, hasPrice := t.TakeProfitPrice()
	size, hasSize := t.TakeProfitSize()
	wanted := hasPrice && hasSize && size > 0 && !e.emergencyExit.Load()

	if t.TakeProfitOrderID != 0 {
		o, err := e.pos.Pool.Get(t.TakeProfitOrderID)
		if err != nil {
			// Bracket id outlived its pool entry; forget it and fall
			// through to placement.
			t.ClearTakeProfit()
		} else {
			if !wanted {
				e.cancelOrder(ctx, o)
				return
			}
			if o.RequiresUpdate(size, price) {
				if err := e.modifyOrder(ctx, o, size, price); isCooldownErr(err) {
					e.cancelOrder(ctx, o)
				}
			}
			return
		}
	}

	if !wanted {
		return
	}
	if e.unclaimedBracketInFlight(order.TypeTakeProfit) {
		return
	}

	o := order.New(e.broker.NextOrderID(), order.TypeTakeProfit, t.Side.ExitAction(), size, price)
	if err := e.placeOrder(ctx, o, t); err != nil {
		e.log.Debug("take profit rejected", zap.Int64("tradeID", t.ID), zap.Error(err))
	}
}

// maintainStopLoss mirrors maintainTakeProfit for the stop side. One
// difference: once the cooldown is running a resting stop has already
// triggered, so it is cancelled rather than re-priced.
func (e *OrderExecutor) maintainStopLoss(ctx context.Context, t *position.Trade) {
	price := t.StopLossPrice()
	size := t.StopLossSize()
	wanted := price > 0 && size > 0 && !e.emergencyExit.Load()

	if t.StopLossOrderID != 0 {
		o, err := e.pos.Pool.Get(t.StopLossOrderID)
		if err != nil {
			t.ClearStopLoss()
		} else {
			if !wanted {
				e.cancelOrder(ctx, o)
				return
			}
			if e.pos.InCooldown() {
				e.cancelOrder(ctx, o)
				return
			}
			if o.RequiresUpdate(size, price) {
				if err := e.modifyOrder(ctx, o, size, price); err != nil {
					e.log.Debug("stop loss modify rejected",
						zap.Int64("tradeID", t.ID), zap.Error(err))
				}
			}
			return
		}
	}

	if !wanted {
		return
	}
	if e.unclaimedBracketInFlight(order.TypeStopLoss) {
		return
	}

	o := order.New(e.broker.NextOrderID(), order.TypeStopLoss, t.Side.ExitAction(), size, price)
	if err := e.placeOrder(ctx, o, t); err != nil {
		e.log.Debug("stop loss rejected", zap.Int64("tradeID", t.ID), zap.Error(err))
	}
}

// unclaimedBracketInFlight guards against double placement: a pooled
// bracket no trade claims is still settling from a previous pass.
func (e *OrderExecutor) unclaimedBracketInFlight(typ order.Type) bool {
	for _, o := range e.pos.Pool.OrdersOfType(typ) {
		var claimed bool
		switch typ {
		case order.TypeTakeProfit:
			claimed = e.pos.TradeByTakeProfitOrderID(o.ID) != nil
		case order.TypeStopLoss:
			claimed = e.pos.TradeByStopLossOrderID(o.ID) != nil
		}
		if !claimed {
			return true
		}
	}
	return false
}
