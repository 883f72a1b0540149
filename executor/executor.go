// Package executor drives the order lifecycle for one ticker: it turns
// signals into entries, keeps bracket orders in step with the trade chain,
// enforces the risk limits and runs the emergency liquidation protocol.
//
// Every method must run on the ticker's serialized work queue. The only
// fields safe to touch from other goroutines are the atomic flags.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/gateway"
	"trade-executor-go/market"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
)

// OrderExecutor owns the execution state machine for a single ticker.
type OrderExecutor struct {
	asg    config.Assignment
	pos    *position.Position
	book   *market.Book
	broker gateway.Broker
	mon    *metrics.Monitor
	log    *zap.Logger

	// emergencyExit stays set from the moment a risk limit trips until the
	// broker reports the position flat. Read by the engine's retry loop.
	emergencyExit atomic.Bool
	// protocolRunning makes the emergency protocol a no-op while a
	// previous invocation is still in flight.
	protocolRunning atomic.Bool

	// onEmergency, when set, hands liquidation off to a persistent retry
	// loop instead of placing a single order inline.
	onEmergency func()

	// limitSweep is raised by the position's limit check callback and
	// consumed on the next broker position update.
	limitSweep bool

	now func() time.Time
}

// New wires an executor for one assignment. mon may be nil; a private
// monitor is created so metric calls never need guarding.
func New(asg config.Assignment, pos *position.Position, book *market.Book, broker gateway.Broker, mon *metrics.Monitor, log *zap.Logger) *OrderExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	if mon == nil {
		mon = metrics.New(metrics.DefaultConfig())
	}
	e := &OrderExecutor{
		asg:    asg,
		pos:    pos,
		book:   book,
		broker: broker,
		mon:    mon,
		log:    log.With(zap.String("ticker", asg.Ticker)),
		now:    time.Now,
	}
	pos.SetLimitCheckCallback(func() { e.limitSweep = true })
	return e
}

// SetEmergencyHook registers the engine callback that starts the emergency
// retry loop. Must be called before the executor receives work.
func (e *OrderExecutor) SetEmergencyHook(fn func()) {
	e.onEmergency = fn
}

// EmergencyExitActive reports the emergency flag. Safe for concurrent use.
func (e *OrderExecutor) EmergencyExitActive() bool {
	return e.emergencyExit.Load()
}

// Position exposes the executor's position for monitoring reads.
func (e *OrderExecutor) Position() *position.Position {
	return e.pos
}

func (e *OrderExecutor) setEmergency(active bool) {
	e.emergencyExit.Store(active)
	e.mon.SetEmergencyActive(e.asg.Ticker, active)
}

// placeOrder runs the pre-flight guards, registers the order with the
// position and sends it to the broker. On broker failure the registration
// is rolled back so the pool never leaks a phantom order.
func (e *OrderExecutor) placeOrder(ctx context.Context, o *order.Order, parent *position.Trade) error {
	if e.emergencyExit.Load() && o.Type != order.TypeEmergencyExit {
		e.mon.OrderRejected(e.asg.Ticker, string(o.Type))
		return fmt.Errorf("emergency exit active, %s order %d rejected", o.Type, o.ID)
	}

	// Project the broker-reported position forward; an entry that would
	// push it over the cap never leaves the process.
	if o.Type == order.TypeEntry {
		projected := float64(abs(e.pos.TrueShareCount())) + o.Size
		if projected > e.asg.MaxPositionSize {
			e.mon.OrderRejected(e.asg.Ticker, string(o.Type))
			return fmt.Errorf("entry order %d would grow position to %v, cap %v",
				o.ID, projected, e.asg.MaxPositionSize)
		}
	}

	if err := e.pos.SubmitOrder(o, parent); err != nil {
		if isCooldownErr(err) {
			e.mon.CooldownReject(e.asg.Ticker)
		}
		e.mon.OrderRejected(e.asg.Ticker, string(o.Type))
		return err
	}

	spec := gateway.BuildSpec(e.asg.Ticker, o, e.now())
	if err := e.broker.PlaceOrder(ctx, spec); err != nil {
		e.pos.Pool.Remove(o.ID)
		e.detachFromParent(o, parent)
		e.log.Error("broker rejected order",
			zap.Int64("orderID", o.ID),
			zap.String("type", string(o.Type)),
			zap.Error(err))
		return err
	}

	e.mon.OrderPlaced(e.asg.Ticker, string(o.Type))
	e.log.Info("placed order",
		zap.Int64("orderID", o.ID),
		zap.String("type", string(o.Type)),
		zap.String("action", string(o.Action)),
		zap.Float64("size", o.Size),
		zap.Float64("price", o.LimitPrice))
	return nil
}

func (e *OrderExecutor) detachFromParent(o *order.Order, parent *position.Trade) {
	if parent == nil {
		return
	}
	switch {
	case parent.TakeProfitOrderID == o.ID:
		parent.ClearTakeProfit()
	case parent.StopLossOrderID == o.ID:
		parent.ClearStopLoss()
	case parent.ExitOrderID == o.ID:
		parent.ClearExit()
	}
}

// modifyOrder replaces the resting order's size and price in place. The
// cooldown applies the same exemptions as submission.
func (e *OrderExecutor) modifyOrder(ctx context.Context, o *order.Order, newSize, newPrice float64) error {
	if o.Filled > 0 {
		return fmt.Errorf("%w: order %d", order.ErrCannotModifyFilledOrder, o.ID)
	}
	if e.pos.InCooldown() {
		switch o.Type {
		case order.TypeEmergencyExit, order.TypeStopLoss, order.TypeDanglingShares:
		default:
			e.mon.CooldownReject(e.asg.Ticker)
			return fmt.Errorf("%w: modify of %s order %d", order.ErrStopLossCooldownActive, o.Type, o.ID)
		}
	}

	o.Size = newSize
	o.LimitPrice = newPrice

	spec := gateway.BuildSpec(e.asg.Ticker, o, e.now())
	if err := e.broker.ModifyOrder(ctx, spec); err != nil {
		e.log.Error("broker rejected modify",
			zap.Int64("orderID", o.ID),
			zap.Error(err))
		return err
	}
	e.mon.OrderModified(e.asg.Ticker, string(o.Type))
	return nil
}

// cancelOrder requests cancellation at the broker. The pool entry stays
// until the CANCELED event confirms; an order already gone is a no-op.
func (e *OrderExecutor) cancelOrder(ctx context.Context, o *order.Order) {
	if !e.pos.Pool.Has(o.ID) {
		return
	}
	if err := e.broker.CancelOrder(ctx, e.asg.Ticker, o.ID); err != nil {
		e.log.Error("broker rejected cancel",
			zap.Int64("orderID", o.ID),
			zap.Error(err))
		return
	}
	e.mon.OrderCanceled(e.asg.Ticker, string(o.Type))
	e.log.Info("requested cancel",
		zap.Int64("orderID", o.ID),
		zap.String("type", string(o.Type)))
}

// drainCancels flushes the position's deferred cancel queue.
func (e *OrderExecutor) drainCancels(ctx context.Context) {
	for _, o := range e.pos.TakeOrdersToCancel() {
		e.cancelOrder(ctx, o)
	}
}

func (e *OrderExecutor) cancelPendingEntries(ctx context.Context) {
	for _, o := range e.pos.Pool.OrdersOfType(order.TypeEntry) {
		e.cancelOrder(ctx, o)
	}
}

func (e *OrderExecutor) cancelBrackets(ctx context.Context) {
	for _, o := range e.pos.Pool.Orders() {
		if o.Type == order.TypeTakeProfit || o.Type == order.TypeStopLoss {
			e.cancelOrder(ctx, o)
		}
	}
}

func isCooldownErr(err error) bool {
	return errors.Is(err, order.ErrStopLossCooldownActive)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
