package position

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/order"
)

// Position is the single source of truth for what one ticker holds. It owns
// the pending order pool and the live trade chain, and applies every broker
// lifecycle event exactly once.
//
// Not safe for concurrent use; all access runs on the ticker's serialized
// work queue. The broker share count is the one exception: shutdown and
// monitoring code polls it from other goroutines, so it is stored
// atomically.
type Position struct {
	Assignment config.Assignment

	Pool   *order.PendingOrderPool
	Trades map[int64]*Trade

	// trueShares mirrors the broker's view of the position. It is never
	// folded back into the internal trade sizes; reconciling the two
	// automatically inflates the internal position.
	trueShares atomic.Int64

	ordersToCancel []*order.Order
	cancelIndex    map[int64]struct{}

	cooldownTriggered time.Time
	cachedSide        Side

	realizedPnLs []float64

	limitCheck func()

	now func() time.Time
	log *zap.Logger
}

// New creates an empty position for the assignment.
func New(a config.Assignment, log *zap.Logger) *Position {
	if log == nil {
		log = zap.NewNop()
	}
	return &Position{
		Assignment:  a,
		Pool:        order.NewPendingOrderPool(),
		Trades:      make(map[int64]*Trade),
		cancelIndex: make(map[int64]struct{}),
		now:         time.Now,
		log:         log,
	}
}

// SetLimitCheckCallback registers the hook invoked when a broker position
// update requires a position limit sweep.
func (p *Position) SetLimitCheckCallback(fn func()) {
	p.limitCheck = fn
}

// Side reports the direction of the position. Empty until the first entry
// fill; retained after trades close so in-flight exits keep their direction.
func (p *Position) Side() Side {
	if len(p.Trades) == 0 {
		return p.cachedSide
	}
	for _, t := range p.Trades {
		p.cachedSide = t.Side
		return t.Side
	}
	return p.cachedSide
}

// Size is the total internally tracked share count across all trades.
func (p *Position) Size() float64 {
	var size float64
	for _, t := range p.Trades {
		size += t.Size
	}
	return size
}

// SignedSize is the size adjusted for direction: negative when short.
func (p *Position) SignedSize() float64 {
	if p.Side() == SideShort {
		return -p.Size()
	}
	return p.Size()
}

// AvgPrice is the size-weighted average entry price across all trades.
func (p *Position) AvgPrice() float64 {
	var size, value float64
	for _, t := range p.Trades {
		size += t.Size
		value += t.Size * t.AvgPrice
	}
	if size <= 0 {
		return 0
	}
	return value / size
}

func (p *Position) IsEmpty() bool {
	return len(p.Trades) == 0
}

// AllTrades returns the trades ordered by creation time, oldest first.
func (p *Position) AllTrades() []*Trade {
	trades := make([]*Trade, 0, len(p.Trades))
	for _, t := range p.Trades {
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
	return trades
}

// OpenTrade returns the trade still inside its pooling window, if any.
func (p *Position) OpenTrade() *Trade {
	for _, t := range p.AllTrades() {
		if !t.IsLocked() {
			return t
		}
	}
	return nil
}

// TradeToClose returns the oldest expired trade, if any.
func (p *Position) TradeToClose() *Trade {
	for _, t := range p.AllTrades() {
		if t.IsExpired() {
			return t
		}
	}
	return nil
}

// TakeProfitSize is the share count a fresh take profit order should carry:
// half the shares not yet covered by a take profit, rounded down.
func (p *Position) TakeProfitSize() float64 {
	var uncovered float64
	for _, t := range p.AllTrades() {
		if t.TakeProfitOrderID == 0 {
			uncovered += t.Size
		}
	}
	return math.Floor(uncovered / 2)
}

// StopLossSize covers the whole position.
func (p *Position) StopLossSize() float64 {
	return p.Size()
}

// DanglingSharesOrder returns the live dangling shares order, if any.
func (p *Position) DanglingSharesOrder() *order.Order {
	orders := p.Pool.OrdersOfType(order.TypeDanglingShares)
	if len(orders) == 0 {
		return nil
	}
	return orders[0]
}

// InCooldown reports whether the stop loss cooldown is still running. The
// cooldown lasts one trade threshold and clears itself on expiry.
func (p *Position) InCooldown() bool {
	if p.cooldownTriggered.IsZero() {
		return false
	}
	if p.now().Sub(p.cooldownTriggered) < p.Assignment.TradeThreshold() {
		return true
	}
	p.cooldownTriggered = time.Time{}
	return false
}

// TriggerCooldown starts (or restarts) the stop loss cooldown.
func (p *Position) TriggerCooldown() {
	p.cooldownTriggered = p.now()
}

// RealizedPnLs returns the realized result of every closed trade, in close
// order.
func (p *Position) RealizedPnLs() []float64 {
	return p.realizedPnLs
}

// MarkForCancel queues an order for cancellation, once.
func (p *Position) MarkForCancel(o *order.Order) {
	if _, ok := p.cancelIndex[o.ID]; ok {
		return
	}
	p.cancelIndex[o.ID] = struct{}{}
	p.ordersToCancel = append(p.ordersToCancel, o)
}

// TakeOrdersToCancel drains the cancel queue.
func (p *Position) TakeOrdersToCancel() []*order.Order {
	out := p.ordersToCancel
	p.ordersToCancel = nil
	p.cancelIndex = make(map[int64]struct{})
	return out
}

// TradeByTakeProfitOrderID finds the trade whose take profit is orderID.
func (p *Position) TradeByTakeProfitOrderID(orderID int64) *Trade {
	for _, t := range p.AllTrades() {
		if t.TakeProfitOrderID == orderID {
			return t
		}
	}
	return nil
}

// TradeByStopLossOrderID finds the trade whose stop loss is orderID.
func (p *Position) TradeByStopLossOrderID(orderID int64) *Trade {
	for _, t := range p.AllTrades() {
		if t.StopLossOrderID == orderID {
			return t
		}
	}
	return nil
}

// AddToPosition books an entry fill, pooling it into the open trade or
// opening a new one.
func (p *Position) AddToPosition(orderID int64, action order.Action, size, avgPrice float64) (*Trade, error) {
	side := SideForAction(action)

	if p.Size() > 0 && p.Side() != side {
		return nil, fmt.Errorf("%w: %s entry into %s position", order.ErrInvalidExecution, side, p.Side())
	}

	if t := p.OpenTrade(); t != nil {
		p.log.Debug("pooling entry into trade",
			zap.String("ticker", p.Assignment.Ticker),
			zap.Int64("orderID", orderID),
			zap.Int64("tradeID", t.ID))
		if err := t.AddEntry(orderID, side, size, avgPrice); err != nil {
			return nil, err
		}
		return t, nil
	}

	t := newTradeFromEntry(orderID, side, size, avgPrice, p.Assignment, p.now)
	p.Trades[t.ID] = t
	p.log.Debug("opened trade",
		zap.String("ticker", p.Assignment.Ticker),
		zap.Int64("tradeID", t.ID),
		zap.Float64("size", size),
		zap.Float64("avgPrice", avgPrice))
	return t, nil
}

func (p *Position) closeTrade(t *Trade) {
	pnl := t.RealizedPnL()
	p.realizedPnLs = append(p.realizedPnLs, pnl)
	delete(p.Trades, t.ID)
	p.log.Info("closed trade",
		zap.String("ticker", p.Assignment.Ticker),
		zap.Int64("tradeID", t.ID),
		zap.Float64("realizedPnL", pnl))

	if len(p.Trades) == 0 {
		p.cachedSide = ""
	}
}

// RemoveFromPosition walks the trades oldest first and books an exit fill
// against them. kind narrows which trades a bracket fill may touch: a take
// profit or stop loss only reduces the trade it was placed for. Emptied
// trades close, and their remaining bracket orders are queued for
// cancellation.
func (p *Position) RemoveFromPosition(orderID int64, numShares, price float64, kind order.Type) {
	for _, t := range p.AllTrades() {
		switch kind {
		case order.TypeTakeProfit:
			if t.TakeProfitOrderID != 0 && t.TakeProfitOrderID != orderID {
				continue
			}
		case order.TypeStopLoss:
			if t.StopLossOrderID != 0 && t.StopLossOrderID != orderID {
				continue
			}
		}

		numShares = t.RemoveExit(orderID, numShares, price)

		if kind == order.TypeTakeProfit && numShares == 0 {
			t.TakeProfitFilled = true
		}

		if t.Size == 0 {
			for _, id := range t.OpenOrderIDs() {
				if o, err := p.Pool.Get(id); err == nil {
					p.MarkForCancel(o)
				}
			}
			p.closeTrade(t)
		}

		if numShares == 0 {
			break
		}
	}

	if numShares > 0 {
		// Shares the internal trades cannot account for. The broker
		// position update path picks these up as dangling shares.
		p.log.Warn("exit fill exceeds tracked position",
			zap.String("ticker", p.Assignment.Ticker),
			zap.Int64("orderID", orderID),
			zap.Float64("leftover", numShares))
	}
}

// SubmitOrder runs the submission guards and registers the order in the
// pool. Bracket orders require their parent trade.
func (p *Position) SubmitOrder(o *order.Order, parent *Trade) error {
	if o.Filled > 0 {
		return fmt.Errorf("%w: order %d", order.ErrCannotModifyFilledOrder, o.ID)
	}

	// Once a stop loss triggers, only orders that reduce risk may go out
	// until the cooldown lapses.
	if p.InCooldown() {
		switch o.Type {
		case order.TypeEmergencyExit, order.TypeStopLoss, order.TypeDanglingShares:
		default:
			return fmt.Errorf("%w: %s order %d", order.ErrStopLossCooldownActive, o.Type, o.ID)
		}
	}

	switch o.Type {
	case order.TypeEntry:
		if p.Side() == SideLong && o.Action != order.ActionBuy {
			return fmt.Errorf("%w: SELL entry for LONG position", order.ErrInvalidExecution)
		}
		if p.Side() == SideShort && o.Action != order.ActionSell {
			return fmt.Errorf("%w: BUY entry for SHORT position", order.ErrInvalidExecution)
		}
		return p.Pool.Submit(o)

	case order.TypeExit:
		if parent == nil {
			return fmt.Errorf("%w: exit order %d has no parent trade", order.ErrInvalidExecution, o.ID)
		}
		if o.Size > parent.Size {
			o.Size = parent.Size
		}
		if parent.Side.ExitAction() != o.Action {
			return fmt.Errorf("%w: %s exit for %s trade %d", order.ErrInvalidExecution, o.Action, parent.Side, parent.ID)
		}
		if parent.ExitOrderID != 0 && parent.ExitOrderID != o.ID {
			return fmt.Errorf("%w: trade %d already has exit order %d", order.ErrInvalidExecution, parent.ID, parent.ExitOrderID)
		}
		if err := p.Pool.Submit(o); err != nil {
			return err
		}
		return parent.AttachExit(o.ID)

	case order.TypeTakeProfit:
		if parent == nil {
			return fmt.Errorf("%w: take profit order %d has no parent trade", order.ErrInvalidExecution, o.ID)
		}
		if err := p.Pool.Submit(o); err != nil {
			return err
		}
		parent.AttachTakeProfit(o.ID)
		return nil

	case order.TypeStopLoss:
		if parent == nil {
			return fmt.Errorf("%w: stop loss order %d has no parent trade", order.ErrInvalidExecution, o.ID)
		}
		if err := p.Pool.Submit(o); err != nil {
			return err
		}
		parent.AttachStopLoss(o.ID)
		return nil

	case order.TypeEmergencyExit, order.TypeDanglingShares:
		return p.Pool.Submit(o)
	}

	return fmt.Errorf("%w: unknown order type %s", order.ErrInvalidExecution, o.Type)
}

// OnOrderSubmitted applies a SUBMITTED acknowledgement. Partial fills only
// update the pool record; position bookkeeping waits for the terminal event
// so shares are never double counted.
func (p *Position) OnOrderSubmitted(orderID int64, filled, avgPrice float64) (*order.Order, error) {
	o, err := p.Pool.HandleSubmitted(orderID, filled, avgPrice)
	if err != nil {
		return nil, err
	}

	switch o.Type {
	case order.TypeExit:
		t := p.TradeToClose()
		if t == nil {
			return nil, fmt.Errorf("%w: exit ack with no expired trade", order.ErrInvalidExecution)
		}
		if err := t.AttachExit(o.ID); err != nil {
			return nil, err
		}
	case order.TypeStopLoss:
		// The broker acks a stop the moment the trigger price trades,
		// before any shares fill. Start the cooldown here.
		p.TriggerCooldown()
	}
	return o, nil
}

// OnOrderFilled applies a terminal FILLED event: pops the order from the
// pool and books the fill into the trade chain.
func (p *Position) OnOrderFilled(orderID int64, filled, avgPrice float64) (*order.Order, error) {
	o, err := p.Pool.HandleFilled(orderID, filled, avgPrice)
	if err != nil {
		return nil, err
	}

	switch o.Type {
	case order.TypeEntry:
		if _, err := p.AddToPosition(orderID, o.Action, filled, avgPrice); err != nil {
			return nil, err
		}

	case order.TypeExit:
		p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		for _, t := range p.AllTrades() {
			if t.ExitOrderID == orderID {
				t.ClearExit()
			}
		}

	case order.TypeTakeProfit:
		p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		if t := p.TradeByTakeProfitOrderID(orderID); t != nil {
			t.ClearTakeProfit()
		}

	case order.TypeStopLoss:
		p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		p.TriggerCooldown()
		if t := p.TradeByStopLossOrderID(orderID); t != nil {
			t.ClearStopLoss()
		}

	case order.TypeEmergencyExit:
		p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)

	case order.TypeDanglingShares:
		// Bookkeeping only; dangling shares never map to a trade.
	}

	return o, nil
}

// OnOrderCancelled applies a terminal CANCELLED event. Partial fills that
// accrued before the cancel are still booked.
func (p *Position) OnOrderCancelled(orderID int64, filled, avgPrice float64) (*order.Order, error) {
	o, err := p.Pool.HandleCancelled(orderID, filled, avgPrice)
	if err != nil {
		return nil, err
	}

	switch o.Type {
	case order.TypeEntry:
		if filled > 0 {
			if _, err := p.AddToPosition(orderID, o.Action, filled, avgPrice); err != nil {
				return nil, err
			}
		}

	case order.TypeExit:
		if filled > 0 {
			p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		}
		if t := p.TradeToClose(); t != nil && t.ExitOrderID == orderID {
			t.ClearExit()
		}

	case order.TypeTakeProfit:
		if filled > 0 {
			p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		}
		if t := p.TradeByTakeProfitOrderID(orderID); t != nil {
			t.ClearTakeProfit()
		}

	case order.TypeStopLoss:
		if filled > 0 {
			p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		}
		if t := p.TradeByStopLossOrderID(orderID); t != nil {
			t.ClearStopLoss()
		}

	case order.TypeEmergencyExit:
		if filled > 0 {
			p.RemoveFromPosition(orderID, filled, avgPrice, o.Type)
		}

	case order.TypeDanglingShares:
	}

	return o, nil
}

// TrueShareCount is the broker's authoritative share count. Safe to read
// from any goroutine.
func (p *Position) TrueShareCount() int {
	return int(p.trueShares.Load())
}

// SetTrueShareCount overwrites the broker-reported share count.
func (p *Position) SetTrueShareCount(n int) {
	p.trueShares.Store(int64(n))
}

// OnBrokerPositionUpdate records the broker's authoritative share count.
// The internal trade sizes are deliberately left alone; only the limit
// check callback and bracket cleanup react to the broker's view.
func (p *Position) OnBrokerPositionUpdate(shareCount int, avgPrice float64) {
	prev := p.TrueShareCount()
	p.SetTrueShareCount(shareCount)

	internal := p.Size()
	p.log.Info("broker position update",
		zap.String("ticker", p.Assignment.Ticker),
		zap.Int("trueShareCount", shareCount),
		zap.Float64("avgPrice", avgPrice),
		zap.Float64("internalSize", internal))

	mismatch := math.Abs(float64(shareCount) - internal)
	if mismatch > 0 {
		p.log.Warn("position mismatch, not auto-synchronizing",
			zap.String("ticker", p.Assignment.Ticker),
			zap.Int("trueShareCount", shareCount),
			zap.Float64("internalSize", internal),
			zap.Float64("mismatch", mismatch))
		if p.limitCheck != nil {
			p.limitCheck()
		}
	}

	if math.Abs(float64(shareCount)) > p.Assignment.MaxPositionSize && p.limitCheck != nil {
		p.limitCheck()
	}

	// Broker says flat: whatever brackets are still resting are stale.
	if shareCount == 0 && prev != 0 {
		marked := 0
		for _, o := range p.Pool.Orders() {
			if o.Type == order.TypeTakeProfit || o.Type == order.TypeStopLoss {
				p.MarkForCancel(o)
				marked++
			}
		}
		p.log.Warn("broker reports flat, marking brackets for cancellation",
			zap.String("ticker", p.Assignment.Ticker),
			zap.Int("marked", marked))
	}
}
