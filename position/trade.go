package position

import (
	"fmt"
	"math"
	"time"

	"trade-executor-go/config"
	"trade-executor-go/order"
)

// Side is the direction of a held position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideForAction maps an entry action to the side it opens.
func SideForAction(a order.Action) Side {
	if a == order.ActionBuy {
		return SideLong
	}
	return SideShort
}

// EntryAction is the broker action that grows a position on this side.
func (s Side) EntryAction() order.Action {
	if s == SideLong {
		return order.ActionBuy
	}
	return order.ActionSell
}

// ExitAction is the broker action that shrinks a position on this side.
func (s Side) ExitAction() order.Action {
	if s == SideLong {
		return order.ActionSell
	}
	return order.ActionBuy
}

// Trade is a chain of entry fills pooled within the trade threshold, closed
// by a single exit. The trade ID is the order ID of the first entry.
//
// Fill bookkeeping is keyed by order ID so duplicate broker messages settle
// to the same state.
type Trade struct {
	ID       int64
	Side     Side
	Size     float64
	AvgPrice float64

	// Anchor is the reference price for bracket pricing, fixed at the
	// first entry's fill price.
	Anchor float64

	CreatedAt time.Time
	UpdatedAt time.Time

	// Bracket orders currently attached to this trade. Zero means none.
	TakeProfitOrderID int64
	StopLossOrderID   int64
	ExitOrderID       int64

	TakeProfitFilled bool

	firstExecution time.Time
	lastExecution  time.Time

	entryFills  map[int64]float64
	entryPrices map[int64]float64
	exitFills   map[int64]float64
	exitPrices  map[int64]float64

	tradeThreshold   time.Duration
	holdThreshold    time.Duration
	takeProfitTarget float64
	stopLossTarget   float64

	now func() time.Time
}

// NewTradeFromEntry opens a trade from the first entry fill.
func NewTradeFromEntry(orderID int64, side Side, size, avgPrice float64, a config.Assignment) *Trade {
	return newTradeFromEntry(orderID, side, size, avgPrice, a, time.Now)
}

func newTradeFromEntry(orderID int64, side Side, size, avgPrice float64, a config.Assignment, clock func() time.Time) *Trade {
	now := clock()
	t := &Trade{
		ID:        orderID,
		Side:      side,
		Size:      size,
		AvgPrice:  avgPrice,
		Anchor:    avgPrice,
		CreatedAt: now,
		UpdatedAt: now,

		firstExecution: now,
		lastExecution:  now,

		entryFills:  map[int64]float64{orderID: size},
		entryPrices: map[int64]float64{orderID: avgPrice},
		exitFills:   make(map[int64]float64),
		exitPrices:  make(map[int64]float64),

		tradeThreshold:   a.TradeThreshold(),
		holdThreshold:    a.HoldThreshold(),
		takeProfitTarget: a.TakeProfitTarget,
		stopLossTarget:   a.StopLossTarget,

		now: clock,
	}
	return t
}

// IsLocked reports whether the pooling window has closed, which means no
// further entries may join this trade.
func (t *Trade) IsLocked() bool {
	return t.now().Sub(t.UpdatedAt) > t.tradeThreshold
}

// IsExpired reports whether the trade has been held past its hold threshold,
// measured from the midpoint of the first and last entry fills.
func (t *Trade) IsExpired() bool {
	midpoint := t.firstExecution.Add(t.lastExecution.Sub(t.firstExecution) / 2)
	return t.now().Sub(midpoint) > t.holdThreshold
}

// RealizedPnL computes the realized profit for this trade from its exit
// fills, rounded to cents. Open shares contribute nothing.
func (t *Trade) RealizedPnL() float64 {
	if len(t.exitFills) == 0 {
		return 0
	}

	var exitValue, exitSize float64
	for id, size := range t.exitFills {
		exitValue += size * t.exitPrices[id]
		exitSize += size
	}
	var entryValue, entrySize float64
	for id, size := range t.entryFills {
		entryValue += size * t.entryPrices[id]
		entrySize += size
	}

	var avgExit, avgEntry float64
	if exitSize > 0 {
		avgExit = exitValue / exitSize
	}
	if entrySize > 0 {
		avgEntry = entryValue / entrySize
	}

	pnl := (avgExit - avgEntry) * exitSize
	if t.Side == SideShort {
		pnl = -pnl
	}
	return round2(pnl)
}

// TakeProfitPrice returns the price the take profit order should rest at.
// A target <= 1.0 is a fraction of the anchor, above that it is a flat
// dollar offset. Returns false once the take profit has filled.
func (t *Trade) TakeProfitPrice() (float64, bool) {
	if t.TakeProfitFilled {
		return 0, false
	}
	if t.takeProfitTarget <= 1.0 {
		if t.Side == SideLong {
			return t.Anchor * (1 + t.takeProfitTarget), true
		}
		return t.Anchor * (1 - t.takeProfitTarget), true
	}
	if t.Side == SideLong {
		return t.Anchor + t.takeProfitTarget, true
	}
	return t.Anchor - t.takeProfitTarget, true
}

// TakeProfitSize returns the share count the take profit order should carry:
// half the trade, rounded down. Returns false once the take profit filled.
func (t *Trade) TakeProfitSize() (float64, bool) {
	if t.TakeProfitFilled {
		return 0, false
	}
	return math.Floor(t.Size / 2), true
}

// StopLossPrice returns the trigger price for the stop loss, using the same
// fraction-or-flat target convention as the take profit.
func (t *Trade) StopLossPrice() float64 {
	if t.stopLossTarget <= 1.0 {
		if t.Side == SideLong {
			return t.Anchor * (1 - t.stopLossTarget)
		}
		return t.Anchor * (1 + t.stopLossTarget)
	}
	if t.Side == SideLong {
		return t.Anchor - t.stopLossTarget
	}
	return t.Anchor + t.stopLossTarget
}

// StopLossSize covers the full trade.
func (t *Trade) StopLossSize() float64 {
	return t.Size
}

// OpenOrderIDs returns the bracket order IDs currently attached to the trade.
func (t *Trade) OpenOrderIDs() []int64 {
	var ids []int64
	for _, id := range []int64{t.ExitOrderID, t.TakeProfitOrderID, t.StopLossOrderID} {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddEntry pools another entry fill into this trade, recomputing size and
// the weighted average entry price.
func (t *Trade) AddEntry(orderID int64, side Side, size, avgPrice float64) error {
	if t.Side != side {
		return fmt.Errorf("%w: %s entry into %s trade %d", order.ErrInvalidExecution, side, t.Side, t.ID)
	}
	if t.IsLocked() {
		return fmt.Errorf("%w: trade %d", order.ErrTradeLocked, t.ID)
	}

	t.entryFills[orderID] = size
	t.entryPrices[orderID] = avgPrice

	var added, removed float64
	for _, s := range t.entryFills {
		added += s
	}
	for _, s := range t.exitFills {
		removed += s
	}
	t.Size = added - removed

	var value float64
	for id, s := range t.entryFills {
		value += s * t.entryPrices[id]
	}
	t.AvgPrice = round2(value / added)

	now := t.now()
	t.UpdatedAt = now
	t.lastExecution = now
	return nil
}

// RemoveExit removes shares from the trade for an exit fill and returns how
// many of numShares are left over for the next trade in the chain. Shares
// already booked under the same order ID are not double counted.
func (t *Trade) RemoveExit(orderID int64, numShares, exitPrice float64) float64 {
	booked := t.exitFills[orderID]

	newFills := math.Min(t.Size, numShares-booked)
	if newFills <= 0 {
		return 0
	}

	t.exitFills[orderID] = booked + newFills
	t.exitPrices[orderID] = exitPrice
	t.Size = math.Max(0, t.Size-newFills)

	return numShares - (newFills + booked)
}

// AttachExit records the exit order for this trade. Exits are only valid
// once the trade has expired.
func (t *Trade) AttachExit(orderID int64) error {
	if !t.IsExpired() {
		return fmt.Errorf("%w: exit before trade %d expired", order.ErrInvalidExecution, t.ID)
	}
	t.ExitOrderID = orderID
	return nil
}

func (t *Trade) ClearExit() { t.ExitOrderID = 0 }

func (t *Trade) AttachTakeProfit(orderID int64) { t.TakeProfitOrderID = orderID }

func (t *Trade) ClearTakeProfit() { t.TakeProfitOrderID = 0 }

func (t *Trade) AttachStopLoss(orderID int64) { t.StopLossOrderID = orderID }

func (t *Trade) ClearStopLoss() { t.StopLossOrderID = 0 }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
