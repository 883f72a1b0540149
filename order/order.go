package order

import (
	"math"
	"time"
)

// Type classifies what role an order plays in a bracket.
type Type string

const (
	TypeEntry          Type = "ENTRY"
	TypeTakeProfit     Type = "TAKE_PROFIT"
	TypeStopLoss       Type = "STOP_LOSS"
	TypeExit           Type = "EXIT"
	TypeEmergencyExit  Type = "EMERGENCY_EXIT"
	TypeDanglingShares Type = "DANGLING_SHARES"
)

// Action is the broker-facing direction of an order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Status represents order lifecycle.
type Status string

const (
	StatusPreSubmitted Status = "PRE_SUBMITTED"
	StatusSubmitted    Status = "SUBMITTED"
	StatusFilled       Status = "FILLED"
	StatusCanceled     Status = "CANCELED"
)

// Order is a single broker-facing order record. It is owned by the
// PendingOrderPool until a terminal status removes it.
type Order struct {
	ID         int64
	Type       Type
	Action     Action
	Size       float64
	LimitPrice float64

	Filled   float64
	AvgPrice float64
	Status   Status

	CreatedAt time.Time
}

// New builds a pending order with SUBMITTED status.
func New(id int64, typ Type, action Action, size, limitPrice float64) *Order {
	return &Order{
		ID:         id,
		Type:       typ,
		Action:     action,
		Size:       size,
		LimitPrice: limitPrice,
		Status:     StatusSubmitted,
		CreatedAt:  time.Now(),
	}
}

// RequiresUpdate reports whether the desired size/price differ from the
// current ones at 2-decimal precision.
func (o *Order) RequiresUpdate(newSize, newPrice float64) bool {
	if round2(newSize) != round2(o.Size) {
		return true
	}
	if round2(newPrice) != round2(o.LimitPrice) {
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
