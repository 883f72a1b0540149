package gateway

import (
	"context"
	"time"

	"trade-executor-go/order"
)

// TimeInForce is the broker-facing lifetime of an order.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFGoodTillDate   TimeInForce = "GTD"
)

// Order lifetimes and the stop limit gap are fixed by the execution model:
// entries rest for a minute, exits are refreshed every queue pass so they
// only need to survive one, and stops convert to limits a dime through the
// trigger.
const (
	EntryTTL     = 60 * time.Second
	ExitTTL      = 10 * time.Second
	StopLimitGap = 0.10
)

// OrderSpec is the broker-facing description of one order.
type OrderSpec struct {
	Ticker  string
	OrderID int64
	Type    order.Type
	Action  order.Action
	Size    float64

	LimitPrice float64
	// AuxPrice is the stop trigger; zero for non-stop orders.
	AuxPrice float64

	TIF      TimeInForce
	GoodTill time.Time
}

// BuildSpec maps an order onto its wire representation, applying the
// per-type time in force and the stop trigger/limit split.
func BuildSpec(ticker string, o *order.Order, now time.Time) OrderSpec {
	spec := OrderSpec{
		Ticker:     ticker,
		OrderID:    o.ID,
		Type:       o.Type,
		Action:     o.Action,
		Size:       o.Size,
		LimitPrice: o.LimitPrice,
		TIF:        TIFGoodTillCancel,
	}

	switch o.Type {
	case order.TypeEntry:
		spec.TIF = TIFGoodTillDate
		spec.GoodTill = now.Add(EntryTTL)

	case order.TypeExit, order.TypeDanglingShares:
		spec.TIF = TIFGoodTillDate
		spec.GoodTill = now.Add(ExitTTL)

	case order.TypeStopLoss:
		// The order's limit price is the trigger. The resting limit sits
		// one gap through the trigger so the stop still fills after a
		// gap through the stop price.
		spec.AuxPrice = o.LimitPrice
		if o.Action == order.ActionSell {
			spec.LimitPrice = o.LimitPrice - StopLimitGap
		} else {
			spec.LimitPrice = o.LimitPrice + StopLimitGap
		}
	}

	return spec
}

// Broker places, replaces and cancels orders at the brokerage. Order IDs
// are allocated by the caller via NextOrderID so the pending pool can index
// an order before the broker ever sees it.
type Broker interface {
	NextOrderID() int64
	PlaceOrder(ctx context.Context, spec OrderSpec) error
	ModifyOrder(ctx context.Context, spec OrderSpec) error
	CancelOrder(ctx context.Context, ticker string, orderID int64) error
}

// EventHandler receives order lifecycle and account events from the stream.
// Implementations must be safe to call from the stream reader goroutine.
type EventHandler interface {
	OnOrderStatus(ticker string, orderID int64, status order.Status, filled, avgPrice float64)
	OnPositionUpdate(ticker string, shareCount int, avgPrice float64)
	OnPnLUpdate(ticker string, realized, unrealized float64)
}
