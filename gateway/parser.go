package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"trade-executor-go/market"
	"trade-executor-go/order"
)

// StreamMessage is the combined-stream envelope: a stream name plus the
// stream-specific payload.
type StreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type OrderStatusEvent struct {
	Ticker   string  `json:"ticker"`
	OrderID  int64   `json:"orderId"`
	Status   string  `json:"status"`
	Filled   float64 `json:"filled"`
	AvgPrice float64 `json:"avgPrice"`
}

type PositionEvent struct {
	Ticker   string  `json:"ticker"`
	Shares   int     `json:"shareCount"`
	AvgPrice float64 `json:"avgPrice"`
}

type PnLEvent struct {
	Ticker     string  `json:"ticker"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
}

type QuoteEvent struct {
	Ticker string  `json:"ticker"`
	Side   string  `json:"side"` // bid, ask or last
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
}

type BarEvent struct {
	Ticker string  `json:"ticker"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Ts     int64   `json:"ts"`
}

var quoteTicks = map[string]market.Tick{
	"bid":  market.TickBid,
	"ask":  market.TickAsk,
	"last": market.TickLast,
}

// Dispatch parses one raw stream message and routes it: market data into
// the market service, account events into the handler. Unknown streams are
// ignored so protocol additions do not break older clients.
func Dispatch(raw []byte, events EventHandler, md *market.Service) error {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse stream envelope: %w", err)
	}

	switch msg.Stream {
	case "orders":
		var ev OrderStatusEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("parse order event: %w", err)
		}
		if events != nil {
			events.OnOrderStatus(ev.Ticker, ev.OrderID, order.Status(ev.Status), ev.Filled, ev.AvgPrice)
		}

	case "positions":
		var ev PositionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("parse position event: %w", err)
		}
		if events != nil {
			events.OnPositionUpdate(ev.Ticker, ev.Shares, ev.AvgPrice)
		}

	case "pnl":
		var ev PnLEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("parse pnl event: %w", err)
		}
		if events != nil {
			events.OnPnLUpdate(ev.Ticker, ev.Realized, ev.Unrealized)
		}

	case "quotes":
		var ev QuoteEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("parse quote event: %w", err)
		}
		tick, ok := quoteTicks[ev.Side]
		if !ok {
			return fmt.Errorf("unknown quote side %q", ev.Side)
		}
		if md != nil {
			if ev.Price > 0 {
				md.OnQuotePrice(ev.Ticker, tick, ev.Price)
			}
			if ev.Size > 0 {
				md.OnQuoteSize(ev.Ticker, tick, ev.Size)
			}
		}

	case "bars":
		var ev BarEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("parse bar event: %w", err)
		}
		if md != nil {
			md.OnBar(ev.Ticker, market.Bar{
				Open:  ev.Open,
				High:  ev.High,
				Low:   ev.Low,
				Close: ev.Close,
				Ts:    time.Unix(ev.Ts, 0),
			})
		}
	}

	return nil
}
