package risk

import (
	"trade-executor-go/order"
	"trade-executor-go/position"
)

// StaleBrackets returns the bracket orders that no longer protect anything:
// take profits and stop losses still resting while the broker reports the
// ticker flat. The caller cancels them on the ticker's own queue.
func StaleBrackets(p *position.Position) []*order.Order {
	if p.TrueShareCount() != 0 {
		return nil
	}
	var stale []*order.Order
	for _, o := range p.Pool.Orders() {
		if o.Type == order.TypeTakeProfit || o.Type == order.TypeStopLoss {
			stale = append(stale, o)
		}
	}
	return stale
}
