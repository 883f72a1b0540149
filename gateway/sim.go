package gateway

import (
	"context"
	"sync"

	"trade-executor-go/order"
)

// SimBroker is an in-memory Broker for tests and dry runs. It records every
// call and never talks to a network.
type SimBroker struct {
	mu     sync.Mutex
	nextID int64

	placed    []OrderSpec
	modified  []OrderSpec
	cancelled []int64

	// PlaceErr, when set, is returned by PlaceOrder.
	PlaceErr error
}

func NewSimBroker() *SimBroker {
	return &SimBroker{}
}

func (b *SimBroker) NextOrderID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

func (b *SimBroker) PlaceOrder(_ context.Context, spec OrderSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PlaceErr != nil {
		return b.PlaceErr
	}
	b.placed = append(b.placed, spec)
	return nil
}

func (b *SimBroker) ModifyOrder(_ context.Context, spec OrderSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modified = append(b.modified, spec)
	return nil
}

func (b *SimBroker) CancelOrder(_ context.Context, _ string, orderID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

// Placed returns a copy of every placed spec, in order.
func (b *SimBroker) Placed() []OrderSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OrderSpec(nil), b.placed...)
}

// PlacedOfType filters placed specs by order type.
func (b *SimBroker) PlacedOfType(typ order.Type) []OrderSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []OrderSpec
	for _, s := range b.placed {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// Modified returns a copy of every modify call, in order.
func (b *SimBroker) Modified() []OrderSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OrderSpec(nil), b.modified...)
}

// Cancelled returns the order IDs cancelled, in order.
func (b *SimBroker) Cancelled() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.cancelled...)
}
