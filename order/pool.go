package order

import (
	"fmt"
	"sort"
)

// PendingOrderPool is the id-keyed arena of live orders for one ticker.
// It is not safe for concurrent use; all access runs on the ticker's
// serialized work queue.
type PendingOrderPool struct {
	index map[int64]*Order
}

func NewPendingOrderPool() *PendingOrderPool {
	return &PendingOrderPool{index: make(map[int64]*Order)}
}

// Get returns the order for id, or ErrOrderDoesNotExist.
func (p *PendingOrderPool) Get(id int64) (*Order, error) {
	o, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOrderDoesNotExist, id)
	}
	return o, nil
}

// Has reports whether id is still live in the pool.
func (p *PendingOrderPool) Has(id int64) bool {
	_, ok := p.index[id]
	return ok
}

func (p *PendingOrderPool) Count() int {
	return len(p.index)
}

// Orders returns all live orders sorted by creation time, newest first.
func (p *PendingOrderPool) Orders() []*Order {
	res := make([]*Order, 0, len(p.index))
	for _, o := range p.index {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

// OrdersOfType filters the live orders by type, newest first.
func (p *PendingOrderPool) OrdersOfType(typ Type) []*Order {
	var res []*Order
	for _, o := range p.Orders() {
		if o.Type == typ {
			res = append(res, o)
		}
	}
	return res
}

// StopLossOrders returns the live stop loss orders, newest first.
func (p *PendingOrderPool) StopLossOrders() []*Order {
	return p.OrdersOfType(TypeStopLoss)
}

// TakeProfitOrders returns the live take profit orders, newest first.
func (p *PendingOrderPool) TakeProfitOrders() []*Order {
	return p.OrdersOfType(TypeTakeProfit)
}

// EmergencyExitOrder returns the live emergency exit order, if any.
func (p *PendingOrderPool) EmergencyExitOrder() *Order {
	for _, o := range p.index {
		if o.Type == TypeEmergencyExit {
			return o
		}
	}
	return nil
}

// Remove drops id from the pool without stamping a status.
func (p *PendingOrderPool) Remove(id int64) {
	delete(p.index, id)
}

// Submit is the guard called before any order reaches the broker. An order
// already in the pool may be overwritten only if type and action agree and
// nothing has filled yet.
func (p *PendingOrderPool) Submit(o *Order) error {
	if existing, ok := p.index[o.ID]; ok {
		if existing.Type != o.Type {
			return fmt.Errorf("%w: order %d exists as %s, resubmitted as %s",
				ErrInvalidExecution, o.ID, existing.Type, o.Type)
		}
		if existing.Action != o.Action {
			return fmt.Errorf("%w: order %d exists as %s, resubmitted as %s",
				ErrInvalidExecution, o.ID, existing.Action, o.Action)
		}
	}

	if o.Size <= 0 {
		return fmt.Errorf("%w: order %d submitted with %v shares", ErrInvalidExecution, o.ID, o.Size)
	}
	if o.Filled > 0 {
		return fmt.Errorf("%w: order %d has filled %v", ErrCannotModifyFilledOrder, o.ID, o.Filled)
	}

	p.index[o.ID] = o
	return nil
}

// HandleSubmitted records partial-fill progress in place. It never touches
// position or trade state.
func (p *PendingOrderPool) HandleSubmitted(id int64, filled, avgPrice float64) (*Order, error) {
	o, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: submitted event for id %d", ErrOrderDoesNotExist, id)
	}
	if filled < 0 {
		return nil, fmt.Errorf("%w: order %d submitted with negative fill %v", ErrInvalidExecution, id, filled)
	}
	if filled > 0 {
		o.Filled = filled
		o.AvgPrice = avgPrice
	}
	return o, nil
}

// HandleFilled pops the order, stamps it FILLED and returns it so the caller
// can propagate the fill. A duplicate delivery fails with
// ErrOrderDoesNotExist, which is the idempotence guard.
func (p *PendingOrderPool) HandleFilled(id int64, filled, avgPrice float64) (*Order, error) {
	o, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: filled event for id %d", ErrOrderDoesNotExist, id)
	}
	delete(p.index, id)
	o.Filled = filled
	o.AvgPrice = avgPrice
	o.Status = StatusFilled
	return o, nil
}

// HandleCancelled pops the order and stamps it CANCELED. Duplicate delivery
// fails with ErrOrderDoesNotExist.
func (p *PendingOrderPool) HandleCancelled(id int64, filled, avgPrice float64) (*Order, error) {
	o, ok := p.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: cancel event for id %d", ErrOrderDoesNotExist, id)
	}
	delete(p.index, id)
	o.Filled = filled
	o.AvgPrice = avgPrice
	o.Status = StatusCanceled
	return o, nil
}
