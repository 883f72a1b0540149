package order

import (
	"errors"
	"testing"
)

func TestPoolSubmitRejectsBadOrders(t *testing.T) {
	p := NewPendingOrderPool()

	if err := p.Submit(New(1, TypeEntry, ActionBuy, 0, 50)); !errors.Is(err, ErrInvalidExecution) {
		t.Fatalf("expected invalid execution for zero size, got %v", err)
	}

	if err := p.Submit(New(1, TypeEntry, ActionBuy, 100, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same id with a different type must be refused.
	if err := p.Submit(New(1, TypeExit, ActionSell, 100, 50)); !errors.Is(err, ErrInvalidExecution) {
		t.Fatalf("expected invalid execution for type mismatch, got %v", err)
	}

	// Same id with a different action must be refused.
	if err := p.Submit(New(1, TypeEntry, ActionSell, 100, 50)); !errors.Is(err, ErrInvalidExecution) {
		t.Fatalf("expected invalid execution for action mismatch, got %v", err)
	}

	// Once part of the order has filled, resubmission is refused.
	if _, err := p.HandleSubmitted(1, 40, 49.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resub := New(1, TypeEntry, ActionBuy, 120, 50)
	resub.Filled = 40
	if err := p.Submit(resub); !errors.Is(err, ErrCannotModifyFilledOrder) {
		t.Fatalf("expected cannot-modify error, got %v", err)
	}
}

func TestPoolTerminalEventsAreExactlyOnce(t *testing.T) {
	p := NewPendingOrderPool()
	if err := p.Submit(New(7, TypeEntry, ActionBuy, 100, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, err := p.HandleFilled(7, 100, 50.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusFilled || o.Filled != 100 {
		t.Fatalf("unexpected order state: %+v", o)
	}
	if p.Has(7) {
		t.Fatal("filled order should be removed from pool")
	}

	// Second delivery finds nothing: the idempotence guard.
	if _, err := p.HandleFilled(7, 100, 50.05); !errors.Is(err, ErrOrderDoesNotExist) {
		t.Fatalf("expected order-does-not-exist, got %v", err)
	}
}

func TestPoolCancelledStampsStatus(t *testing.T) {
	p := NewPendingOrderPool()
	if err := p.Submit(New(9, TypeStopLoss, ActionSell, 50, 48)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, err := p.HandleCancelled(9, 10, 48.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != StatusCanceled || o.Filled != 10 {
		t.Fatalf("unexpected order state: %+v", o)
	}
	if _, err := p.HandleCancelled(9, 10, 48.2); !errors.Is(err, ErrOrderDoesNotExist) {
		t.Fatalf("expected order-does-not-exist, got %v", err)
	}
}

func TestPoolSubmittedTracksPartialFillOnly(t *testing.T) {
	p := NewPendingOrderPool()
	if err := p.Submit(New(3, TypeEntry, ActionBuy, 100, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, err := p.HandleSubmitted(3, 25, 50.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Filled != 25 || o.AvgPrice != 50.1 {
		t.Fatalf("partial fill not recorded: %+v", o)
	}
	if !p.Has(3) {
		t.Fatal("submitted order must stay in the pool")
	}

	if _, err := p.HandleSubmitted(4, 0, 0); !errors.Is(err, ErrOrderDoesNotExist) {
		t.Fatalf("expected order-does-not-exist, got %v", err)
	}
	if _, err := p.HandleSubmitted(3, -1, 0); !errors.Is(err, ErrInvalidExecution) {
		t.Fatalf("expected invalid execution for negative fill, got %v", err)
	}
}

func TestPoolViews(t *testing.T) {
	p := NewPendingOrderPool()
	for _, o := range []*Order{
		New(1, TypeStopLoss, ActionSell, 100, 48),
		New(2, TypeTakeProfit, ActionSell, 50, 52),
		New(3, TypeEmergencyExit, ActionSell, 100, 49),
		New(4, TypeEntry, ActionBuy, 100, 50),
	} {
		if err := p.Submit(o); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := len(p.StopLossOrders()); got != 1 {
		t.Fatalf("expected 1 stop loss, got %d", got)
	}
	if got := len(p.TakeProfitOrders()); got != 1 {
		t.Fatalf("expected 1 take profit, got %d", got)
	}
	if ee := p.EmergencyExitOrder(); ee == nil || ee.ID != 3 {
		t.Fatalf("unexpected emergency exit order: %+v", ee)
	}
	if p.Count() != 4 {
		t.Fatalf("expected 4 live orders, got %d", p.Count())
	}
}

func TestRequiresUpdateRoundsToTwoDecimals(t *testing.T) {
	o := New(1, TypeTakeProfit, ActionSell, 50, 100.304)
	if o.RequiresUpdate(50, 100.301) {
		t.Fatal("sub-cent difference should not require an update")
	}
	if !o.RequiresUpdate(50, 100.32) {
		t.Fatal("cent-level difference should require an update")
	}
	if !o.RequiresUpdate(60, 100.304) {
		t.Fatal("size difference should require an update")
	}
}
