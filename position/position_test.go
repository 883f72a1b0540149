package position

import (
	"errors"
	"testing"
	"time"

	"trade-executor-go/order"
)

func newTestPosition() (*Position, *testClock) {
	clock := newTestClock()
	p := New(testAssignment(), nil)
	p.now = clock.Now
	return p, clock
}

func TestRoundTrip(t *testing.T) {
	p, clock := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	if p.Size() != 100 || p.Side() != SideLong {
		t.Fatalf("after entry: size=%v side=%v", p.Size(), p.Side())
	}

	// Age the trade past its hold threshold so exits are allowed.
	clock.Advance(301 * time.Second)
	tr := p.TradeToClose()
	if tr == nil {
		t.Fatalf("expected an expired trade")
	}

	exit1 := order.New(2, order.TypeExit, order.ActionSell, 50, 51.0)
	if err := p.SubmitOrder(exit1, tr); err != nil {
		t.Fatalf("submit exit: %v", err)
	}
	if _, err := p.OnOrderFilled(2, 50, 51.0); err != nil {
		t.Fatalf("fill exit: %v", err)
	}
	if p.Size() != 50 {
		t.Fatalf("after first exit: size=%v, want 50", p.Size())
	}

	exit2 := order.New(3, order.TypeExit, order.ActionSell, 50, 51.0)
	if err := p.SubmitOrder(exit2, tr); err != nil {
		t.Fatalf("submit second exit: %v", err)
	}
	if _, err := p.OnOrderFilled(3, 50, 51.0); err != nil {
		t.Fatalf("fill second exit: %v", err)
	}
	if p.Size() != 0 || !p.IsEmpty() {
		t.Fatalf("after final exit: size=%v trades=%d", p.Size(), len(p.Trades))
	}
	if got := p.RealizedPnLs(); len(got) != 1 || got[0] != 100.00 {
		t.Fatalf("realized pnls = %v, want [100.00]", got)
	}
}

func TestTerminalEventsApplyExactlyOnce(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); !errors.Is(err, order.ErrOrderDoesNotExist) {
		t.Fatalf("duplicate fill: got %v", err)
	}
	if p.Size() != 100 {
		t.Fatalf("duplicate fill mutated position: size=%v", p.Size())
	}
}

func TestEntrySizeMatchesFillsMinusExits(t *testing.T) {
	p, clock := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}

	clock.Advance(30 * time.Second)
	entry2 := order.New(2, order.TypeEntry, order.ActionBuy, 100, 52.0)
	if err := p.SubmitOrder(entry2, nil); err != nil {
		t.Fatalf("submit second entry: %v", err)
	}
	if _, err := p.OnOrderFilled(2, 100, 52.0); err != nil {
		t.Fatalf("fill second entry: %v", err)
	}

	if p.Size() != 200 {
		t.Fatalf("size = %v, want 200", p.Size())
	}
	if len(p.Trades) != 1 {
		t.Fatalf("entries within the window should pool into one trade, got %d", len(p.Trades))
	}
	if p.AvgPrice() != 51.00 {
		t.Fatalf("avg price = %v, want 51.00", p.AvgPrice())
	}
}

func TestSideEmptyIffFlat(t *testing.T) {
	p, clock := newTestPosition()
	if p.Side() != "" {
		t.Fatalf("fresh position has side %q", p.Side())
	}

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	if p.Side() != SideLong || p.SignedSize() != 100 {
		t.Fatalf("side=%v signed=%v", p.Side(), p.SignedSize())
	}

	clock.Advance(301 * time.Second)
	exit := order.New(2, order.TypeExit, order.ActionSell, 100, 51.0)
	if err := p.SubmitOrder(exit, p.TradeToClose()); err != nil {
		t.Fatalf("submit exit: %v", err)
	}
	if _, err := p.OnOrderFilled(2, 100, 51.0); err != nil {
		t.Fatalf("fill exit: %v", err)
	}
	if p.Side() != "" {
		t.Fatalf("flat position retains side %q", p.Side())
	}
}

func TestCooldownGatesSubmissions(t *testing.T) {
	p, clock := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}

	tr := p.AllTrades()[0]
	stop := order.New(2, order.TypeStopLoss, order.ActionSell, 100, 48.0)
	if err := p.SubmitOrder(stop, tr); err != nil {
		t.Fatalf("submit stop loss: %v", err)
	}

	// The SUBMITTED ack on a stop loss starts the cooldown even before
	// shares fill.
	if _, err := p.OnOrderSubmitted(2, 0, 0); err != nil {
		t.Fatalf("stop loss ack: %v", err)
	}
	if !p.InCooldown() {
		t.Fatalf("expected cooldown after stop loss ack")
	}

	blocked := order.New(3, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(blocked, nil); !errors.Is(err, order.ErrStopLossCooldownActive) {
		t.Fatalf("entry during cooldown: got %v", err)
	}

	// Risk-reducing orders stay allowed.
	emergency := order.New(4, order.TypeEmergencyExit, order.ActionSell, 100, 49.0)
	if err := p.SubmitOrder(emergency, nil); err != nil {
		t.Fatalf("emergency exit during cooldown: %v", err)
	}

	clock.Advance(61 * time.Second)
	allowed := order.New(5, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(allowed, nil); err != nil {
		t.Fatalf("entry after cooldown: %v", err)
	}
}

func TestSubmitExitClampsToTradeSize(t *testing.T) {
	p, clock := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}

	clock.Advance(301 * time.Second)
	exit := order.New(2, order.TypeExit, order.ActionSell, 250, 51.0)
	if err := p.SubmitOrder(exit, p.TradeToClose()); err != nil {
		t.Fatalf("submit exit: %v", err)
	}
	if exit.Size != 100 {
		t.Fatalf("exit size = %v, want clamp to 100", exit.Size)
	}
}

func TestSubmitRejectsWrongSide(t *testing.T) {
	p, clock := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}

	wrong := order.New(2, order.TypeEntry, order.ActionSell, 100, 50.0)
	if err := p.SubmitOrder(wrong, nil); !errors.Is(err, order.ErrInvalidExecution) {
		t.Fatalf("wrong side entry: got %v", err)
	}

	clock.Advance(301 * time.Second)
	wrongExit := order.New(3, order.TypeExit, order.ActionBuy, 100, 51.0)
	if err := p.SubmitOrder(wrongExit, p.TradeToClose()); !errors.Is(err, order.ErrInvalidExecution) {
		t.Fatalf("wrong side exit: got %v", err)
	}
}

func TestPartialFillOnCancelledEntryIsBooked(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderCancelled(1, 40, 50.0); err != nil {
		t.Fatalf("cancel entry: %v", err)
	}
	if p.Size() != 40 {
		t.Fatalf("size = %v, want 40", p.Size())
	}
}

func TestTakeProfitFillClosesHalfAndClearsBracket(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	tr := p.AllTrades()[0]

	tp := order.New(2, order.TypeTakeProfit, order.ActionSell, 50, 50.30)
	if err := p.SubmitOrder(tp, tr); err != nil {
		t.Fatalf("submit take profit: %v", err)
	}
	if _, err := p.OnOrderFilled(2, 50, 50.30); err != nil {
		t.Fatalf("fill take profit: %v", err)
	}
	if p.Size() != 50 {
		t.Fatalf("size = %v, want 50", p.Size())
	}
	if !tr.TakeProfitFilled {
		t.Fatalf("expected take profit marked filled")
	}
	if tr.TakeProfitOrderID != 0 {
		t.Fatalf("take profit order id not cleared: %d", tr.TakeProfitOrderID)
	}
	if _, ok := tr.TakeProfitPrice(); ok {
		t.Fatalf("filled take profit should not be re-priced")
	}
}

func TestStopLossFillEmptiesTradeAndQueuesBrackets(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	tr := p.AllTrades()[0]

	tp := order.New(2, order.TypeTakeProfit, order.ActionSell, 50, 50.30)
	if err := p.SubmitOrder(tp, tr); err != nil {
		t.Fatalf("submit take profit: %v", err)
	}
	sl := order.New(3, order.TypeStopLoss, order.ActionSell, 100, 48.0)
	if err := p.SubmitOrder(sl, tr); err != nil {
		t.Fatalf("submit stop loss: %v", err)
	}

	if _, err := p.OnOrderFilled(3, 100, 48.0); err != nil {
		t.Fatalf("fill stop loss: %v", err)
	}
	if !p.IsEmpty() {
		t.Fatalf("expected empty position after stop loss fill")
	}
	if !p.InCooldown() {
		t.Fatalf("expected cooldown after stop loss fill")
	}

	toCancel := p.TakeOrdersToCancel()
	if len(toCancel) != 1 || toCancel[0].ID != 2 {
		t.Fatalf("orders to cancel = %v, want the orphaned take profit", toCancel)
	}
	if len(p.TakeOrdersToCancel()) != 0 {
		t.Fatalf("cancel queue should drain")
	}
}

func TestBrokerUpdateDoesNotSyncInternalSize(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}

	var limitChecks int
	p.SetLimitCheckCallback(func() { limitChecks++ })

	p.OnBrokerPositionUpdate(160, 50.0)
	if p.TrueShareCount() != 160 {
		t.Fatalf("true share count = %d, want 160", p.TrueShareCount())
	}
	if p.Size() != 100 {
		t.Fatalf("internal size changed on broker update: %v", p.Size())
	}
	if limitChecks == 0 {
		t.Fatalf("expected limit check on mismatch")
	}
}

func TestBrokerFlatMarksBracketsForCancellation(t *testing.T) {
	p, _ := newTestPosition()

	entry := order.New(1, order.TypeEntry, order.ActionBuy, 100, 50.0)
	if err := p.SubmitOrder(entry, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if _, err := p.OnOrderFilled(1, 100, 50.0); err != nil {
		t.Fatalf("fill entry: %v", err)
	}
	tr := p.AllTrades()[0]

	tp := order.New(2, order.TypeTakeProfit, order.ActionSell, 50, 50.30)
	if err := p.SubmitOrder(tp, tr); err != nil {
		t.Fatalf("submit take profit: %v", err)
	}
	sl := order.New(3, order.TypeStopLoss, order.ActionSell, 100, 48.0)
	if err := p.SubmitOrder(sl, tr); err != nil {
		t.Fatalf("submit stop loss: %v", err)
	}

	p.OnBrokerPositionUpdate(100, 50.0)
	p.OnBrokerPositionUpdate(0, 0)

	toCancel := p.TakeOrdersToCancel()
	ids := map[int64]bool{}
	for _, o := range toCancel {
		ids[o.ID] = true
	}
	if !ids[2] || !ids[3] {
		t.Fatalf("expected both brackets queued for cancel, got %v", toCancel)
	}
}
