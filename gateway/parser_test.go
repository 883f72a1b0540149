package gateway

import (
	"testing"

	"trade-executor-go/market"
	"trade-executor-go/order"
)

type recordingHandler struct {
	statuses  []order.Status
	orderIDs  []int64
	positions []int
	pnls      []float64
}

func (h *recordingHandler) OnOrderStatus(ticker string, orderID int64, status order.Status, filled, avgPrice float64) {
	h.statuses = append(h.statuses, status)
	h.orderIDs = append(h.orderIDs, orderID)
}

func (h *recordingHandler) OnPositionUpdate(ticker string, shareCount int, avgPrice float64) {
	h.positions = append(h.positions, shareCount)
}

func (h *recordingHandler) OnPnLUpdate(ticker string, realized, unrealized float64) {
	h.pnls = append(h.pnls, realized)
}

func TestDispatchRoutesOrderStatus(t *testing.T) {
	h := &recordingHandler{}
	md := market.NewService(0)

	raw := []byte(`{"stream":"orders","data":{"ticker":"AAPL","orderId":7,"status":"FILLED","filled":100,"avgPrice":50.05}}`)
	if err := Dispatch(raw, h, md); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(h.statuses) != 1 || h.statuses[0] != order.StatusFilled || h.orderIDs[0] != 7 {
		t.Fatalf("order status not routed: %+v", h)
	}
}

func TestDispatchRoutesQuotesIntoBook(t *testing.T) {
	h := &recordingHandler{}
	md := market.NewService(0)

	msgs := [][]byte{
		[]byte(`{"stream":"quotes","data":{"ticker":"AAPL","side":"bid","price":99.90,"size":300}}`),
		[]byte(`{"stream":"quotes","data":{"ticker":"AAPL","side":"ask","price":100.10,"size":200}}`),
	}
	for _, raw := range msgs {
		if err := Dispatch(raw, h, md); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	book := md.Book("AAPL")
	bid, ask := book.Bid(), book.Ask()
	if bid != 99.90 || ask != 100.10 {
		t.Fatalf("book = %v/%v, want 99.90/100.10", bid, ask)
	}
}

func TestDispatchRoutesPositionAndPnL(t *testing.T) {
	h := &recordingHandler{}
	md := market.NewService(0)

	if err := Dispatch([]byte(`{"stream":"positions","data":{"ticker":"AAPL","shareCount":100,"avgPrice":50.00}}`), h, md); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := Dispatch([]byte(`{"stream":"pnl","data":{"ticker":"AAPL","realized":-120.50,"unrealized":30.00}}`), h, md); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(h.positions) != 1 || h.positions[0] != 100 {
		t.Fatalf("position not routed: %+v", h.positions)
	}
	if len(h.pnls) != 1 || h.pnls[0] != -120.50 {
		t.Fatalf("pnl not routed: %+v", h.pnls)
	}
}

func TestDispatchIgnoresUnknownStream(t *testing.T) {
	h := &recordingHandler{}
	md := market.NewService(0)

	if err := Dispatch([]byte(`{"stream":"heartbeat","data":{}}`), h, md); err != nil {
		t.Fatalf("unknown stream should be ignored: %v", err)
	}
	if len(h.statuses)+len(h.positions)+len(h.pnls) != 0 {
		t.Fatalf("unexpected routing: %+v", h)
	}
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	h := &recordingHandler{}
	md := market.NewService(0)

	if err := Dispatch([]byte(`{"stream":`), h, md); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
