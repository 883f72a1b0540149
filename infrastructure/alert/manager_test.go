package alert

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotifierDeliversToAllChannels(t *testing.T) {
	a := NewMockChannel("a")
	b := NewMockChannel("b")
	n := NewNotifier([]Channel{a, b}, 5*time.Minute)

	if err := n.Critical("position stuck", map[string]interface{}{"ticker": "AAPL"}); err != nil {
		t.Fatalf("Critical: %v", err)
	}
	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Fatalf("sent a=%d b=%d, want 1 each", len(a.Sent()), len(b.Sent()))
	}
	got := a.Sent()[0]
	if got.Level != LevelCritical {
		t.Errorf("level = %s, want CRITICAL", got.Level)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be stamped")
	}
}

func TestNotifierThrottlesRepeats(t *testing.T) {
	mock := NewMockChannel("mock")
	n := NewNotifier([]Channel{mock}, time.Hour)

	n.Warning("cooldown active", nil)
	n.Warning("cooldown active", nil)
	n.Warning("different message", nil)

	if len(mock.Sent()) != 2 {
		t.Fatalf("sent = %d, want 2 (repeat suppressed)", len(mock.Sent()))
	}

	n.ResetThrottle()
	n.Warning("cooldown active", nil)
	if len(mock.Sent()) != 3 {
		t.Fatalf("sent = %d after reset, want 3", len(mock.Sent()))
	}
}

func TestNotifierReturnsErrorWhenAllChannelsFail(t *testing.T) {
	failing := NewMockChannel("failing")
	failing.SendFn = func(Alert) error { return errors.New("pager down") }
	n := NewNotifier([]Channel{failing}, time.Minute)

	if err := n.Info("hello", nil); err == nil {
		t.Fatal("expected error when the only channel fails")
	}

	// One healthy channel makes delivery a success.
	n.AddChannel(NewMockChannel("healthy"))
	n.ResetThrottle()
	if err := n.Info("hello", nil); err != nil {
		t.Fatalf("expected success with a healthy channel: %v", err)
	}
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("hook", srv.URL)
	ch.HTTPClient = srv.Client()
	err := ch.Send(Alert{
		Level:     LevelCritical,
		Message:   "emergency liquidation started",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotBody) == 0 {
		t.Fatal("webhook received no body")
	}
}
