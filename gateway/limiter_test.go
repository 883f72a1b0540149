package gateway

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBurstPassesWithoutDelay(t *testing.T) {
	l := NewTokenBucketLimiter(1, 3)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("burst took %v, should be immediate", elapsed)
	}
}

func TestLimiterReservationDelay(t *testing.T) {
	l := NewTokenBucketLimiter(10, 1)
	base := time.Now()
	l.now = func() time.Time { return base }
	l.last = base

	if d := l.reserve(); d != 0 {
		t.Fatalf("first reserve delayed %v, want 0", d)
	}
	// Bucket empty: the next caller owes one token at 10/s.
	if d := l.reserve(); d != 100*time.Millisecond {
		t.Fatalf("second reserve delay = %v, want 100ms", d)
	}
	// Time passes, tokens refill.
	l.now = func() time.Time { return base.Add(time.Second) }
	if d := l.reserve(); d != 0 {
		t.Fatalf("reserve after refill delayed %v, want 0", d)
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1)
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Wait(cancelled); err == nil {
		t.Fatal("expected context error while rate limited")
	}

	// The cancelled waiter returned its token: the next caller owes one
	// token (~1000s at this rate), not two (~2000s).
	if d := l.reserve(); d > 1500*time.Second {
		t.Fatalf("delay after refund = %v, token was not returned", d)
	}
}
