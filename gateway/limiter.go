package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter throttles outbound requests below the brokerage's limits.
// Wait blocks until the request may go out or the context ends.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter is a reservation-based token bucket: a caller debits
// its token up front, and a negative balance tells it how long to wait.
// Cancelled waiters return their token so later requests are not charged
// for traffic that never went out.
type TokenBucketLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time

	now func() time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	l := &TokenBucketLimiter{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
	l.last = l.now()
	return l
}

// reserve debits one token and returns how long the caller must hold off.
func (l *TokenBucketLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now
	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(-l.tokens / l.rate * float64(time.Second))
}

func (l *TokenBucketLimiter) refund() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens++
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}

func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	delay := l.reserve()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.refund()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
