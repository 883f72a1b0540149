package market

import (
	"sync"
	"time"

	"trade-executor-go/config"
	"trade-executor-go/position"
	"trade-executor-go/signal"
)

// Tick identifies which side of the book a quote update touches.
type Tick int

const (
	TickBid Tick = iota
	TickAsk
	TickLast
)

// Book holds the top-of-book quote for one ticker. Updates arrive from the
// gateway stream goroutine while the executor reads on the work queue, so
// access is mutex guarded.
type Book struct {
	mu sync.RWMutex

	bidPrice  float64
	bidSize   float64
	askPrice  float64
	askSize   float64
	lastPrice float64

	updatedAt time.Time
}

func NewBook() *Book {
	return &Book{}
}

// UpdatePrice applies a price tick.
func (b *Book) UpdatePrice(tick Tick, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch tick {
	case TickBid:
		b.bidPrice = price
	case TickAsk:
		b.askPrice = price
	case TickLast:
		b.lastPrice = price
	}
	b.updatedAt = time.Now()
}

// UpdateSize applies a size tick. Last-trade sizes are not tracked.
func (b *Book) UpdateSize(tick Tick, size float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch tick {
	case TickBid:
		b.bidSize = size
	case TickAsk:
		b.askSize = size
	}
	b.updatedAt = time.Now()
}

func (b *Book) Bid() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidPrice
}

func (b *Book) Ask() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.askPrice
}

func (b *Book) Last() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// Mid returns the midpoint, or 0 while either side is missing.
func (b *Book) Mid() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidPrice == 0 || b.askPrice == 0 {
		return 0
	}
	return (b.bidPrice + b.askPrice) / 2
}

// Staleness reports how long ago the book last changed.
func (b *Book) Staleness() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updatedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(b.updatedAt)
}

// EntryPrice picks the limit price for a new entry. Under BEST the order
// rests at the passive touch (bid when buying, ask when selling); under
// WORST it crosses the spread for an immediate fill.
func (b *Book) EntryPrice(d signal.Direction, strategy config.SpreadStrategy) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if strategy == config.SpreadBest {
		if d == signal.Bullish {
			return b.bidPrice
		}
		return b.askPrice
	}
	if d == signal.Bullish {
		return b.askPrice
	}
	return b.bidPrice
}

// ExitPrice picks the limit price for closing a position, mirroring
// EntryPrice: BEST rests at the touch on the far side, WORST crosses.
func (b *Book) ExitPrice(side position.Side, strategy config.SpreadStrategy) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if strategy == config.SpreadBest {
		if side == position.SideLong {
			return b.askPrice
		}
		return b.bidPrice
	}
	if side == position.SideLong {
		return b.bidPrice
	}
	return b.askPrice
}

// PassiveTouch is the price that liquidates without crossing: the bid for a
// long, the ask for a short. Falls back to the last trade when the touch is
// missing.
func (b *Book) PassiveTouch(side position.Side) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var price float64
	if side == position.SideLong {
		price = b.bidPrice
	} else {
		price = b.askPrice
	}
	if price == 0 {
		price = b.lastPrice
	}
	return price
}
