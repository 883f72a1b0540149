package market

import (
	"testing"

	"trade-executor-go/config"
	"trade-executor-go/position"
	"trade-executor-go/signal"
)

func quotedBook(bid, ask, last float64) *Book {
	b := NewBook()
	b.UpdatePrice(TickBid, bid)
	b.UpdatePrice(TickAsk, ask)
	b.UpdatePrice(TickLast, last)
	return b
}

func TestEntryPrice(t *testing.T) {
	b := quotedBook(99.90, 100.10, 100.00)

	cases := []struct {
		name     string
		dir      signal.Direction
		strategy config.SpreadStrategy
		want     float64
	}{
		{"bullish best rests on bid", signal.Bullish, config.SpreadBest, 99.90},
		{"bearish best rests on ask", signal.Bearish, config.SpreadBest, 100.10},
		{"bullish worst crosses to ask", signal.Bullish, config.SpreadWorst, 100.10},
		{"bearish worst crosses to bid", signal.Bearish, config.SpreadWorst, 99.90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.EntryPrice(tc.dir, tc.strategy); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExitPrice(t *testing.T) {
	b := quotedBook(99.90, 100.10, 100.00)

	cases := []struct {
		name     string
		side     position.Side
		strategy config.SpreadStrategy
		want     float64
	}{
		{"long best rests on ask", position.SideLong, config.SpreadBest, 100.10},
		{"short best rests on bid", position.SideShort, config.SpreadBest, 99.90},
		{"long worst crosses to bid", position.SideLong, config.SpreadWorst, 99.90},
		{"short worst crosses to ask", position.SideShort, config.SpreadWorst, 100.10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.ExitPrice(tc.side, tc.strategy); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPassiveTouchFallsBackToLast(t *testing.T) {
	b := quotedBook(99.90, 100.10, 100.00)
	if got := b.PassiveTouch(position.SideLong); got != 99.90 {
		t.Fatalf("long touch = %v, want bid", got)
	}
	if got := b.PassiveTouch(position.SideShort); got != 100.10 {
		t.Fatalf("short touch = %v, want ask", got)
	}

	empty := NewBook()
	empty.UpdatePrice(TickLast, 50.00)
	if got := empty.PassiveTouch(position.SideLong); got != 50.00 {
		t.Fatalf("touch without quotes = %v, want last", got)
	}
}

func TestMidRequiresBothSides(t *testing.T) {
	b := NewBook()
	b.UpdatePrice(TickBid, 99.90)
	if got := b.Mid(); got != 0 {
		t.Fatalf("mid with one side = %v, want 0", got)
	}
	b.UpdatePrice(TickAsk, 100.10)
	if got := b.Mid(); got != 100.00 {
		t.Fatalf("mid = %v, want 100.00", got)
	}
}
