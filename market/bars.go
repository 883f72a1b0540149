package market

import (
	"sync"
	"time"
)

// Bar is one OHLC interval.
type Bar struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ts    time.Time
}

// BarHistory keeps a rolling window of recent bars and derives the local
// price extrema used as support and resistance references. Duplicate bars
// (same timestamp) are dropped.
type BarHistory struct {
	mu     sync.Mutex
	window time.Duration
	bars   []Bar

	minima []float64
	maxima []float64
	dirty  bool
}

// NewBarHistory creates a history pruned to the given window.
func NewBarHistory(window time.Duration) *BarHistory {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &BarHistory{window: window}
}

// Add appends a bar unless one with the same timestamp is already present.
func (h *BarHistory) Add(bar Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.bars {
		if b.Ts.Equal(bar.Ts) {
			return
		}
	}
	h.bars = append(h.bars, bar)
	h.dirty = true
}

// Prune drops bars older than the window, measured from the newest bar.
func (h *BarHistory) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.bars) == 0 {
		return
	}
	cutoff := h.bars[len(h.bars)-1].Ts.Add(-h.window)
	kept := h.bars[:0]
	for _, b := range h.bars {
		if !b.Ts.Before(cutoff) {
			kept = append(kept, b)
		}
	}
	h.bars = kept
	h.dirty = true
}

// LocalMinima returns the low of every bar that is a local minimum within
// the window. Fewer than 3 bars yields nothing.
func (h *BarHistory) LocalMinima() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshExtrema()
	return append([]float64(nil), h.minima...)
}

// LocalMaxima returns the high of every bar that is a local maximum within
// the window.
func (h *BarHistory) LocalMaxima() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshExtrema()
	return append([]float64(nil), h.maxima...)
}

func (h *BarHistory) refreshExtrema() {
	if !h.dirty {
		return
	}
	h.dirty = false
	h.minima = h.minima[:0]
	h.maxima = h.maxima[:0]

	if len(h.bars) < 3 {
		return
	}

	lows := make([]float64, len(h.bars))
	highs := make([]float64, len(h.bars))
	for i, b := range h.bars {
		lows[i] = b.Low
		highs[i] = b.High
	}

	for i := range lows {
		leftOK := i == 0 || lows[i] < lows[i-1]
		rightOK := i == len(lows)-1 || lows[i] < lows[i+1]
		if leftOK && rightOK {
			h.minima = append(h.minima, lows[i])
		}
	}
	for i := range highs {
		leftOK := i == 0 || highs[i] > highs[i-1]
		rightOK := i == len(highs)-1 || highs[i] > highs[i+1]
		if leftOK && rightOK {
			h.maxima = append(h.maxima, highs[i])
		}
	}
}
