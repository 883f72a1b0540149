// Package risk holds the portfolio-level risk checks that sit above the
// per-ticker executors.
package risk

import (
	"sync"

	"go.uber.org/zap"
)

// PortfolioMonitor accumulates broker-reported PnL across all tickers and
// fires a one-shot shutdown callback when the combined realized loss
// breaches the configured limit.
//
// Safe for concurrent use; PnL events arrive on every ticker's queue.
type PortfolioMonitor struct {
	maxLoss float64
	log     *zap.Logger

	mu         sync.Mutex
	realized   map[string]float64
	unrealized map[string]float64
	breached   bool

	onBreach func()
}

// NewPortfolioMonitor builds a monitor for the given cumulative loss limit.
// A limit of zero disables the check.
func NewPortfolioMonitor(maxLoss float64, log *zap.Logger) *PortfolioMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PortfolioMonitor{
		maxLoss:    maxLoss,
		log:        log,
		realized:   make(map[string]float64),
		unrealized: make(map[string]float64),
	}
}

// SetBreachCallback registers the coordinated shutdown hook. Must be set
// before updates arrive.
func (m *PortfolioMonitor) SetBreachCallback(fn func()) {
	m.mu.Lock()
	m.onBreach = fn
	m.mu.Unlock()
}

// Update records a ticker's latest broker PnL snapshot and runs the breach
// check. The callback fires at most once for the life of the monitor.
func (m *PortfolioMonitor) Update(ticker string, realized, unrealized float64) {
	m.mu.Lock()
	m.realized[ticker] = realized
	m.unrealized[ticker] = unrealized

	total := 0.0
	for _, pnl := range m.realized {
		total += pnl
	}

	fire := m.maxLoss > 0 && total < -m.maxLoss && !m.breached
	if fire {
		m.breached = true
	}
	cb := m.onBreach
	m.mu.Unlock()

	if fire {
		m.log.Error("portfolio loss limit breached",
			zap.Float64("totalRealized", total),
			zap.Float64("limit", m.maxLoss))
		if cb != nil {
			cb()
		}
	}
}

// Breached reports whether the limit has tripped.
func (m *PortfolioMonitor) Breached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breached
}

// TotalRealized sums the latest realized PnL across tickers.
func (m *PortfolioMonitor) TotalRealized() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, pnl := range m.realized {
		total += pnl
	}
	return total
}

// TotalUnrealized sums the latest unrealized PnL across tickers.
func (m *PortfolioMonitor) TotalUnrealized() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, pnl := range m.unrealized {
		total += pnl
	}
	return total
}
