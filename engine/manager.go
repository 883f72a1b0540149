package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/executor"
	"trade-executor-go/gateway"
	"trade-executor-go/infrastructure/alert"
	"trade-executor-go/market"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
	"trade-executor-go/risk"
	"trade-executor-go/signal"
)

// Manager owns one TickerEngine per assignment plus the portfolio-level
// risk monitor. It implements gateway.EventHandler, routing every broker
// event onto the right ticker's queue.
type Manager struct {
	engines   map[string]*TickerEngine
	portfolio *risk.PortfolioMonitor
	grace     time.Duration
	log       *zap.Logger
	notifier  *alert.Notifier

	shutdownOnce sync.Once
}

// SetNotifier attaches an alert notifier for portfolio breaches and
// shutdown failures. Without one those events are only logged.
func (m *Manager) SetNotifier(n *alert.Notifier) {
	m.notifier = n
}

// NewManager wires an engine per assignment against the shared broker,
// market data service and signal provider.
func NewManager(cfg *config.AppConfig, broker gateway.Broker, md *market.Service, signals signal.Provider, mon *metrics.Monitor, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		engines:   make(map[string]*TickerEngine),
		portfolio: risk.NewPortfolioMonitor(cfg.Portfolio.MaxLossCumulative, log),
		grace:     cfg.Portfolio.ShutdownGrace(),
		log:       log,
	}

	for ticker, asg := range cfg.Assignments {
		pos := position.New(asg, log)
		exec := executor.New(asg, pos, md.Book(ticker), broker, mon, log)
		queue := order.NewQueue(asg.EntrySpacing(), log.With(zap.String("ticker", ticker)))

		eng, err := New(Config{Ticker: ticker}, Components{
			Executor:   exec,
			Position:   pos,
			Queue:      queue,
			Signals:    signals,
			MarketData: md,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("engine for %s: %w", ticker, err)
		}
		m.engines[ticker] = eng
	}

	// A portfolio breach liquidates everything. The callback arrives on a
	// ticker queue worker, so the shutdown runs on its own goroutine.
	m.portfolio.SetBreachCallback(func() {
		if m.notifier != nil {
			m.notifier.Critical("portfolio loss limit breached", map[string]interface{}{
				"maxLoss": cfg.Portfolio.MaxLossCumulative,
			})
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.grace+time.Minute)
			defer cancel()
			if err := m.EmergencyShutdown(ctx); err != nil {
				m.log.Error("emergency shutdown incomplete", zap.Error(err))
				if m.notifier != nil {
					m.notifier.Critical("emergency shutdown incomplete", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}()
	})

	return m, nil
}

// Engine returns the engine for a ticker, or nil.
func (m *Manager) Engine(ticker string) *TickerEngine {
	return m.engines[ticker]
}

// Tickers lists the managed tickers, sorted.
func (m *Manager) Tickers() []string {
	out := make([]string, 0, len(m.engines))
	for ticker := range m.engines {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Portfolio exposes the shared PnL monitor.
func (m *Manager) Portfolio() *risk.PortfolioMonitor {
	return m.portfolio
}

// Start launches every ticker engine and opens its signal gate.
func (m *Manager) Start(ctx context.Context) error {
	for ticker, eng := range m.engines {
		if err := eng.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", ticker, err)
		}
		eng.Activate()
	}
	m.log.Info("engine manager started", zap.Int("tickers", len(m.engines)))
	return nil
}

// Stop tears down every ticker engine.
func (m *Manager) Stop() {
	for _, eng := range m.engines {
		eng.Stop()
	}
	m.log.Info("engine manager stopped")
}

// EmergencyShutdown requests liquidation on every ticker, waits a bounded
// grace period for the broker to report everything flat, then stops the
// engines. Idempotent; a second call waits on the first.
func (m *Manager) EmergencyShutdown(ctx context.Context) error {
	var err error
	m.shutdownOnce.Do(func() {
		m.log.Error("coordinated emergency shutdown requested")
		for _, eng := range m.engines {
			eng.RequestEmergencyExit(ctx)
		}
		err = m.waitForFlat(ctx)
		m.Stop()
	})
	return err
}

// waitForFlat polls the broker-reported counts until all tickers are flat
// or the grace period lapses. The reference behavior of spinning forever is
// replaced with an explicit timeout error.
func (m *Manager) waitForFlat(ctx context.Context) error {
	deadline := time.NewTimer(m.grace)
	defer deadline.Stop()
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	for {
		if m.allFlat() {
			m.log.Info("all positions flat")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", risk.ErrShutdownTimeout, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: after %s", risk.ErrShutdownTimeout, m.grace)
		case <-poll.C:
		}
	}
}

func (m *Manager) allFlat() bool {
	for _, eng := range m.engines {
		if eng.pos.TrueShareCount() != 0 {
			return false
		}
	}
	return true
}

// OnOrderStatus implements gateway.EventHandler.
func (m *Manager) OnOrderStatus(ticker string, orderID int64, status order.Status, filled, avgPrice float64) {
	eng, ok := m.engines[ticker]
	if !ok {
		m.log.Warn("order status for unmanaged ticker", zap.String("ticker", ticker))
		return
	}
	eng.OnOrderStatus(context.Background(), orderID, status, filled, avgPrice)
}

// OnPositionUpdate implements gateway.EventHandler.
func (m *Manager) OnPositionUpdate(ticker string, shareCount int, avgPrice float64) {
	eng, ok := m.engines[ticker]
	if !ok {
		return
	}
	eng.OnPositionUpdate(context.Background(), shareCount, avgPrice)
}

// OnPnLUpdate implements gateway.EventHandler. The portfolio monitor sees
// every ticker's snapshot; breaches trigger the coordinated shutdown.
func (m *Manager) OnPnLUpdate(ticker string, realized, unrealized float64) {
	if eng, ok := m.engines[ticker]; ok {
		eng.OnPnLUpdate(realized, unrealized)
	}
	m.portfolio.Update(ticker, realized, unrealized)
}
