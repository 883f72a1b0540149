// Package engine runs the cooperative task loops for each ticker and the
// multi-ticker manager that coordinates portfolio-level shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/config"
	"trade-executor-go/executor"
	"trade-executor-go/market"
	"trade-executor-go/order"
	"trade-executor-go/position"
	"trade-executor-go/signal"
)

// EngineState reports the lifecycle of a ticker engine.
type EngineState int

const (
	StateIdle EngineState = iota
	StateRunning
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the loop cadences for one ticker engine.
type Config struct {
	Ticker                 string
	SignalInterval         time.Duration
	MonitorInterval        time.Duration
	MarketDataInterval     time.Duration
	EmergencyRetryInterval time.Duration
}

// Components are the collaborators a ticker engine drives. All mutation of
// Position and Executor happens through Queue.
type Components struct {
	Executor   *executor.OrderExecutor
	Position   *position.Position
	Queue      *order.Queue
	Signals    signal.Provider
	MarketData *market.Service
	Logger     *zap.Logger
}

// TickerEngine owns the cooperative loops for one ticker: signal polling,
// position monitoring, bracket refresh and the emergency retry loop. The
// loops never touch state directly; each tick only enqueues work.
type TickerEngine struct {
	config Config

	exec    *executor.OrderExecutor
	pos     *position.Position
	queue   *order.Queue
	signals signal.Provider
	md      *market.Service
	log     *zap.Logger

	state EngineState
	mu    sync.RWMutex

	// active gates signal forwarding; the engine monitors from the moment
	// it starts but only trades once activated.
	active bool

	// lastSignal de-duplicates the polled provider: only a strictly newer
	// timestamp is forwarded.
	lastSignal time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup

	emergencyLoopRunning atomic.Bool

	stats Statistics
}

// Statistics counts loop activity for monitoring.
type Statistics struct {
	StartTime         time.Time
	SignalsForwarded  int64
	MonitorPasses     int64
	BracketRefreshes  int64
	EmergencyAttempts int64
	mu                sync.Mutex
}

// New validates the wiring and builds an idle ticker engine.
func New(cfg Config, comp Components) (*TickerEngine, error) {
	if cfg.Ticker == "" {
		return nil, errors.New("ticker is required")
	}
	if comp.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if comp.Position == nil {
		return nil, errors.New("position is required")
	}
	if comp.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if comp.Logger == nil {
		comp.Logger = zap.NewNop()
	}

	if cfg.SignalInterval <= 0 {
		cfg.SignalInterval = time.Second
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}
	if cfg.MarketDataInterval <= 0 {
		cfg.MarketDataInterval = time.Minute
	}
	if cfg.EmergencyRetryInterval <= 0 {
		cfg.EmergencyRetryInterval = 10 * time.Second
	}

	e := &TickerEngine{
		config:   cfg,
		exec:     comp.Executor,
		pos:      comp.Position,
		queue:    comp.Queue,
		signals:  comp.Signals,
		md:       comp.MarketData,
		log:      comp.Logger.With(zap.String("ticker", cfg.Ticker)),
		state:    StateIdle,
		stopChan: make(chan struct{}),
	}
	comp.Executor.SetEmergencyHook(func() { e.startEmergencyLoop(context.Background()) })
	return e, nil
}

// Start launches the queue worker and the cooperative loops.
func (e *TickerEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	e.state = StateRunning
	e.stats.mu.Lock()
	e.stats.StartTime = time.Now()
	e.stats.mu.Unlock()
	e.mu.Unlock()

	e.queue.Start()

	e.wg.Add(2)
	go e.signalLoop(ctx)
	go e.monitorLoop(ctx)
	if e.md != nil {
		e.wg.Add(1)
		go e.marketDataLoop(ctx)
	}

	e.log.Info("ticker engine started",
		zap.Duration("signalInterval", e.config.SignalInterval),
		zap.Duration("monitorInterval", e.config.MonitorInterval))
	return nil
}

// Stop tears down the loops and drains the queue. Idempotent.
func (e *TickerEngine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	e.mu.Unlock()

	close(e.stopChan)
	e.wg.Wait()
	e.queue.Stop()
	e.log.Info("ticker engine stopped")
}

// Activate opens the signal gate; until then the engine only monitors.
func (e *TickerEngine) Activate() {
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	e.log.Info("ticker engine activated")
}

func (e *TickerEngine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *TickerEngine) isActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Executor exposes the executor for manager-level coordination.
func (e *TickerEngine) Executor() *executor.OrderExecutor {
	return e.exec
}

// signalLoop polls the signal provider and forwards fresh signals onto the
// queue as entry tasks.
func (e *TickerEngine) signalLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SignalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkSignal(ctx)
		}
	}
}

func (e *TickerEngine) checkSignal(ctx context.Context) {
	if !e.isActive() || e.signals == nil {
		return
	}
	sig, ok := e.signals.Latest(e.config.Ticker)
	if !ok {
		return
	}
	if !sig.Timestamp.After(e.lastSignal) {
		return
	}
	e.lastSignal = sig.Timestamp

	e.stats.mu.Lock()
	e.stats.SignalsForwarded++
	e.stats.mu.Unlock()

	e.queue.Enqueue(order.Task{
		Name:  "signal",
		Entry: true,
		Run: func() error {
			e.exec.HandleSignal(ctx, sig)
			return nil
		},
	})
}

// monitorLoop enqueues the periodic position checks. A panic in the loop
// body restarts the loop; the position monitor must never silently die.
func (e *TickerEngine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("position monitor panicked, restarting", zap.Any("panic", r))
			select {
			case <-e.stopChan:
				return
			default:
			}
			e.wg.Add(1)
			go e.monitorLoop(ctx)
		}
	}()

	ticker := time.NewTicker(e.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.enqueueMonitorPass(ctx)
		}
	}
}

func (e *TickerEngine) enqueueMonitorPass(ctx context.Context) {
	e.stats.mu.Lock()
	e.stats.MonitorPasses++
	e.stats.mu.Unlock()

	e.queue.Enqueue(order.Task{
		Name: "position-monitor",
		Run: func() error {
			e.exec.HandleExpiredPositions(ctx)
			e.exec.HandleDanglingShares(ctx)
			e.exec.HandlePnLChecks(ctx)
			e.exec.HandleMaxPositionSizeCheck(ctx)
			return nil
		},
	})
}

// marketDataLoop refreshes bracket pricing against the current book and
// sweeps brackets orphaned by a flat broker position.
func (e *TickerEngine) marketDataLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.MarketDataInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.stats.mu.Lock()
			e.stats.BracketRefreshes++
			e.stats.mu.Unlock()

			e.queue.Enqueue(order.Task{
				Name: "bracket-refresh",
				Run: func() error {
					e.exec.MaintainBrackets(ctx)
					e.exec.HandleStaleBrackets(ctx)
					return nil
				},
			})
		}
	}
}

// startEmergencyLoop spawns the retry loop. At most one runs at a time;
// the executor's emergency flag is the loop condition.
func (e *TickerEngine) startEmergencyLoop(ctx context.Context) {
	select {
	case <-e.stopChan:
		return
	default:
	}
	if !e.emergencyLoopRunning.CompareAndSwap(false, true) {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.emergencyLoopRunning.Store(false)

		ticker := time.NewTicker(e.config.EmergencyRetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopChan:
				return
			case <-ticker.C:
				if !e.exec.EmergencyExitActive() {
					return
				}
				e.stats.mu.Lock()
				e.stats.EmergencyAttempts++
				e.stats.mu.Unlock()

				e.queue.Enqueue(order.Task{
					Name: "emergency-retry",
					Run: func() error {
						e.exec.EmergencyRetryStep(ctx)
						return nil
					},
				})
			}
		}
	}()
}

// RequestEmergencyExit enqueues the emergency protocol on the queue.
func (e *TickerEngine) RequestEmergencyExit(ctx context.Context) {
	e.queue.Enqueue(order.Task{
		Name: "emergency-protocol",
		Run: func() error {
			e.exec.EmergencyExitProtocol(ctx)
			return nil
		},
	})
}

// OnOrderStatus funnels a broker lifecycle event through the queue.
func (e *TickerEngine) OnOrderStatus(ctx context.Context, orderID int64, status order.Status, filled, avgPrice float64) {
	e.queue.Enqueue(order.Task{
		Name: "order-status",
		Run: func() error {
			e.exec.OnOrderStatus(ctx, orderID, status, filled, avgPrice)
			return nil
		},
	})
}

// OnPositionUpdate funnels a broker position callback through the queue.
func (e *TickerEngine) OnPositionUpdate(ctx context.Context, shareCount int, avgPrice float64) {
	e.queue.Enqueue(order.Task{
		Name: "position-update",
		Run: func() error {
			e.exec.HandlePositionUpdate(ctx, shareCount, avgPrice)
			return nil
		},
	})
}

// OnPnLUpdate funnels a broker PnL callback through the queue.
func (e *TickerEngine) OnPnLUpdate(realized, unrealized float64) {
	e.queue.Enqueue(order.Task{
		Name: "pnl-update",
		Run: func() error {
			e.exec.HandlePnLUpdate(realized, unrealized)
			return nil
		},
	})
}

// Assignment returns the engine's per-ticker configuration.
func (e *TickerEngine) Assignment() config.Assignment {
	return e.pos.Assignment
}
