// Package metrics collects Prometheus metrics for the execution engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns a private registry so multiple instances can coexist in
// tests without duplicate registration panics.
type Monitor struct {
	registry *prometheus.Registry

	// order flow
	ordersPlaced   *prometheus.CounterVec
	ordersModified *prometheus.CounterVec
	ordersCanceled *prometheus.CounterVec
	ordersFilled   *prometheus.CounterVec
	ordersRejected *prometheus.CounterVec

	// position
	trueShareCount *prometheus.GaugeVec
	internalSize   *prometheus.GaugeVec
	realizedPnL    *prometheus.GaugeVec
	unrealizedPnL  *prometheus.GaugeVec

	// risk
	emergencyActive  *prometheus.GaugeVec
	emergencyRetries *prometheus.CounterVec
	cooldownRejects  *prometheus.CounterVec

	// queue
	queueDepth *prometheus.GaugeVec
	tasksRun   *prometheus.CounterVec
}

// Config names the metric namespace.
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{
		Namespace: "te",
		Subsystem: "execution",
	}
}

// New builds a Monitor with all metrics registered on a fresh registry.
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		ordersPlaced:   counter("orders_placed_total", "Orders sent to the broker", "ticker", "type"),
		ordersModified: counter("orders_modified_total", "Order modifications sent to the broker", "ticker", "type"),
		ordersCanceled: counter("orders_canceled_total", "Order cancellations sent to the broker", "ticker", "type"),
		ordersFilled:   counter("orders_filled_total", "Terminal fill events applied", "ticker", "type"),
		ordersRejected: counter("orders_rejected_total", "Orders rejected before reaching the broker", "ticker", "type"),

		trueShareCount: gauge("true_share_count", "Broker-reported share count", "ticker"),
		internalSize:   gauge("internal_size", "Internally tracked share count", "ticker"),
		realizedPnL:    gauge("realized_pnl", "Broker-reported realized PnL", "ticker"),
		unrealizedPnL:  gauge("unrealized_pnl", "Broker-reported unrealized PnL", "ticker"),

		emergencyActive:  gauge("emergency_exit_active", "1 while the emergency exit flag is set", "ticker"),
		emergencyRetries: counter("emergency_retries_total", "Emergency exit retry iterations", "ticker"),
		cooldownRejects:  counter("cooldown_rejects_total", "Submissions blocked by the stop loss cooldown", "ticker"),

		queueDepth: gauge("queue_depth", "Tasks waiting on the per-ticker work queue", "ticker"),
		tasksRun:   counter("tasks_run_total", "Tasks executed by the per-ticker work queue", "ticker"),
	}
}

func (m *Monitor) OrderPlaced(ticker, typ string) {
	m.ordersPlaced.WithLabelValues(ticker, typ).Inc()
}

func (m *Monitor) OrderModified(ticker, typ string) {
	m.ordersModified.WithLabelValues(ticker, typ).Inc()
}

func (m *Monitor) OrderCanceled(ticker, typ string) {
	m.ordersCanceled.WithLabelValues(ticker, typ).Inc()
}

func (m *Monitor) OrderFilled(ticker, typ string) {
	m.ordersFilled.WithLabelValues(ticker, typ).Inc()
}

func (m *Monitor) OrderRejected(ticker, typ string) {
	m.ordersRejected.WithLabelValues(ticker, typ).Inc()
}

func (m *Monitor) SetTrueShareCount(ticker string, n int) {
	m.trueShareCount.WithLabelValues(ticker).Set(float64(n))
}

func (m *Monitor) SetInternalSize(ticker string, size float64) {
	m.internalSize.WithLabelValues(ticker).Set(size)
}

func (m *Monitor) SetPnL(ticker string, realized, unrealized float64) {
	m.realizedPnL.WithLabelValues(ticker).Set(realized)
	m.unrealizedPnL.WithLabelValues(ticker).Set(unrealized)
}

func (m *Monitor) SetEmergencyActive(ticker string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.emergencyActive.WithLabelValues(ticker).Set(v)
}

func (m *Monitor) EmergencyRetry(ticker string) {
	m.emergencyRetries.WithLabelValues(ticker).Inc()
}

func (m *Monitor) CooldownReject(ticker string) {
	m.cooldownRejects.WithLabelValues(ticker).Inc()
}

func (m *Monitor) TaskRun(ticker string) {
	m.tasksRun.WithLabelValues(ticker).Inc()
}

func (m *Monitor) SetQueueDepth(ticker string, n int) {
	m.queueDepth.WithLabelValues(ticker).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer serves /metrics on addr in a background goroutine. The caller
// owns shutdown.
func (m *Monitor) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
