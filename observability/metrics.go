package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records ledger and liquidation activity for operational
// dashboards. Counters only; the engine core stays free of timing concerns.
type EngineMetrics struct {
	accruals   *prometheus.CounterVec
	operations *prometheus.CounterVec
	auctions   *prometheus.CounterVec
	oracle     *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			accruals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "accruals_total",
				Help:      "Interest accrual passes segmented by market.",
			}, []string{"market"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by market, operation and outcome.",
			}, []string{"market", "op", "outcome"}),
			auctions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "auction",
				Name:      "events_total",
				Help:      "Dutch auction lifecycle events segmented by market and event.",
			}, []string{"market", "event"}),
			oracle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "oracle",
				Name:      "resolutions_total",
				Help:      "Price resolutions segmented by outcome (direct, fallback, deviation, unavailable).",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.accruals,
			engineRegistry.operations,
			engineRegistry.auctions,
			engineRegistry.oracle,
		)
	})
	return engineRegistry
}

// ObserveAccrual records one interest accrual pass for the market.
func (m *EngineMetrics) ObserveAccrual(market string) {
	if m == nil {
		return
	}
	m.accruals.WithLabelValues(market).Inc()
}

// ObserveOperation records the outcome of a ledger operation.
func (m *EngineMetrics) ObserveOperation(market, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(market, op, outcome).Inc()
}

// ObserveAuction records a Dutch auction lifecycle event such as started,
// filled, completed or cancelled.
func (m *EngineMetrics) ObserveAuction(market, event string) {
	if m == nil {
		return
	}
	m.auctions.WithLabelValues(market, event).Inc()
}

// ObserveOracle records the outcome of a price resolution.
func (m *EngineMetrics) ObserveOracle(outcome string) {
	if m == nil {
		return
	}
	m.oracle.WithLabelValues(outcome).Inc()
}
