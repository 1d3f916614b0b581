// Package metrics exposes prometheus collectors for pool accounting,
// liquidation activity and gateway traffic.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EngineMetrics struct {
	poolUtilization  *prometheus.GaugeVec
	poolBorrowed     *prometheus.GaugeVec
	interestAccruals *prometheus.CounterVec
	liquidations     *prometheus.CounterVec
	liquidationFees  *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			poolUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "margind",
				Subsystem: "pool",
				Name:      "utilization_ratio",
				Help:      "Current utilization of each lending pool.",
			}, []string{"mint"}),
			poolBorrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "margind",
				Subsystem: "pool",
				Name:      "borrowed_tokens",
				Help:      "Outstanding borrowed tokens per pool.",
			}, []string{"mint"}),
			interestAccruals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "margind",
				Subsystem: "pool",
				Name:      "interest_accruals_total",
				Help:      "Count of interest accrual runs per pool.",
			}, []string{"mint"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "margind",
				Subsystem: "liquidation",
				Name:      "events_total",
				Help:      "Liquidation lifecycle events segmented by phase.",
			}, []string{"phase"}),
			liquidationFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "margind",
				Subsystem: "liquidation",
				Name:      "fees_collected_tokens_total",
				Help:      "Liquidation fee tokens paid out per mint.",
			}, []string{"mint"}),
		}
		prometheus.MustRegister(
			engineRegistry.poolUtilization,
			engineRegistry.poolBorrowed,
			engineRegistry.interestAccruals,
			engineRegistry.liquidations,
			engineRegistry.liquidationFees,
		)
	})
	return engineRegistry
}

// SetPoolState records the pool gauges after an accounting change.
func (m *EngineMetrics) SetPoolState(mint string, utilization, borrowed float64) {
	if m == nil {
		return
	}
	m.poolUtilization.WithLabelValues(mint).Set(utilization)
	m.poolBorrowed.WithLabelValues(mint).Set(borrowed)
}

// ObserveAccrual counts one interest accrual run for the pool.
func (m *EngineMetrics) ObserveAccrual(mint string) {
	if m == nil {
		return
	}
	m.interestAccruals.WithLabelValues(mint).Inc()
}

// ObserveLiquidation counts one liquidation lifecycle event. phase is one of
// begin, invoke, end or timeout.
func (m *EngineMetrics) ObserveLiquidation(phase string) {
	if m == nil {
		return
	}
	if phase == "" {
		phase = "unknown"
	}
	m.liquidations.WithLabelValues(phase).Inc()
}

// ObserveLiquidationFee records fee tokens paid out to a liquidator.
func (m *EngineMetrics) ObserveLiquidationFee(mint string, tokens float64) {
	if m == nil {
		return
	}
	m.liquidationFees.WithLabelValues(mint).Add(tokens)
}
