// Package metrics provides the centralized Prometheus registry for the
// evolution service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evo_trader",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by stage and outcome",
	}, []string{"stage", "outcome"})
	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evo_trader",
		Name:      "status_transitions_total",
		Help:      "Total number of lifecycle status transitions",
	}, []string{"from", "to"})
	MutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evo_trader",
		Name:      "mutations_total",
		Help:      "Total number of child strategies spawned by mutation type",
	}, []string{"mutation_type"})
	IntakeDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evo_trader",
		Name:      "intake_decisions_total",
		Help:      "Total number of intake gatekeeper decisions",
	}, []string{"decision"})
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evo_trader",
		Name:      "provider_requests_total",
		Help:      "Total number of data provider requests by result",
	}, []string{"result"})
)

// Gauge metrics
var (
	PopulationSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "evo_trader",
		Name:      "population_size",
		Help:      "Current number of strategies by status",
	}, []string{"status"})
	StrategyScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "evo_trader",
		Name:      "strategy_score",
		Help:      "Latest composite score per strategy",
	}, []string{"strategy_id"})
)

// Histogram metrics
var (
	CycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evo_trader",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of scheduler cycles in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	}, []string{"cycle"})
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evo_trader",
		Name:      "backtest_duration_seconds",
		Help:      "Duration of single-strategy backtests in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	CompositeScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evo_trader",
		Name:      "composite_score",
		Help:      "Distribution of composite scores across evaluations",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(StatusTransitionsTotal)
		registry.MustRegister(MutationsTotal)
		registry.MustRegister(IntakeDecisionsTotal)
		registry.MustRegister(ProviderRequestsTotal)

		registry.MustRegister(PopulationSize)
		registry.MustRegister(StrategyScore)

		registry.MustRegister(CycleDuration)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(CompositeScore)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordBacktestRun records a backtest run by stage and outcome.
// stage is one of: "full", "sanity", "walk_forward"
func RecordBacktestRun(stage, outcome string) {
	BacktestRunsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordTransition records a lifecycle status transition.
func RecordTransition(from, to string) {
	StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordMutation records a spawned child by mutation type.
func RecordMutation(mutationType string) {
	MutationsTotal.WithLabelValues(mutationType).Inc()
}

// RecordIntakeDecision records an intake decision.
// decision is one of: "accepted", "duplicate", "rejected"
func RecordIntakeDecision(decision string) {
	IntakeDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordProviderRequest records a data provider request result.
func RecordProviderRequest(result string) {
	ProviderRequestsTotal.WithLabelValues(result).Inc()
}
