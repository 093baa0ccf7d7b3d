// Package metrics provides the Prometheus collectors shared by the
// simulation engine and the stats client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threes"

var registry = prometheus.NewRegistry()

var (
	simulationsStarted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulations_started_total",
		Help:      "Total number of simulation runs started",
	})

	simulationsCompleted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulations_completed_total",
		Help:      "Total number of simulation runs completed successfully",
	})

	simulationsFailed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulations_failed_total",
		Help:      "Total number of simulation runs that ended in an error",
	})

	simulationDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "simulation_duration_seconds",
		Help:      "End-to-end duration of a simulation run, data fetch included",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	gamesSimulated = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_simulated_total",
		Help:      "Total number of individual games simulated",
	})

	probabilityClamps = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probability_clamps_total",
		Help:      "Shots whose blended make probability was clamped into [0,1]",
	})

	statsRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_requests_total",
		Help:      "Requests issued to the stats API by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	cacheHits = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_cache_hits_total",
		Help:      "Stats API responses served from the response cache",
	})

	cacheMisses = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_cache_misses_total",
		Help:      "Stats API requests that missed the response cache",
	})
)

// RecordSimulationStarted increments the started-runs counter
func RecordSimulationStarted() {
	simulationsStarted.Inc()
}

// RecordSimulationCompleted records a successful run and its duration
func RecordSimulationCompleted(seconds float64) {
	simulationsCompleted.Inc()
	simulationDuration.Observe(seconds)
}

// RecordSimulationFailed increments the failed-runs counter
func RecordSimulationFailed() {
	simulationsFailed.Inc()
}

// RecordGamesSimulated adds a batch of simulated games to the counter
func RecordGamesSimulated(n int) {
	gamesSimulated.Add(float64(n))
}

// RecordProbabilityClamp counts one clamped shot probability
func RecordProbabilityClamp() {
	probabilityClamps.Inc()
}

// RecordStatsRequest counts one stats API request by endpoint and outcome
func RecordStatsRequest(endpoint, outcome string) {
	statsRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordCacheHit counts a response served from the cache
func RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss counts a request that had to go to the network
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// Handler returns the HTTP handler exposing the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
