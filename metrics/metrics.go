// Package metrics provides Prometheus metrics for translation providers,
// the result cache, and the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modtranslate"

// Outcome label values for ProviderRequests.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

var (
	// ProviderRequests counts provider batch calls by outcome.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider batch calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderLatency tracks provider batch call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider batch call latency",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	// KeyFailures counts per-key failures reported inside partial outcomes.
	KeyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_failures_total",
			Help:      "Keys a provider could not translate",
		},
		[]string{"provider"},
	)

	// CacheLookups counts result cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries evicted from the result cache.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries evicted from the result cache",
		},
	)

	// Fallbacks counts escalations of missing local keys to the AI method.
	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Escalations from the local method to the AI method",
		},
	)

	// CredentialRotations counts hosted-provider credential rotations by reason.
	CredentialRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_rotations_total",
			Help:      "Hosted provider credential rotations by reason",
		},
		[]string{"provider", "reason"},
	)
)

// ObserveOutcome records one provider call.
func ObserveOutcome(provider string, seconds float64, successes, failures int) {
	outcome := OutcomeSuccess
	switch {
	case successes == 0:
		outcome = OutcomeFailure
	case failures > 0:
		outcome = OutcomePartial
	}
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(seconds)
	if failures > 0 {
		KeyFailures.WithLabelValues(provider).Add(float64(failures))
	}
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
