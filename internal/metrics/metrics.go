package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeCallsTotal   *prometheus.CounterVec
	storeCallDuration *prometheus.HistogramVec
	rotationsTotal    *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the gcpkit collectors with the default registry.
// Calling it more than once is safe. Until it is called every recorder below
// is a no-op.
func InitMetrics() {
	metricsOnce.Do(func() {
		storeCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gcpkit_secretstore_calls_total",
				Help: "Total number of Secret Manager calls by operation and result",
			},
			[]string{"operation", "result"},
		)

		storeCallDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gcpkit_secretstore_call_duration_seconds",
				Help:    "Duration of Secret Manager calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		)

		rotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gcpkit_rotations_total",
				Help: "Total number of rotate-and-retire runs by outcome",
			},
			[]string{"outcome"},
		)

		metricsRegistered = true
	})
}

// ObserveStoreCall records one Secret Manager call.
func ObserveStoreCall(operation, result string, d time.Duration) {
	if !metricsRegistered {
		return
	}
	storeCallsTotal.WithLabelValues(operation, result).Inc()
	storeCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncRotation records the outcome of one rotation.
func IncRotation(outcome string) {
	if !metricsRegistered {
		return
	}
	rotationsTotal.WithLabelValues(outcome).Inc()
}

// StoreCalls returns the call counter for tests. Nil before InitMetrics.
func StoreCalls() *prometheus.CounterVec {
	return storeCallsTotal
}

// Rotations returns the rotation counter for tests. Nil before InitMetrics.
func Rotations() *prometheus.CounterVec {
	return rotationsTotal
}
