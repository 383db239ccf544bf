package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification path.
type Metrics struct {
	Succeeded      prometheus.Counter
	Failed         prometheus.Counter
	RateLimited    prometheus.Counter
	VerifyDuration prometheus.Histogram
	Similarity     prometheus.Histogram
}

// New creates a Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Succeeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_verifications_succeeded_total",
			Help: "Total number of verifications where the best match cleared the threshold",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_verifications_failed_total",
			Help: "Total number of verifications where no match cleared the threshold",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_verifications_rate_limited_total",
			Help: "Total number of verification attempts denied by the rate limiter",
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriprint_verify_duration_seconds",
			Help:    "End-to-end duration of verification calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Similarity: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriprint_verify_similarity",
			Help:    "Best-match similarity score distribution",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
	}
}

// ObserveVerify records the duration of a verification call. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
