package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the template lifecycle.
type Metrics struct {
	Enrolled          prometheus.Counter
	Revoked           prometheus.Counter
	IntegrityFailures prometheus.Counter
	SweptExpired      prometheus.Counter
	EnrollDuration    prometheus.Histogram
}

// New creates a Metrics instance with all template module metrics registered.
func New() *Metrics {
	return &Metrics{
		Enrolled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_templates_enrolled_total",
			Help: "Total number of templates enrolled",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_templates_revoked_total",
			Help: "Total number of templates revoked",
		}),
		IntegrityFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_template_integrity_failures_total",
			Help: "Total number of templates auto-disabled after a checksum mismatch",
		}),
		SweptExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_templates_swept_expired_total",
			Help: "Total number of templates marked expired by the sweeper",
		}),
		EnrollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriprint_enroll_duration_seconds",
			Help:    "Duration of enrollment persistence (encode, encrypt, insert)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveEnroll records the duration of an enrollment persistence operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEnroll(start time.Time) {
	m.EnrollDuration.Observe(time.Since(start).Seconds())
}
