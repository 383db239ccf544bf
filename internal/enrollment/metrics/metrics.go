package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment path.
type Metrics struct {
	Accepted           prometheus.Counter
	RejectedLowQuality prometheus.Counter
	CaptureQuality     prometheus.Histogram
}

// New creates a Metrics instance with all enrollment metrics registered.
func New() *Metrics {
	return &Metrics{
		Accepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_enrollments_accepted_total",
			Help: "Total number of enrollments that passed the quality gate and persisted",
		}),
		RejectedLowQuality: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriprint_enrollments_rejected_low_quality_total",
			Help: "Total number of enrollments rejected below the minimum quality",
		}),
		CaptureQuality: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriprint_enroll_capture_quality",
			Help:    "Quality score distribution of enrollment captures",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
	}
}
