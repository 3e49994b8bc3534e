package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbmend",
			Name:      "detections_total",
			Help:      "Detection events accepted, partitioned by category and severity.",
		},
		[]string{"category", "severity"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbmend",
			Name:      "decisions_total",
			Help:      "Decisions reviewed, partitioned by final status.",
		},
		[]string{"status"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dbmend",
			Name:      "executions_total",
			Help:      "Finished executions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	executionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dbmend",
			Name:      "execution_seconds",
			Help:      "Remediation execution latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// Register attaches pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		decisionsTotal,
		executionsTotal,
		executionSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// CountDetection records one accepted detection event.
func CountDetection(category, severity string) {
	detectionsTotal.WithLabelValues(category, severity).Inc()
}

// CountDecision records a decision reaching a terminal review status.
func CountDecision(status string) {
	decisionsTotal.WithLabelValues(status).Inc()
}

// ObserveExecution records a finished execution's outcome and duration.
func ObserveExecution(outcome string, duration time.Duration) {
	executionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	executionSeconds.Observe(duration.Seconds())
}
