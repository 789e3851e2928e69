package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	anchorSessionsTotal *prometheus.CounterVec
	anchorLinesTotal    *prometheus.CounterVec
	anchorPassSeconds   prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used for anchoring observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		anchorSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchor_sessions_total",
			Help: "Total number of rating sessions processed per pass outcome.",
		}, []string{"outcome"})

		anchorLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchor_lines_total",
			Help: "Total number of skill line submissions per result.",
		}, []string{"result"})

		anchorPassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchor_pass_duration_seconds",
			Help:    "Wall-clock duration of a full anchoring pass.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		})

		prometheus.MustRegister(anchorSessionsTotal, anchorLinesTotal, anchorPassSeconds)
	})
}

// AnchorSessions exposes the counter for processed sessions.
func AnchorSessions() *prometheus.CounterVec {
	RegisterMetrics()
	return anchorSessionsTotal
}

// AnchorLines exposes the counter for skill line submissions.
func AnchorLines() *prometheus.CounterVec {
	RegisterMetrics()
	return anchorLinesTotal
}

// AnchorPassDuration exposes the pass duration histogram.
func AnchorPassDuration() prometheus.Histogram {
	RegisterMetrics()
	return anchorPassSeconds
}
