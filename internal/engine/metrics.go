package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry for every engine metric. Served on /metrics.
var MetricsRegistry = prometheus.NewRegistry()

var (
	generationRequests = promauto.With(MetricsRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyomatic_generation_requests_total",
			Help: "Total number of generation calls, partitioned by operation and status.",
		},
		[]string{"operation", "status"},
	)
	generationDuration = promauto.With(MetricsRegistry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyomatic_generation_duration_seconds",
			Help:    "Latency of generation calls.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"operation"},
	)
	fallbackChoices = promauto.With(MetricsRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "storyomatic_fallback_choices_total",
			Help: "Total number of segment responses whose choices were replaced by the fallback pair.",
		},
	)
	busyRejections = promauto.With(MetricsRegistry).NewCounter(
		prometheus.CounterOpts{
			Name: "storyomatic_busy_rejections_total",
			Help: "Total number of story operations rejected because a generation was in flight.",
		},
	)
)

func init() {
	MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// observeGeneration records one finished generation call.
func observeGeneration(operation string, started time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case isMalformed(err):
		status = "malformed"
	default:
		status = "error"
	}
	generationRequests.WithLabelValues(operation, status).Inc()
	generationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
