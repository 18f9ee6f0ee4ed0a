package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts host calls by backend, operation and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_media_operations_total",
			Help: "Media host operations by backend, operation and result",
		},
		[]string{"backend", "operation", "result"},
	)

	// UploadBytes tracks the size of stored objects.
	UploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookworm_media_upload_bytes",
			Help:    "Size of uploaded media objects in bytes",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 6), // 16KiB .. 16MiB
		},
		[]string{"backend"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookworm_media_breaker_state",
			Help: "Media host circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

func recordOp(backend, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
}
