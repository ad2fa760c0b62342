package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instruments for the scanning pipeline. Registered at import
// time on the default registry; cmd/server exposes them when configured.
var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Flight-search provider calls by outcome",
	}, []string{"outcome"})

	ProviderCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "globegenius",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Flight-search provider call latency",
		Buckets:   prometheus.DefBuckets,
	})

	QuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "globegenius",
		Subsystem: "quota",
		Name:      "remaining_calls",
		Help:      "Remaining monthly provider call budget",
	})

	RouteScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "scan",
		Name:      "routes_total",
		Help:      "Route scans by outcome",
	}, []string{"outcome"})

	ObservationsStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "scan",
		Name:      "observations_total",
		Help:      "Price observations persisted",
	})

	AnomaliesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "detection",
		Name:      "anomalies_total",
		Help:      "Anomalies persisted by the detection engine",
	})

	ScorerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "detection",
		Name:      "scorer_fallbacks_total",
		Help:      "Detections scored by the statistical fallback because the ML service was unavailable",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globegenius",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Background jobs by category and result",
	}, []string{"category", "result"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "globegenius",
		Subsystem: "jobs",
		Name:      "queue_depth",
		Help:      "Pending jobs per category queue",
	}, []string{"category"})
)
