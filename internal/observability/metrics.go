// Package observability holds the API's Prometheus collectors and HTTP middleware.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write committed to storage.",
	})
	activityMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "persistence",
		Name:      "activity_mutations_total",
		Help:      "Number of activity writes committed, labeled by event type.",
	}, []string{"event_type"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests served, labeled by method and status code.",
	}, []string{"method", "code"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittrack",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activityMutations, httpRequests, httpDuration)
}

// RecordActivityPersisted updates the persistence watermark gauge and counts the write.
func RecordActivityPersisted(eventType string, ts time.Time) {
	activityMutations.WithLabelValues(eventType).Inc()
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}
