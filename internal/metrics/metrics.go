// Package metrics provides Prometheus metrics for the browser core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Navigation results.
const (
	NavApplied = "applied"
	NavStale   = "stale"
	NavFailed  = "failed"
)

// Mutation results.
const (
	MutationCommitted          = "committed"
	MutationRolledBack         = "rolled_back"
	MutationRejectedBusy       = "rejected_busy"
	MutationRejectedValidation = "rejected_validation"
)

// Preview results.
const (
	PreviewLoaded    = "loaded"
	PreviewError     = "error"
	PreviewDiscarded = "discarded"
)

var (
	navigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_navigations_total",
			Help: "Listing fetches by outcome",
		},
		[]string{"result"},
	)

	listDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelf_list_duration_seconds",
			Help:    "Listing fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_mutations_total",
			Help: "Mutating operations by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	pendingOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelf_pending_operations",
			Help: "Number of in-flight mutating operations",
		},
	)

	previewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_previews_total",
			Help: "Preview loads by outcome",
		},
		[]string{"result"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_notifications_total",
			Help: "Notifications pushed by kind",
		},
		[]string{"kind"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordNavigation records the outcome of one listing fetch.
func RecordNavigation(result string, duration time.Duration) {
	navigationsTotal.WithLabelValues(result).Inc()
	if result != NavStale {
		listDuration.Observe(duration.Seconds())
	}
}

// RecordMutation records the outcome of a mutating operation.
func RecordMutation(kind, result string) {
	mutationsTotal.WithLabelValues(kind, result).Inc()
}

// SetPendingOperations sets the number of in-flight operations.
func SetPendingOperations(count int) {
	pendingOperations.Set(float64(count))
}

// RecordPreview records the outcome of a preview load.
func RecordPreview(result string) {
	previewsTotal.WithLabelValues(result).Inc()
}

// RecordNotification records a pushed notification.
func RecordNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}
