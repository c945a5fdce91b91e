// Package metrics provides Prometheus metrics for Chronicle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote API metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_api_requests_total",
			Help: "Total number of requests sent to the history API",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronicle_api_request_duration_seconds",
			Help:    "History API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Coalescer metrics
	queueSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_queue_superseded_total",
			Help: "Results dropped because a newer request was issued",
		},
	)

	// Cache metrics
	itemsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_items_merged_total",
			Help: "Items merged into the item cache",
		},
	)

	itemsCached = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronicle_items_cached",
			Help: "Items currently cached per history",
		},
		[]string{"history_id"},
	)

	// Polling metrics
	pollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_poll_cycles_total",
			Help: "History refresh cycles by outcome",
		},
		[]string{"outcome"},
	)
)

// Poll outcomes
const (
	PollRescheduled = "rescheduled"
	PollReady       = "ready"
	PollError       = "error"
)

// RecordAPIRequest records one request to the history API.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSuperseded records a dropped coalescer result.
func RecordSuperseded() {
	queueSupersededTotal.Inc()
}

// RecordMerge records a merged page and the resulting cache size.
func RecordMerge(historyID string, merged, cached int) {
	itemsMergedTotal.Add(float64(merged))
	itemsCached.WithLabelValues(historyID).Set(float64(cached))
}

// ResetCached clears the per-history cache gauges.
func ResetCached() {
	itemsCached.Reset()
}

// RecordPollCycle records the outcome of a refresh cycle.
func RecordPollCycle(outcome string) {
	pollCyclesTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
