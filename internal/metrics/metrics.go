// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the cache engine:
// - cache occupancy and item counts
// - transfer throughput and failures
// - eviction activity
// - queue depth and job outcomes
// - webhook traffic

var (
	// Cache occupancy
	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_cache_size_bytes",
			Help: "Total bytes currently staged under the cache root",
		},
	)

	CachedItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_cached_items",
			Help: "Number of content items currently cached",
		},
	)

	// Eviction
	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacache_evictions_total",
			Help: "Total number of evicted content items",
		},
		[]string{"trigger"}, // "space", "manual"
	)

	EvictedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediacache_evicted_bytes_total",
			Help: "Total bytes freed by eviction",
		},
	)

	// Transfers
	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediacache_transfer_duration_seconds",
			Help:    "Duration of content transfers into the cache",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	TransferErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediacache_transfer_errors_total",
			Help: "Total number of failed content transfers",
		},
	)

	// Queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_queue_depth",
			Help: "Number of jobs waiting in the in-memory queue",
		},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_active_jobs",
			Help: "Number of jobs currently pending or in flight",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacache_jobs_total",
			Help: "Total number of finished cache jobs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "already_cached"
	)

	// Sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_active_sessions",
			Help: "Number of tracked playback sessions",
		},
	)

	// Webhook ingest
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacache_webhook_events_total",
			Help: "Total number of received webhook events by type",
		},
		[]string{"event"},
	)

	// Circuit breaker guarding the external copy tool.
	// 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacache_transfer_breaker_state",
			Help: "State of the transfer circuit breaker (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTP metrics, recorded by middleware.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediacache_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveTransfer records one finished transfer attempt.
func ObserveTransfer(start time.Time, err error) {
	TransferDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		TransferErrors.Inc()
	}
}
