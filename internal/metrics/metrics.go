// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package metrics exposes Prometheus instrumentation for the engine:
// detection throughput, signal emission and dedup rates, recompute
// durations, sweep progress, and API request counters.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection metrics
	EventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_events_observed_total",
			Help: "Total activity events fed to the detection engine",
		},
		[]string{"source"},
	)

	SignalsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_signals_emitted_total",
			Help: "Total signals appended to the signal store",
		},
		[]string{"type", "severity"},
	)

	SignalsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_signals_deduplicated_total",
			Help: "Total signal emissions suppressed by the idempotency cache",
		},
		[]string{"type"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_detector_errors_total",
			Help: "Total detector failures (swallowed, never propagated)",
		},
		[]string{"detector"},
	)

	ObserveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_observe_duration_seconds",
			Help:    "Duration of a full detection pass over one event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// Aggregation metrics
	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_recompute_duration_seconds",
			Help:    "Duration of a single-subject score recompute",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // risk, trust
	)

	RecomputeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_recompute_errors_total",
			Help: "Total recompute failures (previous record left untouched)",
		},
		[]string{"kind"},
	)

	// Scheduler metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_job_runs_total",
			Help: "Total scheduled job runs by outcome",
		},
		[]string{"job", "outcome"}, // outcome: success, deadline, error
	)

	JobSubjectsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_job_subjects_processed_total",
			Help: "Total subjects processed by sweep jobs",
		},
		[]string{"job"},
	)

	SignalsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_signals_pruned_total",
			Help: "Total signals removed by the retention job",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSignal records one emitted signal.
func RecordSignal(signalType string, severity int) {
	SignalsEmitted.WithLabelValues(signalType, strconv.Itoa(severity)).Inc()
}
