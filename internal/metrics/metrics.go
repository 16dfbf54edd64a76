// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Processor outcomes.
const (
	OutcomeSubmitted = "submitted"
	OutcomeNoop      = "noop"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

var (
	// Engine Metrics
	EventsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_events_collected_total",
			Help: "Total number of platform callbacks turned into engine events",
		},
		[]string{"kind"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_events_processed_total",
			Help: "Total number of processed events by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	EventsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_events_ignored_total",
			Help: "Total number of ignored events by reason",
		},
		[]string{"reason"},
	)

	OneShotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zonekeeper_one_shot_duration_seconds",
			Help:    "Time taken to acquire a one-shot location fix",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"result"},
	)

	CollectorDiagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_collector_diagnostics_total",
			Help: "Total number of collector diagnostics by kind",
		},
		[]string{"kind"},
	)

	// Monitoring Metrics
	MonitoredRegions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zonekeeper_monitored_regions",
			Help: "Number of regions currently monitored by kind",
		},
		[]string{"kind"},
	)

	Zones = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zonekeeper_zones",
			Help: "Number of tracking-enabled zones considered by the last sync",
		},
	)

	RegionSyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zonekeeper_region_syncs_total",
			Help: "Total number of region reconciliation passes",
		},
	)

	RegionChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_region_changes_total",
			Help: "Total number of start and stop monitoring calls",
		},
		[]string{"action"},
	)

	// Reporter Metrics
	ReporterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_reporter_requests_total",
			Help: "Total number of webhook deliveries by type and status",
		},
		[]string{"type", "status"},
	)

	ReporterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zonekeeper_reporter_request_duration_seconds",
			Help:    "Webhook delivery latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zonekeeper_reporter_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_reporter_circuit_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zonekeeper_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// RecordCollected records an event produced by the collector.
func RecordCollected(kind string) {
	EventsCollected.WithLabelValues(kind).Inc()
}

// RecordProcessed records a processor outcome.
func RecordProcessed(trigger, outcome string) {
	EventsProcessed.WithLabelValues(trigger, outcome).Inc()
}

// RecordIgnored records an ignored event.
func RecordIgnored(reason string) {
	EventsIgnored.WithLabelValues(reason).Inc()
}

// RecordOneShot records the latency of a one-shot fix.
func RecordOneShot(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OneShotDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordDiagnostic records a collector diagnostic.
func RecordDiagnostic(kind string) {
	CollectorDiagnostics.WithLabelValues(kind).Inc()
}

// RecordSync records a reconciliation pass and its outcome.
func RecordSync(zones, beacons, circles, started, stopped int) {
	RegionSyncs.Inc()
	Zones.Set(float64(zones))
	MonitoredRegions.WithLabelValues("beacon").Set(float64(beacons))
	MonitoredRegions.WithLabelValues("circular").Set(float64(circles))
	if started > 0 {
		RegionChanges.WithLabelValues("start").Add(float64(started))
	}
	if stopped > 0 {
		RegionChanges.WithLabelValues("stop").Add(float64(stopped))
	}
}

// RecordReporterRequest records a webhook delivery.
func RecordReporterRequest(payloadType, status string, duration time.Duration) {
	ReporterRequests.WithLabelValues(payloadType, status).Inc()
	if duration > 0 {
		ReporterDuration.WithLabelValues(payloadType).Observe(duration.Seconds())
	}
}

// RecordCircuitBreakerTransition records a breaker state change. States are
// 0 closed, 1 half-open, 2 open.
func RecordCircuitBreakerTransition(name, from, to string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
