// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

/*
Package metrics provides Prometheus metrics for the geofencing engine and the
services around it.

# Metrics Endpoint

Metrics are exposed by the admin API at /metrics in Prometheus text format:

	curl http://localhost:8765/metrics

# Available Metrics

Engine:
  - zonekeeper_events_collected_total: platform events turned into engine events
    Labels: kind (region, location_change)
  - zonekeeper_events_processed_total: processor outcomes
    Labels: trigger, outcome (submitted, noop, ignored, failed)
  - zonekeeper_events_ignored_total: ignored events
    Labels: reason
  - zonekeeper_one_shot_duration_seconds: one-shot fix latency (histogram)
    Labels: result (ok, error)
  - zonekeeper_collector_diagnostics_total: collector diagnostics
    Labels: kind

Monitoring:
  - zonekeeper_monitored_regions: regions the platform monitors
    Labels: kind (beacon, circular)
  - zonekeeper_zones: zones known to the store
  - zonekeeper_region_syncs_total: reconciliation passes
  - zonekeeper_region_changes_total: start/stop monitoring calls
    Labels: action (start, stop)

Reporter:
  - zonekeeper_reporter_requests_total: webhook deliveries
    Labels: type (update_location, fire_event), status (ok, error, rejected)
  - zonekeeper_reporter_request_duration_seconds: webhook latency (histogram)
  - zonekeeper_reporter_circuit_state: breaker state (0 closed, 1 half-open, 2 open)
  - zonekeeper_reporter_circuit_transitions_total: breaker transitions
    Labels: from, to

Admin API:
  - zonekeeper_api_requests_total, zonekeeper_api_request_duration_seconds
    Labels: method, route, status_code

# Usage

	metrics.RecordProcessed(string(trigger), metrics.OutcomeSubmitted)
	metrics.RecordIgnored("zoneDisabled")
	metrics.SetMonitoredRegions(beacons, circles)
*/
package metrics
