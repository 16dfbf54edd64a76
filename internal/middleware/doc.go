// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

/*
Package middleware provides HTTP middleware for the admin API.

  - RequestID: reuses or generates X-Request-ID and makes it the request's
    correlation ID, so handler logs and the client events they cause share it.
  - PrometheusMetrics: records request counts and latency labelled by the chi
    route pattern rather than the raw path, keeping label cardinality bounded.
  - AccessLog: one zerolog line per request.

Typical chi stack:

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
