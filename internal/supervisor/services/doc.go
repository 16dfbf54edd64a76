// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package services adapts ZoneKeeper components to suture.Service.
//
// HTTPServerService wraps the admin API's *http.Server and PruneService
// applies event log retention on an interval. The zones file watcher
// implements suture.Service itself and needs no wrapper.
package services
