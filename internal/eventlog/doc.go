// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package eventlog records client events: the human-readable history of what
// the geofencing engine did and why.
//
// Every ignored event, every submission attempt and every monitoring change
// becomes one [ClientEvent]. Events are persisted in BadgerDB under
// time-ordered keys, mirrored to zerolog, and published on a watermill
// gochannel topic so the admin API can stream them live.
//
// Retention is enforced by [Log.Prune], which drops events older than the
// configured age and then trims the log to the configured size.
package eventlog
