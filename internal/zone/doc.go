// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package zone defines the Zone model and the pure geometry that turns a zone
// into the regions handed to the platform for monitoring.
//
// # Regions
//
// A zone with a beacon identity is monitored as a single beacon region.
// A circular zone of at least [MinimumRadius] meters is monitored as one
// circle at its true center and radius. Smaller zones are approximated by
// three circles of [MinimumRadius] meters whose centers sit
// (MinimumRadius - radius) meters from the true center at bearings 0, 120
// and 240 degrees. Platforms detect small circles unreliably, while the
// overlap of three larger ones still brackets the real zone.
//
// Split regions carry identifiers of the form "<key>@<degrees>", for example
// "srv/zone.work@120". [SplitIdentifier] recovers the zone key.
//
// # Identity
//
// [Zone.Key] is the primary key used by the store and by region identifiers.
// [Region.Equal] and [Region.Key] compare only identity geometry and ignore
// notification flags.
package zone
