// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package geo provides the coordinate and location value types shared by the
// geofencing engine, together with the great-circle math used for region
// geometry and distance ranking.
//
// Distances are in meters and angles in degrees. Location fields follow the
// convention of mobile location APIs: a negative accuracy, speed or course
// means the value is unknown.
package geo
