// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package processor

import (
	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// sanitize widens the fix's horizontal accuracy so the remote service's own
// geometry agrees with the transition being reported.
//
// Two cases are corrected. An inside report for a circular region whose fix
// lies outside it is widened by the gap. A fix that touches every split
// sub-region of a small zone but misses the zone itself is widened by its
// gap to the zone. Corrections add up, plus one meter of margin.
func sanitize(loc geo.Location, e event.Event) geo.Location {
	var fuzz float64

	if e.Kind == event.KindRegion && e.State == event.StateInside &&
		e.Region.Kind == zone.KindCircular && !e.Region.ContainsWithAccuracy(loc) {
		fuzz += e.Region.DistanceWithAccuracy(loc)
	}

	if z := e.Zone; z != nil {
		zoneRegion := zone.CircularRegion(z)
		if zone.ContainsInRegions(zone.CircularRegionsForMonitoring(z), loc) &&
			!zoneRegion.ContainsWithAccuracy(loc) {
			fuzz += zoneRegion.DistanceWithAccuracy(loc)
		}
	}

	if fuzz <= 0 {
		return loc
	}
	return loc.FuzzingAccuracy(fuzz)
}
