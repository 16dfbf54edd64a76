// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zone

// MinimumRadius is the smallest circle platforms reliably monitor, in meters.
const MinimumRadius = 100.0

// splitBearings are the bearings of the sub-region centers of a split zone.
var splitBearings = [...]float64{0, 120, 240}

// CircularRegion returns the zone's true geometry with the zone key as identifier.
func CircularRegion(z *Zone) Region {
	return NewCircularRegion(z.Center(), z.Radius, z.Key())
}

// CircularRegionsForMonitoring returns the circular regions for the zone,
// ignoring any beacon identity.
func CircularRegionsForMonitoring(z *Zone) []Region {
	if z.Radius >= MinimumRadius {
		return []Region{CircularRegion(z)}
	}

	center := z.Center()
	offset := MinimumRadius - z.Radius
	key := z.Key()

	regions := make([]Region, 0, len(splitBearings))
	for _, bearing := range splitBearings {
		regions = append(regions, NewCircularRegion(
			center.Moving(offset, bearing),
			MinimumRadius,
			SplitRegionIdentifier(key, bearing),
		))
	}
	return regions
}

// RegionsForMonitoring returns the regions the platform should monitor for z.
// It always returns at least one region. A beacon with an unparsable UUID is
// skipped in favour of circular regions; callers report it via
// [Zone.BeaconError].
func RegionsForMonitoring(z *Zone) []Region {
	if z.Beacon != nil {
		if proximity, err := z.Beacon.Parse(); err == nil {
			return []Region{NewBeaconRegion(proximity, z.Beacon.Major, z.Beacon.Minor, z.Key())}
		}
	}
	return CircularRegionsForMonitoring(z)
}
