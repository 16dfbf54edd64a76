// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package regionfilter decides which zones get real platform monitoring when
// there are more candidate regions than the platform allows.
//
// Each region kind has its own capacity. When a kind fits, every candidate
// is kept. Otherwise zones are ranked (home first, then nearest to the
// reference point) and taken greedily until the capacity is used up. A
// split home zone that does not fit keeps the first of its regions up to the
// limit; any other zone is kept whole or not at all. The
// filter is a pure function of its inputs, so repeated calls never thrash
// the platform's monitored set.
package regionfilter

import (
	"sort"

	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// Limits caps the number of monitored regions per kind.
type Limits struct {
	Beacon   int `koanf:"beacon" validate:"gte=0"`
	Circular int `koanf:"circular" validate:"gte=0"`
}

// DefaultLimits reflects the platform ceiling of 20 monitored regions per kind.
func DefaultLimits() Limits {
	return Limits{Beacon: 20, Circular: 20}
}

func (l Limits) forKind(kind zone.RegionKind) int {
	if kind == zone.KindBeacon {
		return l.Beacon
	}
	return l.Circular
}

// Filter selects regions within Limits.
type Filter struct {
	limits Limits
}

// New creates a Filter.
func New(limits Limits) *Filter {
	return &Filter{limits: limits}
}

// Limits returns the configured limits.
func (f *Filter) Limits() Limits {
	return f.limits
}

type candidate struct {
	zone      *zone.Zone
	regions   []zone.Region
	monitored bool
	rank      float64
}

// Regions returns the regions to monitor for zones. current is the set the
// platform monitors right now and only breaks ties. lastLocation may be nil.
func (f *Filter) Regions(zones []*zone.Zone, current []zone.Region, lastLocation *geo.Location) []zone.Region {
	monitored := make(map[zone.RegionKey]struct{}, len(current))
	for _, r := range current {
		monitored[r.Key()] = struct{}{}
	}

	byKind := map[zone.RegionKind][]candidate{}
	counts := map[zone.RegionKind]int{}
	for _, z := range zones {
		regions := zone.RegionsForMonitoring(z)
		kind := regions[0].Kind

		c := candidate{zone: z, regions: regions}
		for _, r := range regions {
			if _, ok := monitored[r.Key()]; ok {
				c.monitored = true
				break
			}
		}
		byKind[kind] = append(byKind[kind], c)
		counts[kind] += len(regions)
	}

	reference, hasReference := referencePoint(zones, lastLocation)

	var out []zone.Region
	for _, kind := range []zone.RegionKind{zone.KindBeacon, zone.KindCircular} {
		candidates := byKind[kind]
		limit := f.limits.forKind(kind)

		if counts[kind] <= limit {
			for _, c := range candidates {
				out = append(out, c.regions...)
			}
			continue
		}

		rank(candidates, reference, hasReference)

		remaining := limit
		for _, c := range candidates {
			regions := c.regions
			if len(regions) > remaining {
				if !c.zone.IsHome() {
					continue
				}
				// home is ranked first and keeps as many of its split
				// regions as the limit allows
				regions = regions[:remaining]
			}
			out = append(out, regions...)
			remaining -= len(regions)
			if remaining == 0 {
				break
			}
		}
	}
	return out
}

// referencePoint is the last known location, or the home zone center when
// nothing better is known.
func referencePoint(zones []*zone.Zone, lastLocation *geo.Location) (geo.Coordinate, bool) {
	if lastLocation != nil {
		return lastLocation.Coordinate, true
	}
	for _, z := range zones {
		if z.IsHome() {
			return z.Center(), true
		}
	}
	return geo.Coordinate{}, false
}

// rank orders candidates home first, then by distance from the reference
// point, or by radius when there is no reference point. Equal ranks prefer
// zones that are already monitored, then the zone key.
func rank(candidates []candidate, reference geo.Coordinate, hasReference bool) {
	for i := range candidates {
		if hasReference {
			candidates[i].rank = reference.DistanceTo(candidates[i].zone.Center())
		} else {
			candidates[i].rank = candidates[i].zone.Radius
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.zone.IsHome() != b.zone.IsHome() {
			return a.zone.IsHome()
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.monitored != b.monitored {
			return a.monitored
		}
		return a.zone.Key() < b.zone.Key()
	})
}
