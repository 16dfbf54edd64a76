// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zone

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/zonekeeper/internal/geo"
)

// RegionKind distinguishes the two kinds of monitorable region. Platforms cap
// each kind separately.
type RegionKind int

const (
	// KindCircular is a geographic circle.
	KindCircular RegionKind = iota
	// KindBeacon is a beacon proximity region.
	KindBeacon
)

func (k RegionKind) String() string {
	switch k {
	case KindBeacon:
		return "beacon"
	case KindCircular:
		return "circular"
	default:
		return "unknown"
	}
}

// Region is one platform-monitorable geofence.
type Region struct {
	Kind       RegionKind `json:"kind"`
	Identifier string     `json:"identifier"`

	// Circular regions.
	Center geo.Coordinate `json:"center"`
	Radius float64        `json:"radius,omitempty"`

	// Beacon regions.
	UUID  uuid.UUID `json:"uuid,omitempty"`
	Major *uint16   `json:"major,omitempty"`
	Minor *uint16   `json:"minor,omitempty"`

	NotifyOnEntry bool `json:"notify_on_entry"`
	NotifyOnExit  bool `json:"notify_on_exit"`
}

// NewCircularRegion creates a circular region that notifies on entry and exit.
func NewCircularRegion(center geo.Coordinate, radius float64, identifier string) Region {
	return Region{
		Kind:          KindCircular,
		Identifier:    identifier,
		Center:        center,
		Radius:        radius,
		NotifyOnEntry: true,
		NotifyOnExit:  true,
	}
}

// NewBeaconRegion creates a beacon region. minor is ignored unless major is set.
func NewBeaconRegion(proximity uuid.UUID, major, minor *uint16, identifier string) Region {
	r := Region{
		Kind:          KindBeacon,
		Identifier:    identifier,
		UUID:          proximity,
		NotifyOnEntry: true,
		NotifyOnExit:  true,
	}
	if major != nil {
		v := *major
		r.Major = &v
		if minor != nil {
			m := *minor
			r.Minor = &m
		}
	}
	return r
}

// RegionKey is a comparable identity for a Region, usable as a map key.
type RegionKey struct {
	Kind       RegionKind
	Identifier string
	Latitude   float64
	Longitude  float64
	Radius     float64
	UUID       uuid.UUID
	Major      int32
	Minor      int32
}

// Key returns the region's identity. Beacon regions are identified by
// uuid, major and minor alone. Circular regions by center, radius and
// identifier. Notification flags never participate.
func (r Region) Key() RegionKey {
	if r.Kind == KindBeacon {
		return RegionKey{
			Kind:  KindBeacon,
			UUID:  r.UUID,
			Major: optionalKey(r.Major),
			Minor: optionalKey(r.Minor),
		}
	}
	return RegionKey{
		Kind:       KindCircular,
		Identifier: r.Identifier,
		Latitude:   r.Center.Latitude,
		Longitude:  r.Center.Longitude,
		Radius:     r.Radius,
	}
}

func optionalKey(v *uint16) int32 {
	if v == nil {
		return -1
	}
	return int32(*v)
}

// Equal compares identity geometry only.
func (r Region) Equal(other Region) bool {
	return r.Key() == other.Key()
}

// ZoneKey returns the key of the zone this region was generated for.
func (r Region) ZoneKey() string {
	base, _, _ := SplitIdentifier(r.Identifier)
	return base
}

// DistanceWithAccuracy returns how far outside the region the fix is once its
// accuracy is taken into account. Zero or negative means the region may
// contain the fix.
func (r Region) DistanceWithAccuracy(loc geo.Location) float64 {
	return r.Center.DistanceTo(loc.Coordinate) - r.Radius - loc.HorizontalAccuracy
}

// ContainsWithAccuracy reports whether the fix, widened by its accuracy,
// reaches into the region. Beacon regions contain nothing geographically.
func (r Region) ContainsWithAccuracy(loc geo.Location) bool {
	if r.Kind != KindCircular {
		return false
	}
	return r.DistanceWithAccuracy(loc) <= 0
}

func (r Region) String() string {
	if r.Kind == KindBeacon {
		var b strings.Builder
		fmt.Fprintf(&b, "Beacon(%s) %s", r.Identifier, r.UUID)
		if r.Major != nil {
			fmt.Fprintf(&b, " major %d", *r.Major)
		}
		if r.Minor != nil {
			fmt.Fprintf(&b, " minor %d", *r.Minor)
		}
		return b.String()
	}
	return fmt.Sprintf("Circle(%s) %s radius %.1f", r.Identifier, r.Center, r.Radius)
}

// ContainsInRegions reports whether every region contains the fix.
// It returns false for an empty set.
func ContainsInRegions(regions []Region, loc geo.Location) bool {
	if len(regions) == 0 {
		return false
	}
	for _, r := range regions {
		if !r.ContainsWithAccuracy(loc) {
			return false
		}
	}
	return true
}

// SplitIdentifier parses a region identifier. For "key@120" it returns
// ("key", "120", true); identifiers without a suffix return (id, "", false).
func SplitIdentifier(identifier string) (base, suffix string, ok bool) {
	idx := strings.LastIndex(identifier, "@")
	if idx < 0 {
		return identifier, "", false
	}
	return identifier[:idx], identifier[idx+1:], true
}

// SplitRegionIdentifier formats the identifier of a split sub-region.
func SplitRegionIdentifier(key string, bearing float64) string {
	return fmt.Sprintf("%s@%03.0f", key, bearing)
}
