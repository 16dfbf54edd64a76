// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean earth radius used by every calculation in this package.
const EarthRadiusMeters = 6371000.0

// CoordinateEpsilon is the tolerance used when comparing coordinates.
// Roughly 1 cm at the equator.
const CoordinateEpsilon = 1e-7

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate creates a coordinate.
func NewCoordinate(latitude, longitude float64) Coordinate {
	return Coordinate{Latitude: latitude, Longitude: longitude}
}

// IsValid reports whether the coordinate lies within the valid degree ranges.
func (c Coordinate) IsValid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180 &&
		!math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude)
}

// Equal compares two coordinates within CoordinateEpsilon.
func (c Coordinate) Equal(other Coordinate) bool {
	return math.Abs(c.Latitude-other.Latitude) < CoordinateEpsilon &&
		math.Abs(c.Longitude-other.Longitude) < CoordinateEpsilon
}

// DistanceTo returns the haversine distance to other in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	lat1 := toRadians(c.Latitude)
	lat2 := toRadians(other.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(other.Longitude - c.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Moving returns the destination reached by travelling distance meters from c
// along the initial bearing (degrees clockwise from north).
//
//	sin φ2 = sin φ1 ⋅ cos δ + cos φ1 ⋅ sin δ ⋅ cos θ
//	tan Δλ = sin θ ⋅ sin δ ⋅ cos φ1 / (cos δ − sin φ1 ⋅ sin φ2)
func (c Coordinate) Moving(distance, bearing float64) Coordinate {
	theta := toRadians(bearing)
	delta := distance / EarthRadiusMeters
	phi1 := toRadians(c.Latitude)
	lambda1 := toRadians(c.Longitude)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	return Coordinate{
		Latitude:  toDegrees(phi2),
		Longitude: toDegrees(lambda2),
	}
}

// String formats the coordinate with six decimals (about 10 cm).
func (c Coordinate) String() string {
	return fmt.Sprintf("<%+.6f,%+.6f>", c.Latitude, c.Longitude)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func toDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
