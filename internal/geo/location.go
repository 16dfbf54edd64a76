// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package geo

import (
	"fmt"
	"time"
)

// Location is a single position fix.
type Location struct {
	Coordinate

	// Altitude in meters. Only meaningful when VerticalAccuracy > 0.
	Altitude float64 `json:"altitude"`

	// HorizontalAccuracy is the radius of uncertainty in meters.
	HorizontalAccuracy float64 `json:"horizontal_accuracy"`

	// VerticalAccuracy in meters, negative when altitude is unknown.
	VerticalAccuracy float64 `json:"vertical_accuracy"`

	// Course in degrees from north, negative when unknown.
	Course float64 `json:"course"`

	// Speed in meters per second, negative when unknown.
	Speed float64 `json:"speed"`

	Timestamp time.Time `json:"timestamp"`
}

// NewLocation creates a fix with only a position and timestamp.
// Altitude, course and speed are marked unknown.
func NewLocation(latitude, longitude float64, timestamp time.Time) Location {
	return Location{
		Coordinate:       NewCoordinate(latitude, longitude),
		VerticalAccuracy: -1,
		Course:           -1,
		Speed:            -1,
		Timestamp:        timestamp,
	}
}

// Age returns how old the fix is relative to now.
func (l Location) Age(now time.Time) time.Duration {
	return now.Sub(l.Timestamp)
}

// HasAltitude reports whether Altitude carries a measured value.
func (l Location) HasAltitude() bool {
	return l.VerticalAccuracy > 0
}

// HasCourse reports whether Course carries a measured value.
func (l Location) HasCourse() bool {
	return l.Course >= 0
}

// HasSpeed reports whether Speed carries a measured value.
func (l Location) HasSpeed() bool {
	return l.Speed >= 0
}

// FuzzingAccuracy returns a copy whose horizontal accuracy is widened by
// amount plus one meter, so a boundary point lands unambiguously on the
// intended side.
func (l Location) FuzzingAccuracy(amount float64) Location {
	out := l
	out.HorizontalAccuracy = l.HorizontalAccuracy + amount + 1
	return out
}

func (l Location) String() string {
	return fmt.Sprintf("%s +/- %.2fm @ %s", l.Coordinate, l.HorizontalAccuracy, l.Timestamp.Format(time.RFC3339))
}
