// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zone

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/tomtom215/zonekeeper/internal/geo"
)

// HomeEntityID is the entity ID of the primary residence zone.
const HomeEntityID = "zone.home"

// BeaconIdentity identifies an iBeacon-style transmitter. Major and Minor are
// optional and narrow the match when set.
type BeaconIdentity struct {
	UUID  string  `json:"uuid" yaml:"uuid" validate:"required"`
	Major *uint16 `json:"major,omitempty" yaml:"major,omitempty"`
	Minor *uint16 `json:"minor,omitempty" yaml:"minor,omitempty" validate:"omitempty,excluded_without=Major"`
}

// Parse returns the proximity UUID.
func (b BeaconIdentity) Parse() (uuid.UUID, error) {
	id, err := uuid.Parse(b.UUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid beacon uuid %q: %w", b.UUID, err)
	}
	return id, nil
}

// Zone is a named area of interest on one server.
//
// All fields except InRegion are owned by whoever defines the zone. The
// engine only ever writes InRegion, and only through the zone store.
type Zone struct {
	ServerID        string          `json:"server_id" yaml:"-"`
	EntityID        string          `json:"entity_id" validate:"required,zone_entity"`
	FriendlyName    string          `json:"friendly_name,omitempty"`
	Latitude        float64         `json:"latitude" validate:"latitude"`
	Longitude       float64         `json:"longitude" validate:"longitude"`
	Radius          float64         `json:"radius" validate:"gt=0"`
	TrackingEnabled bool            `json:"tracking_enabled"`
	Beacon          *BeaconIdentity `json:"beacon,omitempty" validate:"omitempty"`
	SSIDTrigger     []string        `json:"ssid_trigger,omitempty" validate:"dive,ssid"`
	SSIDFilter      []string        `json:"ssid_filter,omitempty" validate:"dive,ssid"`
	InRegion        bool            `json:"in_region"`
	Passive         bool            `json:"passive"`
}

// Key builds the primary key for an entity on a server.
func Key(serverID, entityID string) string {
	if serverID == "" {
		return entityID
	}
	return serverID + "/" + entityID
}

// Key returns the zone's primary key.
func (z *Zone) Key() string {
	return Key(z.ServerID, z.EntityID)
}

// IsHome reports whether this is the home zone.
func (z *Zone) IsHome() bool {
	return z.EntityID == HomeEntityID
}

// Center returns the zone center.
func (z *Zone) Center() geo.Coordinate {
	return geo.NewCoordinate(z.Latitude, z.Longitude)
}

// Name returns the friendly name, or a name derived from the entity ID:
// "zone.given_name" becomes "Given Name".
func (z *Zone) Name() string {
	if z.FriendlyName != "" {
		return z.FriendlyName
	}

	name := strings.TrimPrefix(z.EntityID, "zone.")
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// FiltersSSID reports whether ssid is on the zone's deny-list.
func (z *Zone) FiltersSSID(ssid string) bool {
	if ssid == "" {
		return false
	}
	for _, s := range z.SSIDFilter {
		if s == ssid {
			return true
		}
	}
	return false
}

// BeaconError returns the reason a configured beacon cannot be monitored,
// or nil when the zone has no beacon or a valid one.
func (z *Zone) BeaconError() error {
	if z.Beacon == nil {
		return nil
	}
	_, err := z.Beacon.Parse()
	return err
}

// Clone returns a deep copy.
func (z *Zone) Clone() *Zone {
	out := *z
	if z.Beacon != nil {
		b := *z.Beacon
		if b.Major != nil {
			v := *b.Major
			b.Major = &v
		}
		if b.Minor != nil {
			v := *b.Minor
			b.Minor = &v
		}
		out.Beacon = &b
	}
	out.SSIDTrigger = append([]string(nil), z.SSIDTrigger...)
	out.SSIDFilter = append([]string(nil), z.SSIDFilter...)
	return &out
}

// SameDefinition reports whether two zones differ only in membership.
func (z *Zone) SameDefinition(other *Zone) bool {
	a, b := z, other
	return a.Key() == b.Key() &&
		a.FriendlyName == b.FriendlyName &&
		a.Latitude == b.Latitude && a.Longitude == b.Longitude && a.Radius == b.Radius &&
		a.TrackingEnabled == b.TrackingEnabled &&
		a.Passive == b.Passive &&
		beaconEqual(a.Beacon, b.Beacon) &&
		stringsEqual(a.SSIDTrigger, b.SSIDTrigger) &&
		stringsEqual(a.SSIDFilter, b.SSIDFilter)
}

func beaconEqual(a, b *BeaconIdentity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(a.UUID, b.UUID) && optionalEqual(a.Major, b.Major) && optionalEqual(a.Minor, b.Minor)
}

func optionalEqual(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
