// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package reporter

import (
	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// Webhook request types.
const (
	TypeUpdateLocation = "update_location"
	TypeFireEvent      = "fire_event"
)

// Zone state event types.
const (
	EventZoneEntered = "ios.zone_entered"
	EventZoneExited  = "ios.zone_exited"
)

// Request is the webhook envelope.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// UpdateLocation is the data of an update_location request. Absent fields
// are omitted from the JSON.
type UpdateLocation struct {
	GPS              []float64 `json:"gps,omitempty"`
	GPSAccuracy      *float64  `json:"gps_accuracy,omitempty"`
	LocationName     string    `json:"location_name,omitempty"`
	Speed            *float64  `json:"speed,omitempty"`
	Altitude         *float64  `json:"altitude,omitempty"`
	Course           *float64  `json:"course,omitempty"`
	VerticalAccuracy *float64  `json:"vertical_accuracy,omitempty"`
}

// FireEvent is the data of a fire_event request.
type FireEvent struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
}

func float(v float64) *float64 { return &v }

// NewUpdateLocation builds the location update for a transition.
//
// A beacon enter reports the zone itself, since the device position is not
// what matters: the zone center and radius, named after the zone unless it
// is passive. A beacon exit carries no location at all. Everything else
// reports the fix.
func NewUpdateLocation(trigger event.Trigger, loc *geo.Location, z *zone.Zone) UpdateLocation {
	var u UpdateLocation

	switch trigger {
	case event.TriggerBeaconRegionEnter:
		if z == nil {
			return u
		}
		u.GPS = []float64{z.Latitude, z.Longitude}
		u.GPSAccuracy = float(z.Radius)
		if !z.Passive {
			u.LocationName = locationName(z)
		}
		return u

	case event.TriggerBeaconRegionExit:
		return u
	}

	if loc == nil {
		return u
	}

	u.GPS = []float64{loc.Latitude, loc.Longitude}
	u.GPSAccuracy = float(loc.HorizontalAccuracy)
	if loc.HasSpeed() {
		u.Speed = float(loc.Speed)
	}
	if loc.HasAltitude() {
		u.Altitude = float(loc.Altitude)
		u.VerticalAccuracy = float(loc.VerticalAccuracy)
	}
	if loc.HasCourse() {
		u.Course = float(loc.Course)
	}
	return u
}

// locationName is the presence state the server shows for z.
func locationName(z *zone.Zone) string {
	if z.IsHome() {
		return "home"
	}
	return z.Name()
}

// ZoneStateEvent builds the event fired when a zone's region reports a state.
// The split suffix of a sub-region identifier is passed along as
// multi_region_zone_id.
func ZoneStateEvent(region zone.Region, state event.RegionState, z *zone.Zone) FireEvent {
	data := map[string]any{
		"zone": z.EntityID,
	}
	if _, suffix, ok := zone.SplitIdentifier(region.Identifier); ok && suffix != "" {
		data["multi_region_zone_id"] = suffix
	}

	eventType := EventZoneExited
	if state == event.StateInside {
		eventType = EventZoneEntered
	}
	return FireEvent{EventType: eventType, EventData: data}
}
