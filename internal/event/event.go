// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package event defines the typed events the collector produces from platform
// callbacks and the diagnostics the pipeline reports along the way.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// RegionState is the state the platform reports for a monitored region.
type RegionState int

const (
	StateUnknown RegionState = iota
	StateInside
	StateOutside
)

func (s RegionState) String() string {
	switch s {
	case StateInside:
		return "inside"
	case StateOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// ParseRegionState parses "inside", "outside" or "unknown".
func ParseRegionState(s string) (RegionState, error) {
	switch strings.ToLower(s) {
	case "inside", "enter":
		return StateInside, nil
	case "outside", "exit":
		return StateOutside, nil
	case "unknown", "":
		return StateUnknown, nil
	default:
		return StateUnknown, fmt.Errorf("unknown region state %q", s)
	}
}

// Kind distinguishes region events from location change events.
type Kind int

const (
	KindRegion Kind = iota
	KindLocationChange
)

// Trigger classifies what caused a location report. The values are the
// strings the remote service displays.
type Trigger string

const (
	TriggerBeaconRegionEnter         Trigger = "iBeacon Region Entered"
	TriggerBeaconRegionExit          Trigger = "iBeacon Region Exited"
	TriggerGPSRegionEnter            Trigger = "Geographic Region Entered"
	TriggerGPSRegionExit             Trigger = "Geographic Region Exited"
	TriggerSignificantLocationUpdate Trigger = "Significant Location Update"
	TriggerManual                    Trigger = "Manual"
	TriggerUnknown                   Trigger = "Unknown"
)

// OneShotTimeout returns how long a fresh fix may take for this trigger,
// capped at maximum when maximum is positive.
func (t Trigger) OneShotTimeout(maximum time.Duration) time.Duration {
	var timeout time.Duration
	switch t {
	case TriggerGPSRegionEnter, TriggerGPSRegionExit:
		timeout = 20 * time.Second
	case TriggerSignificantLocationUpdate:
		timeout = 15 * time.Second
	case TriggerBeaconRegionEnter, TriggerBeaconRegionExit:
		timeout = 10 * time.Second
	default:
		timeout = 30 * time.Second
	}
	if maximum > 0 && maximum < timeout {
		return maximum
	}
	return timeout
}

// Event is one platform observation after the collector has resolved its zone.
type Event struct {
	Kind      Kind
	Region    zone.Region
	State     RegionState
	Locations []geo.Location

	// Zone is the zone the region belongs to, or nil when it could not be resolved.
	Zone *zone.Zone
}

// NewRegionEvent creates a region state event.
func NewRegionEvent(region zone.Region, state RegionState, z *zone.Zone) Event {
	return Event{Kind: KindRegion, Region: region, State: state, Zone: z}
}

// NewLocationChangeEvent creates a location change event. Order is preserved.
func NewLocationChangeEvent(locations []geo.Location) Event {
	return Event{Kind: KindLocationChange, Locations: locations}
}

// Trigger maps the event to the reporting taxonomy.
func (e Event) Trigger() Trigger {
	if e.Kind == KindLocationChange {
		return TriggerSignificantLocationUpdate
	}

	switch {
	case e.Region.Kind == zone.KindBeacon && e.State == StateInside:
		return TriggerBeaconRegionEnter
	case e.Region.Kind == zone.KindBeacon && e.State == StateOutside:
		return TriggerBeaconRegionExit
	case e.Region.Kind == zone.KindCircular && e.State == StateInside:
		return TriggerGPSRegionEnter
	case e.Region.Kind == zone.KindCircular && e.State == StateOutside:
		return TriggerGPSRegionExit
	default:
		return TriggerUnknown
	}
}

// AssociatedLocation returns the newest location of a location change, or nil.
func (e Event) AssociatedLocation() *geo.Location {
	if e.Kind != KindLocationChange || len(e.Locations) == 0 {
		return nil
	}
	loc := e.Locations[len(e.Locations)-1]
	return &loc
}

// ShouldOneShotLocation reports whether a fresh fix is needed before
// submitting. Beacon transitions are reported without one.
func (e Event) ShouldOneShotLocation() bool {
	switch e.Trigger() {
	case TriggerBeaconRegionEnter, TriggerBeaconRegionExit:
		return false
	default:
		return true
	}
}

// IsRegion reports whether this is a region event.
func (e Event) IsRegion() bool {
	return e.Kind == KindRegion
}

func (e Event) String() string {
	if e.Kind == KindLocationChange {
		parts := make([]string, 0, len(e.Locations))
		for _, l := range e.Locations {
			parts = append(parts, l.String())
		}
		return fmt.Sprintf("locationChange([%s])", strings.Join(parts, ", "))
	}

	zoneDesc := "nil"
	if e.Zone != nil {
		zoneDesc = e.Zone.Key()
	}
	return fmt.Sprintf("region(%s, %s) zone %s", e.Region, e.State, zoneDesc)
}
