// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/zonekeeper/internal/collector"
	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/processor"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

func TestPipelineReportsRegionEntry(t *testing.T) {
	ctx := context.Background()

	store, err := zonestore.Open(zonestore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("zonestore.Open() error = %v", err)
	}
	defer store.Close()

	events := eventlog.New(store.DB(), eventlog.Config{})
	defer events.Close()

	home := &zone.Zone{
		ServerID:        "server",
		EntityID:        zone.HomeEntityID,
		Latitude:        37.1234,
		Longitude:       -122.4567,
		Radius:          200,
		TrackingEnabled: true,
	}
	if err := store.Put(ctx, home); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	outside := home.Center().Moving(1000, 0)
	sim := platform.New(platform.Config{
		MaxRegions:         20,
		SSID:               "home_wifi",
		Located:            true,
		Latitude:           outside.Latitude,
		Longitude:          outside.Longitude,
		Accuracy:           5,
		ReportInitialState: true,
	})
	dry := reporter.NewDryRun(reporter.Config{DeviceID: "device"})
	proc := processor.New(processor.DefaultConfig(), store, dry, sim, sim)

	m, err := New(ctx, Dependencies{
		Zones:     store,
		Platform:  sim,
		Collector: collector.New(store),
		Processor: proc,
		Filter:    regionfilter.New(regionfilter.DefaultLimits()),
		Firer:     dry,
		Events:    events,
	}, LocationSources{Zone: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	m.Wait()
	if got := len(dry.Requests()); got != 0 {
		t.Fatalf("initial state should be suppressed, got %d requests", got)
	}

	inside := home.Center().Moving(20, 90)
	fix := geo.NewLocation(inside.Latitude, inside.Longitude, time.Now())
	fix.HorizontalAccuracy = 5
	sim.UpdateLocations([]geo.Location{fix})
	m.Wait()

	requests := dry.Requests()
	var fired, submitted int
	for _, r := range requests {
		switch r.Type {
		case reporter.TypeFireEvent:
			fired++
			fe, ok := r.Data.(reporter.FireEvent)
			if !ok || fe.EventType != reporter.EventZoneEntered {
				t.Errorf("fire_event data = %+v, want %s", r.Data, reporter.EventZoneEntered)
			}
		case reporter.TypeUpdateLocation:
			submitted++
		}
	}
	if fired != 1 || submitted != 1 {
		t.Fatalf("requests = %+v, want one fire_event and one update_location", requests)
	}

	stored, err := store.Get(ctx, home.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.InRegion {
		t.Error("zone membership should be inside after the entry")
	}

	updated, err := events.List(ctx, eventlog.Query{Search: "Updated location"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(updated) != 1 || updated[0].Payload["start_ssid"] != "home_wifi" {
		t.Errorf("Updated location events = %+v", updated)
	}
}

func TestPipelineKeepsCallbackOrder(t *testing.T) {
	ctx := context.Background()

	store, err := zonestore.Open(zonestore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("zonestore.Open() error = %v", err)
	}
	defer store.Close()

	events := eventlog.New(store.DB(), eventlog.Config{})
	defer events.Close()

	office := &zone.Zone{
		ServerID:        "server",
		EntityID:        "zone.office",
		Latitude:        37.2,
		Longitude:       -122.1,
		Radius:          150,
		TrackingEnabled: true,
		Beacon:          &zone.BeaconIdentity{UUID: "8bdc6b4a-5b39-4c6e-9d0f-6a2a0b1e7c11"},
	}
	if err := store.Put(ctx, office); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// The initial state of a beacon region is unknown and is consumed by the
	// ignore-next-state registered when monitoring starts.
	sim := platform.New(platform.Config{MaxRegions: 20, ReportInitialState: true})
	dry := reporter.NewDryRun(reporter.Config{DeviceID: "device"})
	proc := processor.New(processor.DefaultConfig(), store, dry, sim, sim)

	m, err := New(ctx, Dependencies{
		Zones:     store,
		Platform:  sim,
		Collector: collector.New(store),
		Processor: proc,
		Filter:    regionfilter.New(regionfilter.DefaultLimits()),
		Firer:     dry,
		Events:    events,
	}, LocationSources{Zone: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()
	m.Wait()

	for round := 0; round < 20; round++ {
		if err := sim.DetermineState(office.Key(), event.StateInside); err != nil {
			t.Fatalf("DetermineState(inside) error = %v", err)
		}
		if err := sim.DetermineState(office.Key(), event.StateOutside); err != nil {
			t.Fatalf("DetermineState(outside) error = %v", err)
		}
		m.Wait()

		stored, err := store.Get(ctx, office.Key())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.InRegion {
			t.Fatalf("round %d: enter then exit left the zone inside", round)
		}
	}

	var submitted int
	for _, r := range dry.Requests() {
		if r.Type == reporter.TypeUpdateLocation {
			submitted++
		}
	}
	if submitted != 40 {
		t.Errorf("update_location requests = %d, want 40 (every enter and every exit)", submitted)
	}
}
