// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

const script = `
# arrive home
{"type":"ssid","ssid":"home_wifi"}
{"type":"locations","locations":[{"latitude":37.1,"longitude":-122.4,"accuracy":10,"speed":1.5}]}

{"type":"state","region":"zone.home","state":"inside"}
{"type":"fix","location":{"latitude":37.2,"longitude":-122.5,"age":"2m"}}
{"type":"fix","error":"denied"}
{"type":"fail"}
{"type":"wait","duration":"1ms"}
`

// recorder is a Platform that logs every call.
type recorder struct {
	calls     []string
	locations []geo.Location
	fix       *geo.Location
	stateErr  error
}

func (r *recorder) UpdateLocations(locations []geo.Location) {
	r.locations = append(r.locations, locations...)
	r.calls = append(r.calls, fmt.Sprintf("locations %d", len(locations)))
}

func (r *recorder) DetermineState(identifier string, state event.RegionState) error {
	r.calls = append(r.calls, "state "+identifier+" "+state.String())
	return r.stateErr
}

func (r *recorder) SetSSID(ssid string) {
	r.calls = append(r.calls, "ssid "+ssid)
}

func (r *recorder) SetNextFix(loc *geo.Location, err error) {
	r.fix = loc
	r.calls = append(r.calls, fmt.Sprintf("fix %t %v", loc != nil, err))
}

func (r *recorder) Fail(err error) {
	r.calls = append(r.calls, "fail "+err.Error())
}

func TestParse(t *testing.T) {
	steps, err := Parse(strings.NewReader(script))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var types []string
	for _, s := range steps {
		types = append(types, s.Type)
	}
	want := []string{StepSSID, StepLocations, StepState, StepFix, StepFix, StepFail, StepWait}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("step types mismatch (-want +got):\n%s", diff)
	}
	if steps[2].Line() != 6 {
		t.Errorf("state step line = %d, want 6", steps[2].Line())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown type", `{"type":"teleport"}`, "line 1"},
		{"unknown field", `{"type":"ssid","ssid":"x","color":"red"}`, "line 1"},
		{"state without region", `{"type":"state","state":"inside"}`, "Region"},
		{"bad state", `{"type":"state","region":"zone.home","state":"sideways"}`, "State"},
		{"locations missing", `{"type":"locations"}`, "Locations"},
		{"bad latitude", `{"type":"locations","locations":[{"latitude":91,"longitude":0}]}`, "Latitude"},
		{"bad duration", `{"type":"wait","duration":"soon"}`, "duration"},
		{"not json", `{"type":`, "line 1"},
		{"second line", "{\"type\":\"fail\"}\n{\"type\":\"wait\"}", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.script))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := Parse(strings.NewReader("# nothing\n\n")); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("Parse(comments only) error = %v, want ErrEmptyScript", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.jsonl")
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	steps, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(steps) != 7 {
		t.Errorf("Load() = %d steps, want 7", len(steps))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v", err)
	}
}

func TestPlayerRun(t *testing.T) {
	steps, err := Parse(strings.NewReader(script))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &recorder{}
	settled := 0
	player := NewPlayer(rec, func() { settled++ })
	player.now = func() time.Time { return now }

	if err := player.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"ssid home_wifi",
		"locations 1",
		"state zone.home inside",
		"fix true <nil>",
		"fix false denied",
		"fail location unavailable",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if settled != len(steps) {
		t.Errorf("settle called %d times, want %d", settled, len(steps))
	}

	loc := rec.locations[0]
	if loc.HorizontalAccuracy != 10 || loc.Speed != 1.5 || loc.HasCourse() || !loc.Timestamp.Equal(now) {
		t.Errorf("location = %+v", loc)
	}
}

func TestLocationRecordAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alt, vacc := 12.0, 3.0

	loc, err := LocationRecord{Latitude: 1, Longitude: 2, Age: "90s", Altitude: &alt, VerticalAccuracy: &vacc}.Location(now)
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if got := loc.Age(now); got != 90*time.Second {
		t.Errorf("Age() = %v, want 90s", got)
	}
	if !loc.HasAltitude() || loc.Altitude != 12 {
		t.Errorf("altitude = %v (has %t)", loc.Altitude, loc.HasAltitude())
	}

	if _, err := (LocationRecord{Age: "old"}).Location(now); err == nil {
		t.Error("Location() should reject a bad age")
	}
}

func TestPlayerStopsOnRejectedStep(t *testing.T) {
	sim := platform.New(platform.DefaultConfig())
	steps, err := Parse(strings.NewReader(`{"type":"state","region":"zone.nowhere","state":"inside"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	err = NewPlayer(sim, nil).Run(context.Background(), steps)
	if !errors.Is(err, platform.ErrNotMonitored) {
		t.Errorf("Run() error = %v, want ErrNotMonitored", err)
	}
	if !strings.Contains(err.Error(), "step 1 (line 1, state)") {
		t.Errorf("Run() error = %v, want step position", err)
	}
}

func TestPlayerDrivesSimulator(t *testing.T) {
	sim := platform.New(platform.Config{MaxRegions: 20})
	home := zone.NewCircularRegion(geo.NewCoordinate(37.1, -122.4), 100, "zone.home")
	sim.StartMonitoring(home)

	steps, err := Parse(strings.NewReader(
		"{\"type\":\"ssid\",\"ssid\":\"cafe\"}\n" +
			"{\"type\":\"locations\",\"locations\":[{\"latitude\":37.1,\"longitude\":-122.4,\"accuracy\":5}]}\n" +
			"{\"type\":\"state\",\"region\":\"zone.home\",\"state\":\"exit\"}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := NewPlayer(sim, nil).Run(context.Background(), steps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sim.CurrentSSID() != "cafe" {
		t.Errorf("CurrentSSID() = %q, want cafe", sim.CurrentSSID())
	}
	if loc := sim.Location(); loc == nil || loc.Latitude != 37.1 {
		t.Errorf("Location() = %v", loc)
	}
}

func TestPlayerHonoursContext(t *testing.T) {
	steps, err := Parse(strings.NewReader(`{"type":"wait","duration":"1h"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := NewPlayer(&recorder{}, nil).Run(ctx, steps); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
}
