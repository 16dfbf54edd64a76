// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/zonekeeper/internal/config"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

const zonesYAML = `server: home
zones:
  - entity_id: zone.home
    friendly_name: Home
    latitude: 37.1
    longitude: -122.4
    radius: 150
  - entity_id: zone.office
    latitude: 37.3
    longitude: -122.0
    radius: 50
  - entity_id: zone.gym
    latitude: 37.2
    longitude: -122.2
    radius: 200
    track_ios: false
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolate keeps config loading away from the developer's files and env.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("WEBHOOK_URL", "")
	t.Setenv("ZONES_FILE", "")
}

func TestRunRegionsTable(t *testing.T) {
	var out bytes.Buffer
	opts := regionsOptions{zonesPath: writeFile(t, "zones.yaml", zonesYAML), limits: zoneLimits(20, 20)}
	if err := runRegions(&out, opts, nil); err != nil {
		t.Fatalf("runRegions() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"KIND", "home/zone.home", "home/zone.office@", "2 of 2 tracking-enabled zones monitored"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "zone.gym") {
		t.Errorf("tracking-disabled zone listed:\n%s", got)
	}
}

func TestRunRegionsJSON(t *testing.T) {
	var out bytes.Buffer
	opts := regionsOptions{zonesPath: writeFile(t, "zones.yaml", zonesYAML), limits: zoneLimits(20, 20), asJSON: true}
	if err := runRegions(&out, opts, nil); err != nil {
		t.Fatalf("runRegions() error = %v", err)
	}

	var regions []zone.Region
	if err := json.Unmarshal(out.Bytes(), &regions); err != nil {
		t.Fatalf("decode %s: %v", out.String(), err)
	}
	// The office is smaller than the minimum radius and is split in three.
	if len(regions) != 4 || countZones(regions) != 2 {
		t.Errorf("regions = %+v, want home plus three office regions", regions)
	}
}

func TestRegionsCommandFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing zones", []string{"regions"}, "zones"},
		{"lat without lon", []string{"regions", "--zones", "x.yaml", "--lat", "1"}, "--lat and --lon"},
		{"missing file", []string{"regions", "--zones", filepath.Join(os.TempDir(), "nope-zonekeeper.yaml")}, "zones file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Execute() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRunReplayDryRun(t *testing.T) {
	isolate(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Platform.Located = true
	cfg.Platform.Latitude = 37.1
	cfg.Platform.Longitude = -122.4

	opts := replayOptions{
		zonesPath: writeFile(t, "zones.yaml", zonesYAML),
		scriptPath: writeFile(t, "script.jsonl",
			`{"type":"state","region":"home/zone.home","state":"inside"}`+"\n"),
	}

	var out bytes.Buffer
	if err := runReplay(context.Background(), &out, cfg, opts); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}

	types := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var req reporter.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		types[req.Type]++
	}
	if types[reporter.TypeUpdateLocation] == 0 || types[reporter.TypeFireEvent] == 0 {
		t.Errorf("request types = %v, want update_location and fire_event", types)
	}
}

func TestRunReplayErrors(t *testing.T) {
	isolate(t)
	zones := writeFile(t, "zones.yaml", zonesYAML)

	tests := []struct {
		name string
		opts replayOptions
		want string
	}{
		{"missing script", replayOptions{zonesPath: zones, scriptPath: filepath.Join(t.TempDir(), "none.jsonl")}, "replay script"},
		{"unmonitored region", replayOptions{zonesPath: zones, scriptPath: writeFile(t, "s.jsonl", `{"type":"state","region":"home/zone.nowhere","state":"inside"}`)}, "not monitored"},
		{"webhook without url", replayOptions{zonesPath: zones, scriptPath: writeFile(t, "w.jsonl", `{"type":"fail"}`), webhook: true}, "--webhook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			if err != nil {
				t.Fatalf("config.Load() error = %v", err)
			}
			err = runReplay(context.Background(), &bytes.Buffer{}, cfg, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("runReplay() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "regions", "replay"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}

func zoneLimits(beacon, circular int) regionfilter.Limits {
	return regionfilter.Limits{Beacon: beacon, Circular: circular}
}
