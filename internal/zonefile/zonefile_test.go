// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zonefile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

const sample = `
server: home-assistant
zones:
  - entity_id: zone.home
    friendly_name: Home
    latitude: 37.1234
    longitude: -122.4567
    radius: 100
    ssid_trigger: [home_wifi]
  - entity_id: zone.office
    latitude: 37.2
    longitude: -122.1
    radius: 50
    track_ios: false
    passive: true
    beacon:
      uuid: E2C56DB5-DFFB-48D2-B060-D0F5A71096E0
      major: 4
    ssid_filter: [guest]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	major := uint16(4)
	want := []*zone.Zone{
		{
			ServerID:        "home-assistant",
			EntityID:        "zone.home",
			FriendlyName:    "Home",
			Latitude:        37.1234,
			Longitude:       -122.4567,
			Radius:          100,
			TrackingEnabled: true,
			SSIDTrigger:     []string{"home_wifi"},
		},
		{
			ServerID:   "home-assistant",
			EntityID:   "zone.office",
			Latitude:   37.2,
			Longitude:  -122.1,
			Radius:     50,
			Passive:    true,
			Beacon:     &zone.BeaconIdentity{UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0", Major: &major},
			SSIDFilter: []string{"guest"},
		},
	}
	if diff := cmp.Diff(want, f.ToZones()); diff != "" {
		t.Errorf("ToZones() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDefaultsServer(t *testing.T) {
	f, err := Parse(strings.NewReader("zones:\n  - {entity_id: zone.home, latitude: 1, longitude: 2, radius: 10}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.ServerID() != DefaultServer {
		t.Errorf("ServerID() = %q, want %q", f.ServerID(), DefaultServer)
	}
	if got := f.ToZones()[0].Key(); got != "default/zone.home" {
		t.Errorf("Key() = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown attribute",
			content: "zones:\n  - {entity_id: zone.home, latitude: 1, longitude: 2, radius: 10, color: red}\n",
			want:    "field color not found",
		},
		{
			name:    "invalid radius",
			content: "zones:\n  - {entity_id: zone.home, latitude: 1, longitude: 2, radius: 0}\n",
			want:    "Radius must be greater than 0",
		},
		{
			name: "duplicate entity",
			content: "zones:\n" +
				"  - {entity_id: zone.home, latitude: 1, longitude: 2, radius: 10}\n" +
				"  - {entity_id: zone.home, latitude: 3, longitude: 4, radius: 10}\n",
			want: "duplicates zones[0]",
		},
		{
			name:    "not yaml",
			content: "zones: [",
			want:    "decode zones file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.content))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Parse(empty) error = %v, want ErrEmptyFile", err)
	}
}

func openStore(t *testing.T) *zonestore.Store {
	t.Helper()
	store, err := zonestore.Open(zonestore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("zonestore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestImportReplacesServerZones(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	path := filepath.Join(t.TempDir(), "zones.yaml")

	writeFile(t, path, sample)
	changes, err := Import(ctx, store, path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("Import() changes = %d, want 2", len(changes))
	}

	if _, err := store.SwapMembership(ctx, "home-assistant/zone.home", true); err != nil {
		t.Fatalf("SwapMembership() error = %v", err)
	}

	writeFile(t, path, `
server: home-assistant
zones:
  - entity_id: zone.home
    friendly_name: Home
    latitude: 37.1234
    longitude: -122.4567
    radius: 150
`)
	changes, err = Import(ctx, store, path)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	kinds := map[string]zonestore.ChangeKind{}
	for _, c := range changes {
		kinds[c.Key] = c.Kind
	}
	want := map[string]zonestore.ChangeKind{
		"home-assistant/zone.home":   zonestore.ChangeUpdate,
		"home-assistant/zone.office": zonestore.ChangeDelete,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	home, err := store.Get(ctx, "home-assistant/zone.home")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !home.InRegion || home.Radius != 150 {
		t.Errorf("home = %+v, want radius 150 with membership kept", home)
	}
}

func TestImportKeepsZonesOnInvalidFile(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	path := filepath.Join(t.TempDir(), "zones.yaml")

	writeFile(t, path, sample)
	if _, err := Import(ctx, store, path); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	writeFile(t, path, "zones:\n  - {entity_id: nope}\n")
	if _, err := Import(ctx, store, path); err == nil {
		t.Fatal("Import() should reject an invalid file")
	}

	zones, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(zones) != 2 {
		t.Errorf("List() = %d zones, want the 2 previously imported", len(zones))
	}
}

func TestImportMissingFile(t *testing.T) {
	_, err := Import(context.Background(), openStore(t), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Import() error = %v, want not exist", err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	store := openStore(t)
	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, "zones:\n  - {entity_id: zone.home, latitude: 1, longitude: 2, radius: 10}\n")

	w := NewWatcher(path, store, 20*time.Millisecond)
	reloaded := make(chan error, 4)
	w.imported = func(err error) { reloaded <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "zones:\n  - {entity_id: zone.work, latitude: 1, longitude: 2, radius: 10}\n")

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload the file")
	}

	if _, err := store.Get(context.Background(), "default/zone.work"); err != nil {
		t.Errorf("Get(zone.work) error = %v", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if w.String() != "zonefile-watcher" {
		t.Errorf("String() = %q", w.String())
	}
}
