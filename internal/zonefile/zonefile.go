// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package zonefile loads zone definitions from a YAML file and imports them
// into the zone store. Attribute names follow the server's zone attributes:
//
//	server: home
//	zones:
//	  - entity_id: zone.home
//	    friendly_name: Home
//	    latitude: 37.1234
//	    longitude: -122.4567
//	    radius: 100
//	    track_ios: true
//	    beacon:
//	      uuid: E2C56DB5-DFFB-48D2-B060-D0F5A71096E0
//	      major: 1
//	    ssid_trigger: [home_wifi]
//	    ssid_filter: [guest_wifi]
//	    passive: false
package zonefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/validation"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// DefaultServer is the server ID used when the file does not name one.
const DefaultServer = "default"

// ErrEmptyFile is returned for a file with no YAML document.
var ErrEmptyFile = errors.New("zones file is empty")

// File is the decoded zones file.
type File struct {
	Server string       `yaml:"server"`
	Zones  []ZoneRecord `yaml:"zones"`
}

// ZoneRecord is one zone as written in the file.
type ZoneRecord struct {
	EntityID     string        `yaml:"entity_id"`
	FriendlyName string        `yaml:"friendly_name"`
	Latitude     float64       `yaml:"latitude"`
	Longitude    float64       `yaml:"longitude"`
	Radius       float64       `yaml:"radius"`
	TrackIOS     *bool         `yaml:"track_ios"`
	Passive      bool          `yaml:"passive"`
	Beacon       *BeaconRecord `yaml:"beacon"`
	SSIDTrigger  []string      `yaml:"ssid_trigger"`
	SSIDFilter   []string      `yaml:"ssid_filter"`
}

// BeaconRecord is the optional beacon block of a zone.
type BeaconRecord struct {
	UUID  string  `yaml:"uuid"`
	Major *uint16 `yaml:"major"`
	Minor *uint16 `yaml:"minor"`
}

// ServerID returns the file's server, or DefaultServer.
func (f *File) ServerID() string {
	if f.Server == "" {
		return DefaultServer
	}
	return f.Server
}

// ToZones converts the records. Tracking defaults to enabled when track_ios
// is omitted.
func (f *File) ToZones() []*zone.Zone {
	server := f.ServerID()
	out := make([]*zone.Zone, 0, len(f.Zones))
	for _, r := range f.Zones {
		z := &zone.Zone{
			ServerID:        server,
			EntityID:        r.EntityID,
			FriendlyName:    r.FriendlyName,
			Latitude:        r.Latitude,
			Longitude:       r.Longitude,
			Radius:          r.Radius,
			TrackingEnabled: r.TrackIOS == nil || *r.TrackIOS,
			Passive:         r.Passive,
			SSIDTrigger:     r.SSIDTrigger,
			SSIDFilter:      r.SSIDFilter,
		}
		if r.Beacon != nil {
			z.Beacon = &zone.BeaconIdentity{UUID: r.Beacon.UUID, Major: r.Beacon.Major, Minor: r.Beacon.Minor}
		}
		out = append(out, z)
	}
	return out
}

// Parse decodes and validates a zones file. Unknown attributes are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("decode zones file: %w", err)
	}

	if verr := validation.ValidateZones(f.ToZones()); verr != nil {
		return nil, fmt.Errorf("invalid zones file: %w", verr)
	}
	return &f, nil
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Importer replaces a server's zones.
type Importer interface {
	ReplaceServer(ctx context.Context, serverID string, zones []*zone.Zone) ([]zonestore.Change, error)
}

// Import loads path and replaces the file's server zones in store. Zones
// missing from the file are removed, surviving zones keep their membership.
func Import(ctx context.Context, store Importer, path string) ([]zonestore.Change, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}

	zones := f.ToZones()
	logger := logging.Ctx(ctx)
	for _, z := range zones {
		if berr := z.BeaconError(); berr != nil {
			logger.Warn().Err(berr).Str("zone", z.Key()).Msg("Zone beacon unusable, circular regions will be monitored")
		}
	}

	changes, err := store.ReplaceServer(ctx, f.ServerID(), zones)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("component", "zonefile").
		Str("path", path).
		Str("server", f.ServerID()).
		Int("zones", len(zones)).
		Int("changes", len(changes)).
		Msg("Imported zones file")
	return changes, nil
}
