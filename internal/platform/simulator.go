// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package platform provides an in-process location manager that behaves like
// a mobile OS location subsystem: it keeps the monitored region set, tracks
// the device position, detects circular region crossings, reports the current
// Wi-Fi network and answers one-shot location requests.
//
// The daemon and replay mode drive it from injected callbacks; the admin API
// exposes the same injection points.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

var (
	// ErrNoLocation is returned by OneShotLocation when no fix is available.
	ErrNoLocation = errors.New("no location available")

	// ErrNotMonitored is returned when injecting state for a region that is
	// not being monitored.
	ErrNotMonitored = errors.New("region is not monitored")

	// ErrRegionLimit is reported when the per-kind monitoring ceiling is hit.
	ErrRegionLimit = errors.New("region monitoring limit reached")
)

// Delegate receives platform callbacks. It mirrors the OS location manager
// delegate surface.
type Delegate interface {
	DidDetermineState(state event.RegionState, region zone.Region)
	DidUpdateLocations(locations []geo.Location)
	DidFailWithError(err error)
	MonitoringDidFail(region zone.Region, err error)
	DidStartMonitoring(region zone.Region)
}

// Config tunes the simulator.
type Config struct {
	// MaxRegions is the per-kind monitoring ceiling. Zero means 20.
	MaxRegions int `koanf:"max_regions" validate:"gte=0"`

	// SSID is the initial Wi-Fi network.
	SSID string `koanf:"ssid"`

	// Latitude and Longitude seed the device position when Located is set.
	Located   bool    `koanf:"located"`
	Latitude  float64 `koanf:"latitude" validate:"latitude"`
	Longitude float64 `koanf:"longitude" validate:"longitude"`
	Accuracy  float64 `koanf:"accuracy" validate:"gte=0"`

	// FixDelay simulates how long a one-shot fix takes.
	FixDelay time.Duration `koanf:"fix_delay" validate:"gte=0"`

	// ReportInitialState delivers a region's state as soon as monitoring
	// starts, as the OS does.
	ReportInitialState bool `koanf:"report_initial_state"`
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{MaxRegions: 20, ReportInitialState: true}
}

type monitoredRegion struct {
	region zone.Region
	state  event.RegionState
}

// Simulator is a thread-safe simulated location manager.
type Simulator struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	delegate    Delegate
	monitored   map[zone.RegionKey]*monitoredRegion
	significant bool
	location    *geo.Location
	ssid        string
	fix         *geo.Location
	fixErr      error
}

// New creates a Simulator.
func New(cfg Config) *Simulator {
	if cfg.MaxRegions <= 0 {
		cfg.MaxRegions = 20
	}
	s := &Simulator{
		cfg:       cfg,
		logger:    logging.WithComponent("platform"),
		now:       time.Now,
		monitored: make(map[zone.RegionKey]*monitoredRegion),
		ssid:      cfg.SSID,
	}
	if cfg.Located {
		loc := geo.NewLocation(cfg.Latitude, cfg.Longitude, s.now())
		loc.HorizontalAccuracy = cfg.Accuracy
		s.location = &loc
	}
	return s
}

// SetDelegate sets the callback receiver.
func (s *Simulator) SetDelegate(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

func (s *Simulator) currentDelegate() Delegate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate
}

// MonitoredRegions returns the monitored set ordered by identifier.
func (s *Simulator) MonitoredRegions() []zone.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoredLocked()
}

func (s *Simulator) monitoredLocked() []zone.Region {
	out := make([]zone.Region, 0, len(s.monitored))
	for _, m := range s.monitored {
		out = append(out, m.region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// StartMonitoring adds region to the monitored set. Monitoring a region that
// is already monitored is a no-op.
func (s *Simulator) StartMonitoring(region zone.Region) {
	s.mu.Lock()
	key := region.Key()
	if _, ok := s.monitored[key]; ok {
		s.mu.Unlock()
		return
	}

	count := 0
	for _, m := range s.monitored {
		if m.region.Kind == region.Kind {
			count++
		}
	}
	del := s.delegate
	if count >= s.cfg.MaxRegions {
		s.mu.Unlock()
		s.logger.Warn().Str("region", region.Identifier).Msg("Monitoring limit reached")
		if del != nil {
			del.MonitoringDidFail(region, fmt.Errorf("%w: %d %s regions", ErrRegionLimit, s.cfg.MaxRegions, region.Kind))
		}
		return
	}

	m := &monitoredRegion{region: region, state: s.stateLocked(region)}
	s.monitored[key] = m
	initial := m.state
	s.mu.Unlock()

	s.logger.Debug().Str("region", region.Identifier).Msg("Started monitoring")
	if del == nil {
		return
	}
	del.DidStartMonitoring(region)
	if s.cfg.ReportInitialState {
		del.DidDetermineState(initial, region)
	}
}

// StopMonitoring removes region from the monitored set.
func (s *Simulator) StopMonitoring(region zone.Region) {
	s.mu.Lock()
	delete(s.monitored, region.Key())
	s.mu.Unlock()
	s.logger.Debug().Str("region", region.Identifier).Msg("Stopped monitoring")
}

// StartSignificantLocationChanges enables location batch delivery.
func (s *Simulator) StartSignificantLocationChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.significant = true
}

// StopSignificantLocationChanges disables location batch delivery.
func (s *Simulator) StopSignificantLocationChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.significant = false
}

// MonitoringSignificantLocationChanges reports whether batches are delivered.
func (s *Simulator) MonitoringSignificantLocationChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.significant
}

// Location returns the last known device position, or nil.
func (s *Simulator) Location() *geo.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return nil
	}
	loc := *s.location
	return &loc
}

// stateLocked computes the geometric state of a circular region at the
// current position. Beacons and unknown positions yield StateUnknown.
func (s *Simulator) stateLocked(region zone.Region) event.RegionState {
	if region.Kind != zone.KindCircular || s.location == nil {
		return event.StateUnknown
	}
	if region.Center.DistanceTo(s.location.Coordinate) <= region.Radius {
		return event.StateInside
	}
	return event.StateOutside
}

type stateChange struct {
	region zone.Region
	state  event.RegionState
}

// UpdateLocations moves the device. Crossings of monitored circular regions
// are delivered as state callbacks, then the batch itself when significant
// location changes are enabled.
func (s *Simulator) UpdateLocations(locations []geo.Location) {
	if len(locations) == 0 {
		return
	}

	s.mu.Lock()
	newest := locations[len(locations)-1]
	s.location = &newest

	var changes []stateChange
	for _, r := range s.monitoredLocked() {
		m := s.monitored[r.Key()]
		next := s.stateLocked(m.region)
		if next != m.state && next != event.StateUnknown {
			m.state = next
			changes = append(changes, stateChange{region: m.region, state: next})
		}
	}
	significant := s.significant
	del := s.delegate
	s.mu.Unlock()

	if del == nil {
		return
	}
	for _, c := range changes {
		del.DidDetermineState(c.state, c.region)
	}
	if significant {
		del.DidUpdateLocations(locations)
	}
}

// DetermineState injects a state callback for the monitored region with the
// given identifier. This is how beacon ranging is simulated.
func (s *Simulator) DetermineState(identifier string, state event.RegionState) error {
	s.mu.Lock()
	var found *monitoredRegion
	for _, m := range s.monitored {
		if m.region.Identifier == identifier {
			found = m
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotMonitored, identifier)
	}
	found.state = state
	region := found.region
	del := s.delegate
	s.mu.Unlock()

	if del != nil {
		del.DidDetermineState(state, region)
	}
	return nil
}

// Fail injects a location error.
func (s *Simulator) Fail(err error) {
	if del := s.currentDelegate(); del != nil {
		del.DidFailWithError(err)
	}
}

// SetSSID changes the current Wi-Fi network. Empty means disconnected.
func (s *Simulator) SetSSID(ssid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ssid = ssid
}

// CurrentSSID returns the current Wi-Fi network.
func (s *Simulator) CurrentSSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssid
}

// SetNextFix overrides what one-shot requests return. A nil location and
// nil error restores the default of answering with the current position.
func (s *Simulator) SetNextFix(loc *geo.Location, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc != nil {
		copied := *loc
		s.fix = &copied
	} else {
		s.fix = nil
	}
	s.fixErr = err
}

// OneShotLocation returns a fresh fix after FixDelay, or fails when ctx ends
// first or no position is known.
func (s *Simulator) OneShotLocation(ctx context.Context, timeout time.Duration) (geo.Location, error) {
	if s.cfg.FixDelay > 0 {
		timer := time.NewTimer(s.cfg.FixDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return geo.Location{}, fmt.Errorf("waiting %s for a fix: %w", timeout, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fixErr != nil {
		return geo.Location{}, s.fixErr
	}
	source := s.fix
	if source == nil {
		source = s.location
	}
	if source == nil {
		return geo.Location{}, ErrNoLocation
	}

	loc := *source
	loc.Timestamp = s.now()
	return loc, nil
}
