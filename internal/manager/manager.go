// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package manager owns the geofencing pipeline. It keeps the platform's
// monitored region set in step with the zone store, routes collected events
// to the processor, fires zone state events and records the outcome of every
// event in the client event log.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/zonekeeper/internal/collector"
	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/metrics"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/processor"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// ErrMissingDependency is returned by New when a required dependency is nil.
var ErrMissingDependency = errors.New("missing manager dependency")

// ZoneSource lists zones and announces changes to them.
type ZoneSource interface {
	List(ctx context.Context) ([]*zone.Zone, error)
	Subscribe(fn func(zonestore.Change)) func()
}

// LocationManager is the platform location subsystem.
type LocationManager interface {
	SetDelegate(d platform.Delegate)
	MonitoredRegions() []zone.Region
	StartMonitoring(region zone.Region)
	StopMonitoring(region zone.Region)
	StartSignificantLocationChanges()
	StopSignificantLocationChanges()
	Location() *geo.Location
}

// Collector turns platform callbacks into events.
type Collector interface {
	platform.Delegate
	SetDelegate(d collector.Delegate)
	IgnoreNextState(region zone.Region)
}

// Processor evaluates and submits events.
type Processor interface {
	SetDelegate(d processor.Delegate)
	Evaluate(ctx context.Context, e event.Event) (processor.Submitter, error)
	CurrentSSID() string
}

// RegionFilter picks the regions to monitor.
type RegionFilter interface {
	Regions(zones []*zone.Zone, current []zone.Region, lastLocation *geo.Location) []zone.Region
}

// EventFirer delivers zone state events.
type EventFirer interface {
	FireEvent(ctx context.Context, eventType string, data map[string]any) error
}

// Dependencies wires the manager to the rest of the pipeline.
type Dependencies struct {
	Zones     ZoneSource
	Platform  LocationManager
	Collector Collector
	Processor Processor
	Filter    RegionFilter
	Firer     EventFirer
	Events    eventlog.Sink
}

func (d Dependencies) validate() error {
	missing := func(name string) error { return fmt.Errorf("%w: %s", ErrMissingDependency, name) }
	switch {
	case d.Zones == nil:
		return missing("zones")
	case d.Platform == nil:
		return missing("platform")
	case d.Collector == nil:
		return missing("collector")
	case d.Processor == nil:
		return missing("processor")
	case d.Filter == nil:
		return missing("filter")
	case d.Firer == nil:
		return missing("firer")
	case d.Events == nil:
		return missing("events")
	}
	return nil
}

// LocationSources selects which platform mechanisms feed the engine.
type LocationSources struct {
	Zone                      bool `koanf:"zone" json:"zone"`
	SignificantLocationChange bool `koanf:"significant_location_change" json:"significant_location_change"`
}

// DefaultLocationSources enables every source.
func DefaultLocationSources() LocationSources {
	return LocationSources{Zone: true, SignificantLocationChange: true}
}

// Manager coordinates the pipeline. Create it with New and release it with
// Close.
type Manager struct {
	deps   Dependencies
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	kick   chan struct{}
	unsub  func()

	// inflight tracks zone state events and pending submissions.
	inflight sync.WaitGroup

	syncMu sync.Mutex

	mu              sync.Mutex
	sources         LocationSources
	desired         []zone.Region
	lastLocation    *geo.Location
	beaconsReported map[string]struct{}
	closed          bool
}

// New wires the pipeline, applies sources and runs the first sync. Later
// zone changes trigger a sync in the background.
func New(ctx context.Context, deps Dependencies, sources LocationSources) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &Manager{
		deps:            deps,
		logger:          logging.WithComponent("manager"),
		ctx:             base,
		cancel:          cancel,
		kick:            make(chan struct{}, 1),
		sources:         sources,
		beaconsReported: make(map[string]struct{}),
	}

	deps.Collector.SetDelegate(m)
	deps.Processor.SetDelegate(m)
	deps.Platform.SetDelegate(deps.Collector)
	m.applySignificantChanges(sources)

	m.unsub = deps.Zones.Subscribe(func(c zonestore.Change) {
		if c.Kind == zonestore.ChangeMembership {
			return
		}
		m.requestSync()
	})

	m.wg.Add(1)
	go m.syncLoop()

	if err := m.Sync(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("initial sync: %w", err)
	}
	return m, nil
}

// Close stops background work and waits for in-flight events to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.unsub()
	m.cancel()
	m.inflight.Wait()
	m.wg.Wait()
}

// Wait blocks until every collected event has been handled. It does not
// stop the manager.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) requestSync() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) syncLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.kick:
			if err := m.Sync(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Error().Err(err).Msg("Region sync failed")
			}
		}
	}
}

// Sync reconciles the platform's monitored regions with the tracking-enabled
// zones. Regions no longer wanted are stopped before new ones are started,
// and every new region has its first state callback suppressed.
func (m *Manager) Sync(ctx context.Context) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	zones, err := m.deps.Zones.List(ctx)
	if err != nil {
		return fmt.Errorf("list zones: %w", err)
	}

	enabled := make([]*zone.Zone, 0, len(zones))
	for _, z := range zones {
		if z.TrackingEnabled {
			enabled = append(enabled, z)
		}
	}
	m.reportBeaconErrors(ctx, enabled)

	current := m.deps.Platform.MonitoredRegions()
	var desired []zone.Region
	if m.LocationSources().Zone {
		desired = m.deps.Filter.Regions(enabled, current, m.LastLocation())
	}

	wanted := make(map[zone.RegionKey]struct{}, len(desired))
	for _, r := range desired {
		wanted[r.Key()] = struct{}{}
	}
	monitored := make(map[zone.RegionKey]struct{}, len(current))
	for _, r := range current {
		monitored[r.Key()] = struct{}{}
	}

	var started, ended int
	for _, r := range current {
		if _, ok := wanted[r.Key()]; ok {
			continue
		}
		m.addEvent(ctx, eventlog.NewClientEvent("Ending monitoring "+r.Identifier, eventlog.TypeLocationUpdate,
			map[string]string{"region": r.String()}))
		m.deps.Platform.StopMonitoring(r)
		ended++
	}
	for _, r := range desired {
		if _, ok := monitored[r.Key()]; ok {
			continue
		}
		m.addEvent(ctx, eventlog.NewClientEvent("Initially monitoring "+r.Identifier, eventlog.TypeLocationUpdate,
			map[string]string{"region": r.String()}))
		m.deps.Collector.IgnoreNextState(r)
		m.deps.Platform.StartMonitoring(r)
		started++
	}

	var beacons, circles int
	for _, r := range desired {
		if r.Kind == zone.KindBeacon {
			beacons++
		} else {
			circles++
		}
	}

	m.mu.Lock()
	m.desired = desired
	m.mu.Unlock()

	metrics.RecordSync(len(enabled), beacons, circles, started, ended)
	m.logger.Info().
		Int("available", len(zones)).
		Int("enabled", len(enabled)).
		Int("monitoring", len(desired)).
		Int("started", started).
		Int("ended", ended).
		Msg("Synced monitored regions")
	return nil
}

// reportBeaconErrors records each zone whose beacon cannot be monitored once,
// until the zone is fixed.
func (m *Manager) reportBeaconErrors(ctx context.Context, zones []*zone.Zone) {
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		berr := z.BeaconError()
		if berr == nil {
			continue
		}
		key := z.Key()
		seen[key] = struct{}{}

		m.mu.Lock()
		_, reported := m.beaconsReported[key]
		m.beaconsReported[key] = struct{}{}
		m.mu.Unlock()
		if reported {
			continue
		}

		m.logger.Warn().Err(berr).Str("zone", key).Msg("Beacon cannot be monitored, using circular regions")
		m.addEvent(ctx, eventlog.NewClientEvent(
			fmt.Sprintf("Unable to monitor beacon for %s: %v", z.EntityID, berr),
			eventlog.TypeLocationUpdate,
			map[string]string{"zone": key, "error": berr.Error()},
		))
	}

	m.mu.Lock()
	for key := range m.beaconsReported {
		if _, ok := seen[key]; !ok {
			delete(m.beaconsReported, key)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) applySignificantChanges(sources LocationSources) {
	if sources.SignificantLocationChange {
		m.deps.Platform.StartSignificantLocationChanges()
	} else {
		m.deps.Platform.StopSignificantLocationChanges()
	}
}

// SetLocationSources changes the active sources and resyncs.
func (m *Manager) SetLocationSources(ctx context.Context, sources LocationSources) error {
	m.mu.Lock()
	m.sources = sources
	m.mu.Unlock()

	m.applySignificantChanges(sources)
	m.addEvent(ctx, eventlog.NewClientEvent("Location sources changed", eventlog.TypeSettings, map[string]string{
		"zone":                        fmt.Sprint(sources.Zone),
		"significant_location_change": fmt.Sprint(sources.SignificantLocationChange),
	}))
	return m.Sync(ctx)
}

// LocationSources returns the active sources.
func (m *Manager) LocationSources() LocationSources {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources
}

// DesiredRegions returns the regions chosen by the last sync.
func (m *Manager) DesiredRegions() []zone.Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]zone.Region, len(m.desired))
	copy(out, m.desired)
	return out
}

// MonitoredRegions returns what the platform is monitoring right now.
func (m *Manager) MonitoredRegions() []zone.Region {
	return m.deps.Platform.MonitoredRegions()
}

// LastLocation returns the platform's location, or the most recent one the
// manager saw, or nil.
func (m *Manager) LastLocation() *geo.Location {
	if loc := m.deps.Platform.Location(); loc != nil {
		return loc
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLocation == nil {
		return nil
	}
	loc := *m.lastLocation
	return &loc
}

func (m *Manager) remember(loc geo.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLocation = &loc
}

// CollectorDidLog implements collector.Delegate.
func (m *Manager) CollectorDidLog(d event.Diagnostic) {
	m.logger.Info().Str("source", "collector").Str("diagnostic", d.String()).Msg("Pipeline state")
}

// ProcessorDidLog implements processor.Delegate.
func (m *Manager) ProcessorDidLog(d event.Diagnostic) {
	m.logger.Info().Str("source", "processor").Str("diagnostic", d.String()).Msg("Pipeline state")
}

// CollectorDidCollect implements collector.Delegate. The event is evaluated
// and its membership written before this returns, so callbacks for one zone
// take effect in the order they arrive. The one-shot fix, the submission and
// the zone state event run in the background.
func (m *Manager) CollectorDidCollect(e event.Event) {
	if loc := e.AssociatedLocation(); loc != nil {
		m.remember(*loc)
	}

	fire := e.IsRegion() && e.Zone != nil && e.State != event.StateUnknown

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug().Str("event", e.String()).Msg("Manager closed, dropping event")
		return
	}
	if fire {
		m.inflight.Add(1)
	}
	m.inflight.Add(1)
	m.mu.Unlock()

	if fire {
		go m.fire(e)
	}
	m.perform(e)
}

func (m *Manager) fire(e event.Event) {
	defer m.inflight.Done()

	payload := reporter.ZoneStateEvent(e.Region, e.State, e.Zone)
	if err := m.deps.Firer.FireEvent(m.ctx, payload.EventType, payload.EventData); err != nil {
		m.logger.Warn().Err(err).Str("event_type", payload.EventType).Str("zone", e.Zone.Key()).Msg("Failed to fire zone event")
	}
}

// perform evaluates e on the caller's goroutine and hands the submission to
// a tracked goroutine. The caller has already counted it in inflight.
func (m *Manager) perform(e event.Event) {
	ctx := logging.ContextWithNewCorrelationID(m.ctx)
	ssid := m.deps.Processor.CurrentSSID()
	if ssid == "" {
		ssid = "none"
	}
	payload := map[string]string{
		"start_ssid": ssid,
		"event":      e.String(),
	}

	pending, err := m.deps.Processor.Evaluate(ctx, e)
	if err != nil {
		defer m.inflight.Done()
		m.didNotUpdate(ctx, e, payload, err)
		return
	}

	go func() {
		defer m.inflight.Done()

		result, err := pending.Submit(ctx)
		if err != nil {
			m.didNotUpdate(ctx, e, payload, err)
			return
		}

		if result.Location != nil {
			m.remember(*result.Location)
		}
		if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("Region sync after update failed")
		}
		m.addEvent(ctx, eventlog.NewClientEvent("Updated location", eventlog.TypeLocationUpdate, payload))
	}()
}

func (m *Manager) didNotUpdate(ctx context.Context, e event.Event, payload map[string]string, err error) {
	if processor.IsIgnore(err) {
		m.logger.Info().Err(err).Str("event", e.String()).Msg("Didn't update")
	} else {
		m.logger.Error().Err(err).Str("event", e.String()).Msg("Didn't update")
	}
	payload["error"] = err.Error()
	m.addEvent(ctx, eventlog.NewClientEvent("Didn't update: "+err.Error(), eventlog.TypeLocationUpdate, payload))
}

func (m *Manager) addEvent(ctx context.Context, ev eventlog.ClientEvent) {
	if err := m.deps.Events.AddEvent(ctx, ev); err != nil && ctx.Err() == nil {
		m.logger.Warn().Err(err).Str("text", ev.Text).Msg("Failed to record client event")
	}
}
