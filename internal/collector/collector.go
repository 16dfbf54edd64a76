// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package collector adapts platform location and region callbacks into
// typed engine events.
//
// Region state callbacks are resolved to a zone by stripping any split
// suffix from the region identifier and looking the key up in the zone
// store. Location batches are forwarded unchanged. Errors and monitoring
// notices are reported as diagnostics only.
//
// A caller that is about to start monitoring a region registers it with
// [Collector.IgnoreNextState]; the platform's first state callback for that
// identifier is then dropped, since it reflects the registration and not a
// boundary crossing.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/metrics"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// lookupTimeout bounds a zone store read made from a platform callback.
const lookupTimeout = 5 * time.Second

// ZoneLookup resolves zone keys.
type ZoneLookup interface {
	Get(ctx context.Context, key string) (*zone.Zone, error)
}

// Delegate receives the collector's output.
type Delegate interface {
	CollectorDidLog(d event.Diagnostic)
	CollectorDidCollect(e event.Event)
}

// Collector implements the platform delegate surface.
type Collector struct {
	zones  ZoneLookup
	logger *logging.EngineLogger

	mu         sync.Mutex
	delegate   Delegate
	ignoreNext map[string]struct{}
}

// New creates a Collector that resolves zones through zones.
func New(zones ZoneLookup) *Collector {
	return &Collector{
		zones:      zones,
		logger:     logging.NewEngineLogger("collector"),
		ignoreNext: make(map[string]struct{}),
	}
}

// SetDelegate sets the receiver of events and diagnostics.
func (c *Collector) SetDelegate(d Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

func (c *Collector) currentDelegate() Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

// IgnoreNextState suppresses exactly the next state callback for region.
func (c *Collector) IgnoreNextState(region zone.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoreNext[region.Identifier] = struct{}{}
}

// consumeIgnore reports whether the callback for identifier should be
// dropped, clearing the registration if so.
func (c *Collector) consumeIgnore(identifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ignoreNext[identifier]; ok {
		delete(c.ignoreNext, identifier)
		return true
	}
	return false
}

func (c *Collector) log(d event.Diagnostic) {
	metrics.RecordDiagnostic(d.Kind.String())
	c.logger.Logger().Info().Str("state", d.String()).Msg("Collector state")
	if del := c.currentDelegate(); del != nil {
		del.CollectorDidLog(d)
	}
}

func (c *Collector) collect(e event.Event) {
	kind := "region"
	if e.Kind == event.KindLocationChange {
		kind = "location_change"
	}
	metrics.RecordCollected(kind)
	if del := c.currentDelegate(); del != nil {
		del.CollectorDidCollect(e)
	}
}

// DidDetermineState handles a region state callback.
func (c *Collector) DidDetermineState(state event.RegionState, region zone.Region) {
	if c.consumeIgnore(region.Identifier) {
		c.logger.Logger().Debug().
			Str("region", region.Identifier).
			Str("state", state.String()).
			Msg("Ignoring state for newly monitored region")
		return
	}

	c.collect(event.NewRegionEvent(region, state, c.resolve(region)))
}

func (c *Collector) resolve(region zone.Region) *zone.Zone {
	if c.zones == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	z, err := c.zones.Get(ctx, region.ZoneKey())
	if err != nil {
		if !errors.Is(err, zonestore.ErrZoneNotFound) {
			c.logger.Logger().Warn().Err(err).Str("region", region.Identifier).Msg("Zone lookup failed")
		}
		return nil
	}
	return z
}

// DidUpdateLocations forwards a location batch.
func (c *Collector) DidUpdateLocations(locations []geo.Location) {
	c.collect(event.NewLocationChangeEvent(locations))
}

// DidFailWithError records a platform location error.
func (c *Collector) DidFailWithError(err error) {
	c.log(event.Errored(err))
}

// MonitoringDidFail records that the platform could not monitor a region.
func (c *Collector) MonitoringDidFail(region zone.Region, err error) {
	c.log(event.FailedMonitoring(region, err))
}

// DidStartMonitoring records that monitoring began. No state is requested.
func (c *Collector) DidStartMonitoring(region zone.Region) {
	c.log(event.StartedMonitoring(region))
}
