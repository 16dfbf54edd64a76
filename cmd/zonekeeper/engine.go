// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/zonekeeper/internal/collector"
	"github.com/tomtom215/zonekeeper/internal/config"
	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/processor"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/zonefile"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// remote is what the pipeline needs from a reporter.
type remote interface {
	processor.Reporter
	manager.EventFirer
}

// engine is the assembled pipeline: storage, simulated platform, reporter
// and zone manager.
type engine struct {
	store   *zonestore.Store
	events  *eventlog.Log
	sim     *platform.Simulator
	remote  remote
	dryRun  *reporter.DryRun
	webhook *reporter.Webhook
	manager *manager.Manager
}

// newEngine opens storage, imports the zones file and starts the manager.
// The caller must call close.
func newEngine(ctx context.Context, cfg *config.Config) (_ *engine, err error) {
	e := &engine{}
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	e.store, err = zonestore.Open(zonestore.Config{Path: cfg.Storage.Path, InMemory: cfg.Storage.InMemory})
	if err != nil {
		return nil, err
	}
	e.events = eventlog.New(e.store.DB(), eventlog.Config{
		Retention: cfg.Storage.EventRetention,
		MaxEvents: cfg.Storage.MaxEvents,
	})

	if cfg.Zones.Path != "" {
		if _, err = zonefile.Import(ctx, e.store, cfg.Zones.Path); err != nil {
			return nil, fmt.Errorf("import zones: %w", err)
		}
	}

	if cfg.Reporter.DryRun || cfg.Reporter.URL == "" {
		e.dryRun = reporter.NewDryRun(cfg.Reporter)
		e.remote = e.dryRun
		logging.Info().Msg("Reporter in dry-run mode, requests are logged only")
	} else {
		e.webhook, err = reporter.NewWebhook(cfg.Reporter)
		if err != nil {
			return nil, err
		}
		e.remote = e.webhook
	}

	e.sim = platform.New(cfg.Platform)
	proc := processor.New(cfg.Engine.Processor(), e.store, e.remote, e.sim, e.sim)

	e.manager, err = manager.New(ctx, manager.Dependencies{
		Zones:     e.store,
		Platform:  e.sim,
		Collector: collector.New(e.store),
		Processor: proc,
		Filter:    regionfilter.New(cfg.Engine.Limits),
		Firer:     e.remote,
		Events:    e.events,
	}, cfg.LocationSources)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// reporterState reports the webhook breaker state, or "dry-run".
func (e *engine) reporterState() string {
	if e.webhook != nil {
		return e.webhook.State()
	}
	return "dry-run"
}

// close releases the engine in reverse order of construction.
func (e *engine) close() error {
	if e.manager != nil {
		e.manager.Close()
	}
	var errs []error
	if e.events != nil {
		errs = append(errs, e.events.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
