// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package reporter

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/metrics"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// DryRun logs every request instead of sending it and keeps a copy for
// inspection. Used by replay and when no webhook URL is configured.
type DryRun struct {
	cfg Config

	mu       sync.Mutex
	requests []Request
}

// NewDryRun creates a DryRun reporter. Device fields of cfg are honoured.
func NewDryRun(cfg Config) *DryRun {
	return &DryRun{cfg: cfg}
}

// SubmitLocation records an update_location request.
func (d *DryRun) SubmitLocation(ctx context.Context, trigger event.Trigger, loc *geo.Location, z *zone.Zone) error {
	return d.record(ctx, Request{Type: TypeUpdateLocation, Data: NewUpdateLocation(trigger, loc, z)})
}

// FireEvent records a fire_event request.
func (d *DryRun) FireEvent(ctx context.Context, eventType string, data map[string]any) error {
	return d.record(ctx, Request{
		Type: TypeFireEvent,
		Data: FireEvent{EventType: eventType, EventData: withDevice(data, d.cfg)},
	})
}

func (d *DryRun) record(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	metrics.RecordReporterRequest(req.Type, "dry_run", 0)
	logging.Ctx(ctx).Info().
		Str("component", "reporter").
		Str("type", req.Type).
		RawJSON("payload", body).
		Msg("Dry run, not sending")
	return nil
}

// Requests returns every recorded request in order.
func (d *DryRun) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Request, len(d.requests))
	copy(out, d.requests)
	return out
}
