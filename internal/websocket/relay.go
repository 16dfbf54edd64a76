// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package websocket

import (
	"context"
	"fmt"

	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// EventSource streams client events. Satisfied by *eventlog.Log.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan eventlog.ClientEvent, error)
}

// ZoneSource publishes zone store changes. Satisfied by *zonestore.Store.
type ZoneSource interface {
	Subscribe(fn func(zonestore.Change)) func()
}

// Relay forwards client events and zone changes to a hub. Either source may
// be nil.
type Relay struct {
	hub    *Hub
	events EventSource
	zones  ZoneSource
}

// NewRelay creates a Relay.
func NewRelay(hub *Hub, events EventSource, zones ZoneSource) *Relay {
	return &Relay{hub: hub, events: events, zones: zones}
}

// Serve implements suture.Service. It returns an error when the event
// subscription closes before ctx ends, so the supervisor resubscribes.
func (r *Relay) Serve(ctx context.Context) error {
	if r.zones != nil {
		unsubscribe := r.zones.Subscribe(r.hub.BroadcastZoneChange)
		defer unsubscribe()
	}

	if r.events == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	events, err := r.events.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("client event subscription closed")
			}
			r.hub.BroadcastClientEvent(ev)
		}
	}
}

func (r *Relay) String() string {
	return "websocket-relay"
}
