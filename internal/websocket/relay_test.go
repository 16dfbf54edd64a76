// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

type chanSource struct {
	ch chan eventlog.ClientEvent
}

func (s *chanSource) Subscribe(context.Context) (<-chan eventlog.ClientEvent, error) {
	return s.ch, nil
}

type zoneFeed struct {
	mu           sync.Mutex
	fn           func(zonestore.Change)
	unsubscribed bool
}

func (f *zoneFeed) Subscribe(fn func(zonestore.Change)) func() {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}
}

func (f *zoneFeed) publish(c zonestore.Change) bool {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(c)
	return true
}

func TestRelayForwards(t *testing.T) {
	hub := NewHub()
	startHub(t, hub)
	c := fakeClient(t, hub, 4)

	events := &chanSource{ch: make(chan eventlog.ClientEvent)}
	zones := &zoneFeed{}
	relay := NewRelay(hub, events, zones)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- relay.Serve(ctx) }()

	events.ch <- eventlog.NewClientEvent("Exited Home", eventlog.TypeLocationUpdate, nil)
	if msg, _ := receive(t, c); msg.Type != MessageTypeClientEvent {
		t.Errorf("first message type = %q", msg.Type)
	}

	z := &zone.Zone{EntityID: "zone.home"}
	if !zones.publish(zonestore.Change{Kind: zonestore.ChangeDelete, Key: z.Key()}) {
		t.Fatal("relay did not subscribe to zone changes")
	}
	if msg, _ := receive(t, c); msg.Type != MessageTypeZoneChange {
		t.Errorf("second message type = %q", msg.Type)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	zones.mu.Lock()
	defer zones.mu.Unlock()
	if !zones.unsubscribed {
		t.Error("zone subscription should be removed on return")
	}
}

func TestRelayClosedSubscription(t *testing.T) {
	events := &chanSource{ch: make(chan eventlog.ClientEvent)}
	close(events.ch)

	err := NewRelay(NewHub(), events, nil).Serve(context.Background())
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want subscription error", err)
	}
}

func TestRelayWithoutEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := NewRelay(NewHub(), nil, nil).Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want deadline exceeded", err)
	}
}
