// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/platform"
	ws "github.com/tomtom215/zonekeeper/internal/websocket"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// fakeEngine reports the simulator's regions and records source changes.
type fakeEngine struct {
	sim *platform.Simulator

	mu      sync.Mutex
	sources manager.LocationSources
	desired []zone.Region
	err     error
}

func (e *fakeEngine) MonitoredRegions() []zone.Region { return e.sim.MonitoredRegions() }

func (e *fakeEngine) DesiredRegions() []zone.Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desired
}

func (e *fakeEngine) LocationSources() manager.LocationSources {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sources
}

func (e *fakeEngine) SetLocationSources(_ context.Context, s manager.LocationSources) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sources = s
	return nil
}

func (e *fakeEngine) LastLocation() *geo.Location { return e.sim.Location() }

type testEnv struct {
	router http.Handler
	store  *zonestore.Store
	events *eventlog.Log
	sim    *platform.Simulator
	engine *fakeEngine
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, cfg Config, mutate func(*Dependencies)) *testEnv {
	t.Helper()
	store, err := zonestore.Open(zonestore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("zonestore.Open() error = %v", err)
	}
	events := eventlog.New(store.DB(), eventlog.Config{})
	t.Cleanup(func() {
		_ = events.Close()
		_ = store.Close()
	})

	sim := platform.New(platform.Config{MaxRegions: 20})
	engine := &fakeEngine{sim: sim, sources: manager.DefaultLocationSources()}
	hub := ws.NewHub()

	deps := Dependencies{
		Zones:    store,
		Engine:   engine,
		Events:   events,
		Platform: sim,
		Hub:      hub,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	router, err := NewRouter(deps, cfg)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return &testEnv{router: router, store: store, events: events, sim: sim, engine: engine, hub: hub}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestNewRouterMissingDependency(t *testing.T) {
	_, err := NewRouter(Dependencies{}, Config{})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("NewRouter() error = %v, want ErrMissingDependency", err)
	}
}

func TestHealth(t *testing.T) {
	state := "closed"
	env := newTestEnv(t, Config{}, func(d *Dependencies) {
		d.ReporterState = func() string { return state }
	})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var health HealthResponse
	decodeData(t, resp, &health)
	if health.Status != "ok" || health.Version != "test" || health.Reporter != "closed" {
		t.Errorf("health = %+v", health)
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Errorf("meta = %+v, want request id", resp.Meta)
	}

	state = "open"
	_, resp = env.do(t, http.MethodGet, "/api/v1/health", "")
	decodeData(t, resp, &health)
	if health.Status != "degraded" {
		t.Errorf("status with open breaker = %q, want degraded", health.Status)
	}
}

func TestZoneLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	const path = "/api/v1/zones/home/zone.work"

	rec, resp := env.do(t, http.MethodPut, path, `{"latitude":37.1,"longitude":-122.4,"radius":150,"tracking_enabled":true,"in_region":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body)
	}
	var saved zone.Zone
	decodeData(t, resp, &saved)
	if saved.ServerID != "home" || saved.EntityID != "zone.work" || saved.Radius != 150 {
		t.Errorf("saved zone = %+v", saved)
	}
	if saved.InRegion {
		t.Error("PUT must not set membership")
	}

	rec, resp = env.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/zones", "")
	if rec.Code != http.StatusOK || resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != 1 {
		t.Fatalf("LIST status = %d, meta = %+v", rec.Code, resp.Meta)
	}

	rec, _ = env.do(t, http.MethodDelete, path, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	rec, resp = env.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("GET after delete = %d %+v", rec.Code, resp.Error)
	}
	rec, _ = env.do(t, http.MethodDelete, path, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestPutZoneKeepsMembership(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	z := &zone.Zone{ServerID: "home", EntityID: "zone.work", Latitude: 1, Longitude: 2, Radius: 100}
	if err := env.store.Put(ctx, z); err != nil {
		t.Fatal(err)
	}
	if _, err := env.store.SwapMembership(ctx, z.Key(), true); err != nil {
		t.Fatal(err)
	}

	rec, resp := env.do(t, http.MethodPut, "/api/v1/zones/home/zone.work", `{"latitude":1,"longitude":2,"radius":300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body)
	}
	var saved zone.Zone
	decodeData(t, resp, &saved)
	if !saved.InRegion || saved.Radius != 300 {
		t.Errorf("saved zone = %+v, want membership kept and radius 300", saved)
	}
}

func TestPutZoneRejects(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"mismatched entity", "/api/v1/zones/home/zone.work", `{"entity_id":"zone.home","latitude":1,"longitude":2,"radius":10}`, ErrCodeBadRequest},
		{"bad entity id", "/api/v1/zones/home/work", `{"latitude":1,"longitude":2,"radius":10}`, ErrCodeValidationFailed},
		{"zero radius", "/api/v1/zones/home/zone.work", `{"latitude":1,"longitude":2,"radius":0}`, ErrCodeValidationFailed},
		{"bad latitude", "/api/v1/zones/home/zone.work", `{"latitude":100,"longitude":2,"radius":10}`, ErrCodeValidationFailed},
		{"unknown field", "/api/v1/zones/home/zone.work", `{"latitude":1,"longitude":2,"radius":10,"color":"red"}`, ErrCodeBadRequest},
		{"empty body", "/api/v1/zones/home/zone.work", "", ErrCodeBadRequest},
	}

	env := newTestEnv(t, Config{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPut, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestRegions(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	home := zone.NewCircularRegion(geo.NewCoordinate(37.1, -122.4), 100, "zone.home")
	env.sim.StartMonitoring(home)
	env.engine.desired = []zone.Region{home}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/regions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var regions RegionsResponse
	decodeData(t, resp, &regions)
	if len(regions.Monitored) != 1 || len(regions.Desired) != 1 || regions.Monitored[0].Identifier != "zone.home" {
		t.Errorf("regions = %+v", regions)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx := context.Background()
	for _, ev := range []eventlog.ClientEvent{
		eventlog.NewClientEvent("Entered Work", eventlog.TypeLocationUpdate, nil),
		eventlog.NewClientEvent("Location sources changed", eventlog.TypeSettings, nil),
		eventlog.NewClientEvent("Exited Work", eventlog.TypeLocationUpdate, nil),
	} {
		if err := env.events.AddEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"Exited Work", "Location sources changed", "Entered Work"}},
		{"by type", "?type=locationUpdate", []string{"Exited Work", "Entered Work"}},
		{"search", "?search=entered", []string{"Entered Work"}},
		{"limit", "?limit=1", []string{"Exited Work"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodGet, "/api/v1/events"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var events []eventlog.ClientEvent
			decodeData(t, resp, &events)
			var got []string
			for _, ev := range events {
				got = append(got, ev.Text)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("events = %v, want %v", got, tt.want)
			}
		})
	}

	for _, q := range []string{"?type=bogus", "?limit=0", "?limit=5000", "?limit=abc"} {
		if rec, _ := env.do(t, http.MethodGet, "/api/v1/events"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET events%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestInjectState(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/platform/state", `{"region":"zone.work","state":"inside"}`)
	if rec.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != ErrCodeConflict {
		t.Fatalf("unmonitored inject = %d %+v", rec.Code, resp.Error)
	}

	env.sim.StartMonitoring(zone.NewCircularRegion(geo.NewCoordinate(1, 2), 100, "zone.work"))
	rec, _ = env.do(t, http.MethodPost, "/api/v1/platform/state", `{"region":"zone.work","state":"enter"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("inject status = %d, body = %s", rec.Code, rec.Body)
	}

	rec, resp = env.do(t, http.MethodPost, "/api/v1/platform/state", `{"region":"zone.work","state":"sideways"}`)
	if rec.Code != http.StatusBadRequest || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("bad state = %d %+v", rec.Code, resp.Error)
	}
}

func TestInjectLocations(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/platform/locations",
		`{"locations":[{"latitude":1,"longitude":2,"accuracy":30},{"latitude":37.5,"longitude":-122,"accuracy":5,"age":"10s"}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	loc := env.sim.Location()
	if loc == nil || loc.Latitude != 37.5 || loc.HorizontalAccuracy != 5 {
		t.Errorf("simulator location = %+v", loc)
	}

	_, resp := env.do(t, http.MethodGet, "/api/v1/platform", "")
	var status PlatformStatus
	decodeData(t, resp, &status)
	if status.LastLocation == nil || status.LastLocation.Latitude != 37.5 {
		t.Errorf("platform status = %+v", status)
	}

	for _, body := range []string{`{"locations":[]}`, `{"locations":[{"latitude":1,"longitude":2,"age":"soon"}]}`} {
		if rec, _ := env.do(t, http.MethodPost, "/api/v1/platform/locations", body); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSetSSID(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	if rec, _ := env.do(t, http.MethodPut, "/api/v1/platform/ssid", `{"ssid":"home_wifi"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := env.sim.CurrentSSID(); got != "home_wifi" {
		t.Errorf("CurrentSSID() = %q", got)
	}

	body := `{"ssid":"` + strings.Repeat("x", 33) + `"}`
	if rec, _ := env.do(t, http.MethodPut, "/api/v1/platform/ssid", body); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized SSID status = %d, want 400", rec.Code)
	}

	if rec, _ := env.do(t, http.MethodPut, "/api/v1/platform/ssid", `{"ssid":""}`); rec.Code != http.StatusOK {
		t.Errorf("disconnect status = %d", rec.Code)
	}
	if got := env.sim.CurrentSSID(); got != "" {
		t.Errorf("CurrentSSID() = %q, want empty", got)
	}
}

func TestLocationSources(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec, resp := env.do(t, http.MethodPut, "/api/v1/location-sources", `{"zone":true,"significant_location_change":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}
	var sources manager.LocationSources
	decodeData(t, resp, &sources)
	want := manager.LocationSources{Zone: true}
	if sources != want {
		t.Errorf("sources = %+v, want %+v", sources, want)
	}

	env.engine.err = errors.New("sync failed")
	if rec, _ := env.do(t, http.MethodPut, "/api/v1/location-sources", `{"zone":false}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing PUT status = %d, want 500", rec.Code)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/location-sources", "")
	decodeData(t, resp, &sources)
	if sources != want {
		t.Errorf("GET sources = %+v, want %+v", sources, want)
	}
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.hub.Serve(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() { _ = ws.NewRelay(env.hub, env.events, env.store).Serve(relayCtx) }()

	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The relay subscribes asynchronously, so keep adding until one arrives.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	received := make(chan ws.Message, 1)
	go func() {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()
	for {
		_ = env.events.AddEvent(ctx, eventlog.NewClientEvent("Entered Home", eventlog.TypeLocationUpdate, nil))
		select {
		case msg := <-received:
			if msg.Type != ws.MessageTypeClientEvent {
				t.Errorf("message type = %q", msg.Type)
			}
			return
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("no event received")
			}
		}
	}
}

func TestStreamEventsRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, Config{CORSOrigins: []string{"http://allowed.example"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestStreamEventsWithoutHub(t *testing.T) {
	env := newTestEnv(t, Config{}, func(d *Dependencies) { d.Hub = nil })
	rec, resp := env.do(t, http.MethodGet, "/api/v1/events/ws", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("status = %d, error = %+v", rec.Code, resp.Error)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimitRequests: 2, RateLimitWindow: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		if rec, _ := env.do(t, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}
	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request = %d %+v", rec.Code, resp.Error)
	}

	// Metrics sit outside the limited group.
	if rec, _ := env.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("unknown route = %d %+v", rec.Code, resp.Error)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/v1/health", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}
}

func TestTracingWrapsRouter(t *testing.T) {
	env := newTestEnv(t, Config{Tracing: true}, nil)
	if rec, _ := env.do(t, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Errorf("traced health status = %d", rec.Code)
	}
}
